package training

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"weather-coef/internal/coef"
	"weather-coef/internal/header"
)

// DefaultHorizon is how many rows ahead the models forecast.
const DefaultHorizon = 6

// RankTolerance is the singular value cutoff, relative to the largest
// singular value, below which a direction is treated as collinear.
const RankTolerance = 1e-10

// Config controls a training run
type Config struct {
	Horizon  int
	Features []string
	Now      func() time.Time
}

// DefaultConfig returns the configuration used for generated snapshots
func DefaultConfig() Config {
	return Config{
		Horizon:  DefaultHorizon,
		Features: coef.EngineeredFeatures(),
		Now:      time.Now,
	}
}

// Report summarizes the in-sample fit of both models
type Report struct {
	Samples         int
	TemperatureRMSE float64
	TemperatureR2   float64
	HumidityRMSE    float64
	HumidityR2      float64
	Rank            int
	Unstable        bool
}

// Fit standardizes the features (population standard deviation, zero
// replaced by one) and solves ordinary least squares with an intercept for
// both targets. The minimum-norm solution is used so collinear features
// such as the diff columns do not blow up the coefficients.
func Fit(rows []Row, cfg Config) (*coef.Table, *Report, error) {
	if cfg.Horizon < 0 {
		return nil, nil, fmt.Errorf("horizon must not be negative, got %d", cfg.Horizon)
	}
	if len(cfg.Features) == 0 {
		cfg.Features = coef.EngineeredFeatures()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	p := len(cfg.Features)
	n := len(rows) - cfg.Horizon
	if n < p+2 {
		return nil, nil, fmt.Errorf("%w: have %d usable rows, need at least %d", ErrNotEnoughSamples, max(n, 0), p+2)
	}

	x, err := Matrix(rows[:n], cfg.Features)
	if err != nil {
		return nil, nil, err
	}

	means := make([]float64, p)
	scales := make([]float64, p)
	xs := mat.NewDense(n, p, nil)
	column := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			column[i] = x[i][j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		means[j], scales[j] = mean, std
		for i := 0; i < n; i++ {
			xs.Set(i, j, (x[i][j]-mean)/std)
		}
	}

	tempY := make([]float64, n)
	humY := make([]float64, n)
	for i := 0; i < n; i++ {
		target := rows[i+cfg.Horizon].Target
		tempY[i], humY[i] = target.Temperature, target.Humidity
	}
	tempMean := stat.Mean(tempY, nil)
	humMean := stat.Mean(humY, nil)

	y := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		y.Set(i, 0, tempY[i]-tempMean)
		y.Set(i, 1, humY[i]-humMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(xs, mat.SVDThin); !ok {
		return nil, nil, errors.New("SVD factorization failed to converge")
	}
	rank := svd.Rank(RankTolerance)
	if rank == 0 {
		return nil, nil, errors.New("feature matrix has rank zero")
	}

	var beta mat.Dense
	svd.SolveTo(&beta, y, rank)

	generatedAt := cfg.Now().Truncate(time.Second)
	table := &coef.Table{
		ID: header.TableID(generatedAt, false),
		Meta: coef.Metadata{
			GeneratedAt: generatedAt,
			Samples:     n,
			Source:      "training",
		},
		FeatureNames:     append([]string(nil), cfg.Features...),
		DeclaredFeatures: p,
		Normalization:    &coef.Normalization{Means: means, Scales: scales},
		Temperature: coef.Model{
			Name:         coef.ModelTemperature,
			Intercept:    tempMean,
			Coefficients: mat.Col(nil, 0, &beta),
		},
		Humidity: coef.Model{
			Name:         coef.ModelHumidity,
			Intercept:    humMean,
			Coefficients: mat.Col(nil, 1, &beta),
		},
	}
	if err := table.Validate(); err != nil {
		return nil, nil, err
	}

	var fitted mat.Dense
	fitted.Mul(xs, &beta)
	tempHat := make([]float64, n)
	humHat := make([]float64, n)
	for i := 0; i < n; i++ {
		tempHat[i] = tempMean + fitted.At(i, 0)
		humHat[i] = humMean + fitted.At(i, 1)
	}

	report := &Report{
		Samples:         n,
		TemperatureRMSE: rmse(tempHat, tempY),
		TemperatureR2:   stat.RSquaredFrom(tempHat, tempY, nil),
		HumidityRMSE:    rmse(humHat, humY),
		HumidityR2:      stat.RSquaredFrom(humHat, humY, nil),
		Rank:            rank,
		Unstable:        table.Unstable(),
	}
	return table, report, nil
}

func rmse(estimates, values []float64) float64 {
	var sum float64
	for i := range values {
		d := estimates[i] - values[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// Fallback builds the weighted-average table used when a fit is unstable:
// 0.6 on the API reading, 0.3 on the previous DHT reading and 0.1 on the
// DHT change, with identity normalization.
func Fallback(t *coef.Table) *coef.Table {
	n := len(t.FeatureNames)
	tempCoef := make([]float64, n)
	humCoef := make([]float64, n)
	means := make([]float64, n)
	scales := make([]float64, n)

	for i, name := range t.FeatureNames {
		scales[i] = 1
		tempCoef[i] = fallbackWeight(name, "temp")
		humCoef[i] = fallbackWeight(name, "hum")
	}

	meta := t.Meta
	meta.Fallback = true
	return &coef.Table{
		ID:               header.TableID(meta.GeneratedAt, true),
		Meta:             meta,
		FeatureNames:     append([]string(nil), t.FeatureNames...),
		DeclaredFeatures: n,
		Normalization:    &coef.Normalization{Means: means, Scales: scales},
		Temperature:      coef.Model{Name: coef.ModelTemperature, Coefficients: tempCoef},
		Humidity:         coef.Model{Name: coef.ModelHumidity, Coefficients: humCoef},
	}
}

func fallbackWeight(feature, prefix string) float64 {
	switch {
	case strings.Contains(feature, prefix+"_api"):
		return 0.6
	case strings.Contains(feature, prefix+"_dht_lag1"), strings.Contains(feature, prefix+"_dht_prev"):
		return 0.3
	case strings.Contains(feature, prefix+"_dht_diff"):
		return 0.1
	default:
		return 0
	}
}
