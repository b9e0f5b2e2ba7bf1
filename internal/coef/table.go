package coef

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"
)

// Feature names produced by the preprocessing pipeline
const (
	FeatureTempAPI        = "temp_api"
	FeatureHumAPI         = "hum_api"
	FeatureTempDHT        = "temp_dht"
	FeatureHumDHT         = "hum_dht"
	FeatureTempDHTLag1    = "temp_dht_lag1"
	FeatureTempDHTLag3    = "temp_dht_lag3"
	FeatureHumDHTLag1     = "hum_dht_lag1"
	FeatureHumDHTLag3     = "hum_dht_lag3"
	FeatureTempDHTDiff    = "temp_dht_diff"
	FeatureHumDHTDiff     = "hum_dht_diff"
	FeatureTempDiffDHTAPI = "temp_diff_dht_api"
	FeatureHumDiffDHTAPI  = "hum_diff_dht_api"
)

// Model names as they appear in generated headers (temp_intercept, hum_coef, ...)
const (
	ModelTemperature = "temp"
	ModelHumidity    = "hum"
)

// LargeCoefficientLimit is the magnitude above which a coefficient is
// considered numerically unstable.
const LargeCoefficientLimit = 100.0

// RawFeatures is the feature ordering of the hand-written 4-feature table.
func RawFeatures() []string {
	return []string{FeatureTempAPI, FeatureHumAPI, FeatureTempDHT, FeatureHumDHT}
}

// EngineeredFeatures is the 10-feature lag/diff ordering used by generated tables.
func EngineeredFeatures() []string {
	return []string{
		FeatureTempAPI,
		FeatureHumAPI,
		FeatureTempDHTLag1,
		FeatureTempDHTLag3,
		FeatureHumDHTLag1,
		FeatureHumDHTLag3,
		FeatureTempDHTDiff,
		FeatureHumDHTDiff,
		FeatureTempDiffDHTAPI,
		FeatureHumDiffDHTAPI,
	}
}

// Model is a single linear regression: intercept + coefficients · features.
type Model struct {
	Name         string    `json:"name" yaml:"name"`
	Intercept    float64   `json:"intercept" yaml:"intercept"`
	Coefficients []float64 `json:"coefficients" yaml:"coefficients"`
}

// Normalization holds the per-feature standardization parameters.
type Normalization struct {
	Means  []float64 `json:"means" yaml:"means"`
	Scales []float64 `json:"scales" yaml:"scales"`
}

// Metadata describes the training run that produced a table.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at,omitempty" yaml:"generated_at,omitempty"`
	Samples     int       `json:"samples,omitempty" yaml:"samples,omitempty"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Fallback    bool      `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// Table is one complete coefficient set: the temperature and humidity
// models, optional normalization and the feature ordering they expect.
// Tables are immutable once registered; a new training run produces a new
// Table rather than modifying an existing one.
type Table struct {
	ID               string         `json:"id" yaml:"id"`
	Meta             Metadata       `json:"metadata" yaml:"metadata"`
	FeatureNames     []string       `json:"feature_names,omitempty" yaml:"feature_names,omitempty"`
	DeclaredFeatures int            `json:"num_features,omitempty" yaml:"num_features,omitempty"`
	Temperature      Model          `json:"temperature" yaml:"temperature"`
	Humidity         Model          `json:"humidity" yaml:"humidity"`
	Normalization    *Normalization `json:"normalization,omitempty" yaml:"normalization,omitempty"`
}

// Prediction is the output of both models for one feature vector.
type Prediction struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// NumFeatures returns NUM_FEATURES when the table declares it, otherwise
// the length of the temperature coefficient vector.
func (t *Table) NumFeatures() int {
	if t.DeclaredFeatures > 0 {
		return t.DeclaredFeatures
	}
	return len(t.Temperature.Coefficients)
}

// Normalized reports whether raw features are standardized before use.
func (t *Table) Normalized() bool {
	return t.Normalization != nil
}

// MaxAbsCoefficient returns the largest coefficient magnitude across both models.
func (t *Table) MaxAbsCoefficient() float64 {
	var largest float64
	for _, m := range []Model{t.Temperature, t.Humidity} {
		for _, c := range m.Coefficients {
			if a := math.Abs(c); a > largest {
				largest = a
			}
		}
	}
	return largest
}

// Unstable reports whether any coefficient exceeds LargeCoefficientLimit.
func (t *Table) Unstable() bool {
	return t.MaxAbsCoefficient() > LargeCoefficientLimit
}

// Validate cross-checks every length in the table against NumFeatures and
// rejects non-finite values and unusable scales. All problems are reported
// together.
func (t *Table) Validate() error {
	var errs error
	n := t.NumFeatures()
	if n == 0 {
		errs = multierr.Append(errs, errors.New("table has no coefficients"))
	}
	if t.DeclaredFeatures < 0 {
		errs = multierr.Append(errs, fmt.Errorf("NUM_FEATURES is %d", t.DeclaredFeatures))
	}

	checkLen := func(field string, got int) {
		if got != n {
			errs = multierr.Append(errs, fmt.Errorf("%s has %d values, want %d", field, got, n))
		}
	}

	for _, m := range []Model{t.Temperature, t.Humidity} {
		checkLen(m.Name+"_coef", len(m.Coefficients))
		if !finite(m.Intercept) {
			errs = multierr.Append(errs, fmt.Errorf("%s_intercept is not finite", m.Name))
		}
		for i, c := range m.Coefficients {
			if !finite(c) {
				errs = multierr.Append(errs, fmt.Errorf("%s_coef[%d] is not finite", m.Name, i))
			}
		}
	}

	if len(t.FeatureNames) > 0 {
		checkLen("feature names", len(t.FeatureNames))
		seen := make(map[string]bool, len(t.FeatureNames))
		for _, name := range t.FeatureNames {
			if seen[name] {
				errs = multierr.Append(errs, fmt.Errorf("duplicate feature name %q", name))
			}
			seen[name] = true
		}
	}

	if t.Normalization != nil {
		checkLen("feature_means", len(t.Normalization.Means))
		checkLen("feature_scales", len(t.Normalization.Scales))
		for i, m := range t.Normalization.Means {
			if !finite(m) {
				errs = multierr.Append(errs, fmt.Errorf("feature_means[%d] is not finite", i))
			}
		}
		for i, s := range t.Normalization.Scales {
			if s == 0 || !finite(s) {
				errs = multierr.Append(errs, fmt.Errorf("%w: feature_scales[%d] = %v", ErrZeroScale, i, s))
			}
		}
	}

	if errs != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidTable, t.ID, errs)
	}
	return nil
}

// MustValidate panics if t is inconsistent. It is meant for tables compiled
// into the binary.
func MustValidate(t *Table) *Table {
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
