// Package training fits the temperature and humidity regressions from
// recorded DHT/API observations and emits coefficient tables.
package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"weather-coef/internal/aggregator"
	"weather-coef/internal/coef"
)

// Raw CSV columns
const (
	columnTimestamp = "timestamp"
	columnTempDHT   = "temp_dht"
	columnHumDHT    = "hum_dht"
	columnTempAPI   = "temp_api"
	columnHumAPI    = "hum_api"
)

// OutlierSigma is the clipping range used on raw columns.
const OutlierSigma = 3.0

var ErrNotEnoughSamples = errors.New("not enough samples")

// Sample is one raw time step: the device DHT reading and the weather API
// reading taken at the same time.
type Sample struct {
	Timestamp time.Time
	DHT       aggregator.Reading
	API       aggregator.Reading
}

// Row is a preprocessed time step with its named features.
type Row struct {
	Timestamp time.Time
	Features  map[string]float64
	Target    aggregator.Reading
}

// ReadCSV reads raw samples. The header must contain temp_dht, hum_dht,
// temp_api and hum_api; timestamp is optional. Empty or unparseable cells
// become NaN and are dropped by Preprocess.
func ReadCSV(r io.Reader) ([]Sample, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{columnTempDHT, columnHumDHT, columnTempAPI, columnHumAPI} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("CSV is missing column %q", required)
		}
	}

	value := func(record []string, column string) float64 {
		i := index[column]
		if i >= len(record) {
			return math.NaN()
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}

	var samples []Sample
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		s := Sample{
			DHT: aggregator.Reading{Temperature: value(record, columnTempDHT), Humidity: value(record, columnHumDHT)},
			API: aggregator.Reading{Temperature: value(record, columnTempAPI), Humidity: value(record, columnHumAPI)},
		}
		if i, ok := index[columnTimestamp]; ok && i < len(record) {
			s.Timestamp = parseTimestamp(record[i])
		}
		samples = append(samples, s)
	}
	return samples, nil
}

func parseTimestamp(text string) time.Time {
	text = strings.TrimSpace(text)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// Preprocess drops invalid samples, clips outliers to mean ± 3σ per raw
// column and derives the lag/diff features. The first HistoryDepth valid
// samples only seed the lags and produce no row.
func Preprocess(samples []Sample) []Row {
	valid := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if aggregator.ValidateReading(s.DHT) != nil || aggregator.ValidateReading(s.API) != nil {
			continue
		}
		valid = append(valid, s)
	}
	if len(valid) == 0 {
		return nil
	}

	clip(valid, func(s *Sample) *float64 { return &s.DHT.Temperature })
	clip(valid, func(s *Sample) *float64 { return &s.DHT.Humidity })
	clip(valid, func(s *Sample) *float64 { return &s.API.Temperature })
	clip(valid, func(s *Sample) *float64 { return &s.API.Humidity })

	var rows []Row
	for i := aggregator.HistoryDepth; i < len(valid); i++ {
		cur := valid[i]
		rows = append(rows, Row{
			Timestamp: cur.Timestamp,
			Features:  aggregator.Derive(cur.DHT, valid[i-1].DHT, valid[i-3].DHT, cur.API),
			Target:    cur.DHT,
		})
	}
	return rows
}

// clip limits one column to mean ± OutlierSigma sample standard deviations.
func clip(samples []Sample, field func(*Sample) *float64) {
	if len(samples) < 2 {
		return
	}
	values := make([]float64, len(samples))
	for i := range samples {
		values[i] = *field(&samples[i])
	}
	mean, std := stat.MeanStdDev(values, nil)
	lo, hi := mean-OutlierSigma*std, mean+OutlierSigma*std
	for i := range samples {
		v := field(&samples[i])
		*v = math.Min(math.Max(*v, lo), hi)
	}
}

// Matrix arranges rows into a dense feature matrix in the given order.
func Matrix(rows []Row, names []string) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(names))
		for j, name := range names {
			v, ok := row.Features[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s in row %d", coef.ErrMissingFeature, name, i)
			}
			out[i][j] = v
		}
	}
	return out, nil
}
