package coef

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTablesAreConsistent(t *testing.T) {
	for _, table := range BuiltinTables() {
		t.Run(table.ID, func(t *testing.T) {
			require.NoError(t, table.Validate())

			n := table.NumFeatures()
			assert.Len(t, table.Temperature.Coefficients, n)
			assert.Len(t, table.Humidity.Coefficients, n)
			assert.Len(t, table.FeatureNames, n)
			if table.DeclaredFeatures > 0 {
				assert.Equal(t, table.DeclaredFeatures, len(table.Temperature.Coefficients))
			}
			if table.Normalized() {
				assert.Len(t, table.Normalization.Means, n)
				assert.Len(t, table.Normalization.Scales, n)
			}
		})
	}
}

func TestCanonicalHasImplicitFeatureCount(t *testing.T) {
	assert.Zero(t, Canonical.DeclaredFeatures)
	assert.Equal(t, 4, Canonical.NumFeatures())
	assert.False(t, Canonical.Normalized())
}

func TestPredictStandardizedZerosReturnsIntercepts(t *testing.T) {
	table := Snapshot20250520_234357

	p, err := table.PredictStandardized(make([]float64, 10))
	require.NoError(t, err)
	assert.Equal(t, 31.122623, p.Temperature)
	assert.Equal(t, 67.452068, p.Humidity)
}

func TestPredictAtMeansReturnsIntercepts(t *testing.T) {
	for _, table := range []*Table{Snapshot20250520_234357, Snapshot20250521_001539} {
		t.Run(table.ID, func(t *testing.T) {
			raw := append([]float64(nil), table.Normalization.Means...)

			std, err := table.Standardize(raw)
			require.NoError(t, err)
			for i, v := range std {
				assert.Zerof(t, v, "feature %d", i)
			}

			p, err := table.Predict(raw)
			require.NoError(t, err)
			assert.Equal(t, table.Temperature.Intercept, p.Temperature)
			assert.Equal(t, table.Humidity.Intercept, p.Humidity)
		})
	}
}

func TestPredictRawTable(t *testing.T) {
	p, err := Canonical.Predict([]float64{30, 60, 31, 65})
	require.NoError(t, err)
	assert.InDelta(t, 28.48, p.Temperature, 1e-9)
	assert.InDelta(t, 76.6, p.Humidity, 1e-9)
}

func TestPredictDoesNotModifyInput(t *testing.T) {
	table := Snapshot20250521_001539
	raw := []float64{31, 70, 32, 32, 69, 68, 0, 0, 1, -1}
	orig := append([]float64(nil), raw...)

	_, err := table.Predict(raw)
	require.NoError(t, err)
	assert.Equal(t, orig, raw)
}

func TestStandardizeMatchesFormula(t *testing.T) {
	table := Snapshot20250521_001539
	raw := []float64{31, 70, 32, 32, 69, 68, 0, 0, 1, -1}

	std, err := table.Standardize(raw)
	require.NoError(t, err)
	for i := range raw {
		want := (raw[i] - table.Normalization.Means[i]) / table.Normalization.Scales[i]
		assert.InDelta(t, want, std[i], 1e-12)
	}
}

func TestPredictFeatureCountMismatch(t *testing.T) {
	tests := []struct {
		name  string
		table *Table
		raw   []float64
	}{
		{"too short normalized", Snapshot20250521_001539, make([]float64, 4)},
		{"too long raw", Canonical, make([]float64, 10)},
		{"empty", Snapshot20250520_225918, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.table.Predict(tt.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFeatureCount))
		})
	}
}

func TestModelEvaluateMismatch(t *testing.T) {
	m := Model{Name: ModelHumidity, Coefficients: []float64{1, 2}}
	_, err := m.Evaluate([]float64{1})
	assert.ErrorIs(t, err, ErrFeatureCount)
}

func TestArrange(t *testing.T) {
	named := map[string]float64{
		FeatureTempAPI: 30,
		FeatureHumAPI:  60,
		FeatureTempDHT: 31,
		FeatureHumDHT:  65,
		"unused":       1,
	}

	raw, err := Canonical.Arrange(named)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 60, 31, 65}, raw)

	delete(named, FeatureHumDHT)
	_, err = Canonical.Arrange(named)
	assert.ErrorIs(t, err, ErrMissingFeature)
}

func TestArrangeWithoutFeatureNames(t *testing.T) {
	table := &Table{
		ID:          "anon",
		Temperature: Model{Name: ModelTemperature, Coefficients: []float64{1}},
		Humidity:    Model{Name: ModelHumidity, Coefficients: []float64{1}},
	}
	_, err := table.PredictNamed(map[string]float64{"x": 1})
	assert.ErrorIs(t, err, ErrMissingFeature)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	table := &Table{
		ID:               "broken",
		DeclaredFeatures: 3,
		FeatureNames:     []string{"a", "a", "b"},
		Temperature:      Model{Name: ModelTemperature, Intercept: math.NaN(), Coefficients: []float64{1, 2}},
		Humidity:         Model{Name: ModelHumidity, Coefficients: []float64{1, 2, 3}},
		Normalization: &Normalization{
			Means:  []float64{0, 0, 0},
			Scales: []float64{1, 0, 1},
		},
	}

	err := table.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTable)
	assert.ErrorIs(t, err, ErrZeroScale)
	assert.Contains(t, err.Error(), "temp_coef has 2 values, want 3")
	assert.Contains(t, err.Error(), "duplicate feature name \"a\"")
	assert.Contains(t, err.Error(), "temp_intercept is not finite")
}

func TestValidateEmptyTable(t *testing.T) {
	err := (&Table{ID: "empty"}).Validate()
	assert.ErrorIs(t, err, ErrInvalidTable)
}

func TestValidateRejectsNegativeDeclaredFeatures(t *testing.T) {
	table := &Table{
		ID:               "negative",
		DeclaredFeatures: -3,
		Temperature:      Model{Name: ModelTemperature, Coefficients: []float64{1}},
		Humidity:         Model{Name: ModelHumidity, Coefficients: []float64{1}},
	}
	err := table.Validate()
	assert.ErrorIs(t, err, ErrInvalidTable)
	assert.Contains(t, err.Error(), "NUM_FEATURES is -3")
}

func TestMustValidatePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustValidate(&Table{ID: "empty"})
	})
}

func TestUnstable(t *testing.T) {
	assert.True(t, Snapshot20250520_225918.Unstable())
	assert.False(t, Snapshot20250520_234357.Unstable())
	assert.False(t, Snapshot20250521_001539.Unstable())
	assert.False(t, Canonical.Unstable())
	assert.InDelta(t, 3998700531875.725098, Snapshot20250520_225918.MaxAbsCoefficient(), 1)
}
