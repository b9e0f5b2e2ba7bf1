package coef

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Evaluate returns intercept + coefficients · features.
func (m Model) Evaluate(features []float64) (float64, error) {
	if len(features) != len(m.Coefficients) {
		return 0, fmt.Errorf("%w: %s model has %d coefficients, got %d features",
			ErrFeatureCount, m.Name, len(m.Coefficients), len(features))
	}
	return m.Intercept + floats.Dot(m.Coefficients, features), nil
}

// Standardize returns (raw_i - means_i) / scales_i as a new slice.
func (n *Normalization) Standardize(raw []float64) ([]float64, error) {
	if len(raw) != len(n.Means) || len(raw) != len(n.Scales) {
		return nil, fmt.Errorf("%w: normalization has %d means and %d scales, got %d features",
			ErrFeatureCount, len(n.Means), len(n.Scales), len(raw))
	}
	out := make([]float64, len(raw))
	floats.SubTo(out, raw, n.Means)
	floats.Div(out, n.Scales)
	return out, nil
}

// Standardize applies the table's normalization to a raw feature vector.
// Tables without normalization return a copy of raw.
func (t *Table) Standardize(raw []float64) ([]float64, error) {
	if len(raw) != t.NumFeatures() {
		return nil, fmt.Errorf("%w: table %s expects %d features, got %d",
			ErrFeatureCount, t.ID, t.NumFeatures(), len(raw))
	}
	if t.Normalization == nil {
		out := make([]float64, len(raw))
		copy(out, raw)
		return out, nil
	}
	return t.Normalization.Standardize(raw)
}

// Predict standardizes raw (when the table is normalized) and evaluates
// both models.
func (t *Table) Predict(raw []float64) (Prediction, error) {
	features, err := t.Standardize(raw)
	if err != nil {
		return Prediction{}, err
	}
	return t.PredictStandardized(features)
}

// PredictStandardized evaluates both models on an already standardized vector.
func (t *Table) PredictStandardized(features []float64) (Prediction, error) {
	temp, err := t.Temperature.Evaluate(features)
	if err != nil {
		return Prediction{}, err
	}
	hum, err := t.Humidity.Evaluate(features)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Temperature: temp, Humidity: hum}, nil
}

// Arrange orders a named feature set according to FeatureNames.
// Extra names in named are ignored.
func (t *Table) Arrange(named map[string]float64) ([]float64, error) {
	if len(t.FeatureNames) == 0 {
		return nil, fmt.Errorf("%w: table %s does not document its feature order", ErrMissingFeature, t.ID)
	}
	out := make([]float64, len(t.FeatureNames))
	for i, name := range t.FeatureNames {
		v, ok := named[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s (table %s)", ErrMissingFeature, name, t.ID)
		}
		out[i] = v
	}
	return out, nil
}

// PredictNamed arranges named raw features and predicts.
func (t *Table) PredictNamed(named map[string]float64) (Prediction, error) {
	raw, err := t.Arrange(named)
	if err != nil {
		return Prediction{}, err
	}
	return t.Predict(raw)
}
