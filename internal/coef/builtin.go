package coef

import "time"

// Built-in tables compiled into the binary. Values match the generated
// headers digit for digit.
var (
	// Canonical is the hand-written 4-feature table.
	Canonical = MustValidate(&Table{
		ID:           "canonical",
		Meta:         Metadata{Source: "builtin"},
		FeatureNames: RawFeatures(),
		Temperature: Model{
			Name:         ModelTemperature,
			Intercept:    5.23,
			Coefficients: []float64{-0.12, 0.03, 0.85, -0.02},
		},
		Humidity: Model{
			Name:         ModelHumidity,
			Intercept:    12.45,
			Coefficients: []float64{0.5, -0.1, -0.15, 0.92},
		},
	})

	Snapshot20250520_225918 = MustValidate(&Table{
		ID: "20250520_225918",
		Meta: Metadata{
			GeneratedAt: time.Date(2025, 5, 20, 22, 59, 18, 0, time.UTC),
			Samples:     29,
			Source:      "builtin",
		},
		FeatureNames:     EngineeredFeatures(),
		DeclaredFeatures: 10,
		Temperature: Model{
			Name:      ModelTemperature,
			Intercept: 12195.904165,
			Coefficients: []float64{
				114352728848.156891, 18041624621.719837, -114352729092.655670, 0.133631, -18041624688.151413,
				-0.026731, -114352729092.140747, -18041624688.232845, 114352729092.138046, 18041624688.190414,
			},
		},
		Humidity: Model{
			Name:      ModelHumidity,
			Intercept: 35765.186928,
			Coefficients: []float64{
				3998700531155.970703, 630881787966.963623, -3998700531874.270996, 0.314324, -630881788162.474854,
				0.814819, -3998700531875.725098, -630881788160.756592, 3998700531871.348633, 630881788161.814575,
			},
		},
	})

	Snapshot20250520_234357 = MustValidate(&Table{
		ID: "20250520_234357",
		Meta: Metadata{
			GeneratedAt: time.Date(2025, 5, 20, 23, 43, 57, 0, time.UTC),
			Samples:     57,
			Source:      "builtin",
		},
		FeatureNames:     EngineeredFeatures(),
		DeclaredFeatures: 10,
		Normalization: &Normalization{
			Means:  []float64{24.491053, 51.561404, 30.891354, 30.907143, 65.973504, 64.868241, 0.008772, 0.526316, 6.409073, 14.938416},
			Scales: []float64{13.474799, 29.238894, 4.762683, 4.766533, 15.712398, 15.630693, 3.877714, 12.870603, 11.945424, 30.679985},
		},
		Temperature: Model{
			Name:         ModelTemperature,
			Intercept:    31.122623,
			Coefficients: []float64{-1.929946, 2.942981, -4.597228, 5.165839, 3.112453, -6.107360, -2.259184, 1.491176, -0.389268, -0.585172},
		},
		Humidity: Model{
			Name:         ModelHumidity,
			Intercept:    67.452068,
			Coefficients: []float64{-1.346722, 3.747488, 6.598737, -1.833567, -3.051731, 1.439381, -5.109145, 6.422393, 2.491557, -2.440104},
		},
	})

	Snapshot20250521_001539 = MustValidate(&Table{
		ID: "20250521_001539",
		Meta: Metadata{
			GeneratedAt: time.Date(2025, 5, 21, 0, 15, 39, 0, time.UTC),
			Samples:     64,
			Source:      "builtin",
		},
		FeatureNames:     EngineeredFeatures(),
		DeclaredFeatures: 10,
		Normalization: &Normalization{
			Means:  []float64{30.792187, 70.671875, 31.904687, 31.950000, 69.265625, 68.640625, -0.015625, 0.312500, 1.096875, -1.093750},
			Scales: []float64{2.810520, 11.357892, 0.737909, 0.725862, 10.987553, 10.870498, 0.600057, 3.353520, 2.564197, 3.706914},
		},
		Temperature: Model{
			Name:         ModelTemperature,
			Intercept:    31.839192,
			Coefficients: []float64{-1.948487, -2.111169, -0.701454, 0.032233, -1.716938, -0.524559, -0.434950, -0.648794, 1.832019, 0.792501},
		},
		Humidity: Model{
			Name:         ModelHumidity,
			Intercept:    69.380103,
			Coefficients: []float64{7.358917, 5.988835, 0.570912, 2.156788, 4.229673, 5.290446, -0.215926, 5.091701, -7.952069, -1.206302},
		},
	})
)

// BuiltinTables returns every compiled-in table, oldest first.
func BuiltinTables() []*Table {
	return []*Table{Canonical, Snapshot20250520_225918, Snapshot20250520_234357, Snapshot20250521_001539}
}
