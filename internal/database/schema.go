package database

// SQL schemas for all ClickHouse tables

const (
	// SensorObservationsTableSQL creates the sensor_observations table
	// holding both DHT and weather API readings
	SensorObservationsTableSQL = `
		CREATE TABLE IF NOT EXISTS sensor_observations (
			timestamp DateTime64(3),
			device_id String,
			source LowCardinality(String),
			temperature Float64,
			humidity Float64
		) ENGINE = MergeTree()
		ORDER BY (device_id, source, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// WeatherPredictionsTableSQL creates the weather_predictions table
	WeatherPredictionsTableSQL = `
		CREATE TABLE IF NOT EXISTS weather_predictions (
			id UUID,
			timestamp DateTime64(3),
			device_id String,
			model_id String,
			temperature Float64,
			humidity Float64,
			features String
		) ENGINE = MergeTree()
		ORDER BY (device_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// ModelRegistryTableSQL creates the model_registry table
	ModelRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS model_registry (
			model_id String,
			generated_at DateTime64(3),
			samples UInt32,
			num_features UInt16,
			normalized Bool,
			fallback Bool,
			unstable Bool,
			source String,
			loaded_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(loaded_at)
		ORDER BY model_id
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		SensorObservationsTableSQL,
		WeatherPredictionsTableSQL,
		ModelRegistryTableSQL,
	}
}
