package models

import "time"

// Source identifies where an observation came from
type Source string

const (
	SourceDHT Source = "dht" // on-device DHT sensor
	SourceAPI Source = "api" // weather API reading relayed by the device
)

// Observation is one temperature/humidity pair from a single source
type Observation struct {
	Timestamp   time.Time `json:"timestamp"`
	DeviceID    string    `json:"device_id"`
	Source      Source    `json:"source"`
	Temperature float64   `json:"temperature"` // Celsius
	Humidity    float64   `json:"humidity"`    // Percentage 0-100
}

// ObservationPayload is the incoming MQTT message structure for both
// sensor/{device_id}/dht and weather/{device_id}/api
type ObservationPayload struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"` // RFC3339, optional
}

// PredictionRecord is a forecast produced by the active coefficient table
type PredictionRecord struct {
	ID          string             `json:"id"`
	DeviceID    string             `json:"device_id"`
	Timestamp   time.Time          `json:"timestamp"`
	ModelID     string             `json:"model_id"`
	Temperature float64            `json:"temperature"`
	Humidity    float64            `json:"humidity"`
	Features    map[string]float64 `json:"features,omitempty"`
}

// ModelRecord describes a coefficient table loaded by the service
type ModelRecord struct {
	ModelID     string    `json:"model_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Samples     int       `json:"samples"`
	NumFeatures int       `json:"num_features"`
	Normalized  bool      `json:"normalized"`
	Fallback    bool      `json:"fallback"`
	Unstable    bool      `json:"unstable"`
	Source      string    `json:"source"`
	LoadedAt    time.Time `json:"loaded_at"`
}
