package aggregator

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"weather-coef/internal/coef"
	"weather-coef/internal/models"
)

// HistoryDepth is the number of previous DHT readings needed for the
// longest lag feature (lag3).
const HistoryDepth = 3

var ErrInvalidReading = errors.New("invalid reading")

// Reading is a temperature/humidity pair
type Reading struct {
	Temperature float64
	Humidity    float64
}

// FeatureSnapshot is the named feature set for one DHT time step
type FeatureSnapshot struct {
	DeviceID  string
	Timestamp time.Time
	Values    map[string]float64
}

// deviceHistory holds the recent readings for a device
type deviceHistory struct {
	dht []Reading // oldest first, at most HistoryDepth+1 entries
	api *Reading
}

// FeatureBuffer buffers sensor and API readings per device and derives the
// lag/diff features once enough history is available.
type FeatureBuffer struct {
	mu      sync.Mutex
	devices map[string]*deviceHistory
	logger  *zap.Logger
}

// NewFeatureBuffer creates an empty buffer
func NewFeatureBuffer(logger *zap.Logger) *FeatureBuffer {
	return &FeatureBuffer{
		devices: make(map[string]*deviceHistory),
		logger:  logger.Named("features"),
	}
}

// ValidateReading rejects zero and non-finite values. A DHT sensor that
// fails to read reports zeros, so those rows never reach a model.
func ValidateReading(r Reading) error {
	for name, v := range map[string]float64{"temperature": r.Temperature, "humidity": r.Humidity} {
		if v == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidReading, name, v)
		}
	}
	return nil
}

// Observe records obs. For DHT observations it returns the feature snapshot
// and true once the device has HistoryDepth earlier DHT readings and at
// least one API reading.
func (b *FeatureBuffer) Observe(obs *models.Observation) (*FeatureSnapshot, bool, error) {
	reading := Reading{Temperature: obs.Temperature, Humidity: obs.Humidity}
	if err := ValidateReading(reading); err != nil {
		return nil, false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	device, ok := b.devices[obs.DeviceID]
	if !ok {
		device = &deviceHistory{}
		b.devices[obs.DeviceID] = device
	}

	switch obs.Source {
	case models.SourceAPI:
		device.api = &reading
		return nil, false, nil
	case models.SourceDHT:
		device.dht = append(device.dht, reading)
		if len(device.dht) > HistoryDepth+1 {
			device.dht = device.dht[len(device.dht)-(HistoryDepth+1):]
		}
	default:
		return nil, false, fmt.Errorf("%w: unknown source %q", ErrInvalidReading, obs.Source)
	}

	if device.api == nil || len(device.dht) < HistoryDepth+1 {
		b.logger.Debug("waiting for history",
			zap.String("device_id", obs.DeviceID),
			zap.Int("dht_readings", len(device.dht)),
			zap.Bool("has_api", device.api != nil))
		return nil, false, nil
	}

	n := len(device.dht)
	snapshot := &FeatureSnapshot{
		DeviceID:  obs.DeviceID,
		Timestamp: obs.Timestamp,
		Values:    Derive(device.dht[n-1], device.dht[n-2], device.dht[n-4], *device.api),
	}
	return snapshot, true, nil
}

// Devices returns the IDs of all devices with buffered readings
func (b *FeatureBuffer) Devices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	devices := make([]string, 0, len(b.devices))
	for deviceID := range b.devices {
		devices = append(devices, deviceID)
	}
	return devices
}

// Derive computes every named feature for one time step from the current
// DHT reading, its lag1 and lag3 predecessors and the API reading.
func Derive(current, lag1, lag3, api Reading) map[string]float64 {
	return map[string]float64{
		coef.FeatureTempAPI:        api.Temperature,
		coef.FeatureHumAPI:         api.Humidity,
		coef.FeatureTempDHT:        current.Temperature,
		coef.FeatureHumDHT:         current.Humidity,
		coef.FeatureTempDHTLag1:    lag1.Temperature,
		coef.FeatureTempDHTLag3:    lag3.Temperature,
		coef.FeatureHumDHTLag1:     lag1.Humidity,
		coef.FeatureHumDHTLag3:     lag3.Humidity,
		coef.FeatureTempDHTDiff:    current.Temperature - lag1.Temperature,
		coef.FeatureHumDHTDiff:     current.Humidity - lag1.Humidity,
		coef.FeatureTempDiffDHTAPI: current.Temperature - api.Temperature,
		coef.FeatureHumDiffDHTAPI:  current.Humidity - api.Humidity,
	}
}
