package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"weather-coef/internal/aggregator"
	"weather-coef/internal/metrics"
	"weather-coef/internal/models"
)

// ObservationStore persists raw observations
type ObservationStore interface {
	SaveObservation(ctx context.Context, obs *models.Observation) error
}

// SensorService persists DHT and API observations and turns them into
// feature snapshots for the prediction service
type SensorService struct {
	store  ObservationStore
	buffer *aggregator.FeatureBuffer
	logger *zap.Logger

	// Metrics is optional
	Metrics *metrics.Metrics

	// Input channel from the MQTT subscriber
	ObservationChan chan *models.Observation

	// Output channel to the prediction service
	SnapshotChan chan *aggregator.FeatureSnapshot

	closeOnce sync.Once
}

// SensorServiceConfig holds configuration for sensor service
type SensorServiceConfig struct {
	ObservationChannelSize int
	SnapshotChannelSize    int
}

// DefaultSensorServiceConfig returns default configuration
func DefaultSensorServiceConfig() SensorServiceConfig {
	return SensorServiceConfig{
		ObservationChannelSize: 100,
		SnapshotChannelSize:    50,
	}
}

// NewSensorService creates a new sensor service. store may be nil when
// observations should not be persisted.
func NewSensorService(
	store ObservationStore,
	buffer *aggregator.FeatureBuffer,
	config SensorServiceConfig,
	logger *zap.Logger,
) *SensorService {
	return &SensorService{
		store:           store,
		buffer:          buffer,
		logger:          logger.Named("sensor"),
		ObservationChan: make(chan *models.Observation, config.ObservationChannelSize),
		SnapshotChan:    make(chan *aggregator.FeatureSnapshot, config.SnapshotChannelSize),
	}
}

// Start processes observations until the context is cancelled or the
// observation channel is closed. SnapshotChan is closed on return.
func (s *SensorService) Start(ctx context.Context) {
	s.logger.Info("starting")
	defer s.closeOnce.Do(func() { close(s.SnapshotChan) })

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down", zap.Int("devices", len(s.buffer.Devices())))
			return
		case obs, ok := <-s.ObservationChan:
			if !ok {
				s.logger.Info("observation channel closed, shutting down", zap.Int("devices", len(s.buffer.Devices())))
				return
			}
			s.processObservation(ctx, obs)
		}
	}
}

func (s *SensorService) processObservation(ctx context.Context, obs *models.Observation) {
	log := s.logger.With(zap.String("device_id", obs.DeviceID), zap.String("source", string(obs.Source)))

	snapshot, ready, err := s.buffer.Observe(obs)
	s.Metrics.Observation(string(obs.Source), err == nil)
	if err != nil {
		if errors.Is(err, aggregator.ErrInvalidReading) {
			log.Warn("dropping invalid reading", zap.Error(err))
		} else {
			log.Error("failed to buffer observation", zap.Error(err))
		}
		return
	}

	if s.store != nil {
		if err := s.store.SaveObservation(ctx, obs); err != nil {
			log.Error("failed to save observation", zap.Error(err))
		}
	}

	if !ready {
		return
	}

	select {
	case s.SnapshotChan <- snapshot:
	case <-ctx.Done():
	}
}
