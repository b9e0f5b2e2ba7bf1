package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"weather-coef/internal/aggregator"
	"weather-coef/internal/coef"
	"weather-coef/internal/metrics"
	"weather-coef/internal/models"
)

// PredictionStore persists predictions
type PredictionStore interface {
	SavePrediction(ctx context.Context, prediction *models.PredictionRecord) error
}

// TableSource supplies the coefficient table used for each prediction
type TableSource interface {
	Active() (*coef.Table, error)
}

// PredictionService evaluates the active coefficient table on every
// feature snapshot and forwards the result to the publisher
type PredictionService struct {
	tables TableSource
	store  PredictionStore
	logger *zap.Logger
	newID  func() string

	// Metrics is optional
	Metrics *metrics.Metrics

	// Input channel from the sensor service
	SnapshotChan chan *aggregator.FeatureSnapshot

	// Output channel to the MQTT publisher
	PredictionChan chan *models.PredictionRecord
}

// PredictionServiceConfig holds configuration for prediction service
type PredictionServiceConfig struct {
	ChannelSize int
}

// DefaultPredictionServiceConfig returns default configuration
func DefaultPredictionServiceConfig() PredictionServiceConfig {
	return PredictionServiceConfig{ChannelSize: 50}
}

// NewPredictionService creates a new prediction service. store may be nil
// when predictions should only be published.
func NewPredictionService(
	tables TableSource,
	store PredictionStore,
	config PredictionServiceConfig,
	logger *zap.Logger,
) *PredictionService {
	return &PredictionService{
		tables:         tables,
		store:          store,
		logger:         logger.Named("prediction"),
		newID:          func() string { return uuid.NewString() },
		PredictionChan: make(chan *models.PredictionRecord, config.ChannelSize),
	}
}

// Start predicts until the context is cancelled or the snapshot channel is
// closed. PredictionChan is closed on return.
func (ps *PredictionService) Start(ctx context.Context) {
	ps.logger.Info("starting")
	defer close(ps.PredictionChan)

	for {
		select {
		case <-ctx.Done():
			ps.logger.Info("shutting down")
			return
		case snapshot, ok := <-ps.SnapshotChan:
			if !ok {
				ps.logger.Info("snapshot channel closed, shutting down")
				return
			}

			record, err := ps.Predict(snapshot)
			if err != nil {
				ps.Metrics.PredictionFailed(failureReason(err))
				ps.logger.Error("prediction failed", zap.String("device_id", snapshot.DeviceID), zap.Error(err))
				continue
			}
			ps.Metrics.Prediction(record.DeviceID, record.ModelID, record.Temperature, record.Humidity)

			if ps.store != nil {
				if err := ps.store.SavePrediction(ctx, record); err != nil {
					ps.logger.Error("failed to save prediction", zap.String("device_id", record.DeviceID), zap.Error(err))
				}
			}

			select {
			case ps.PredictionChan <- record:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Predict evaluates the active table on one snapshot. The table is read
// once so a concurrent reload never mixes two tables in one record.
func (ps *PredictionService) Predict(snapshot *aggregator.FeatureSnapshot) (*models.PredictionRecord, error) {
	table, err := ps.tables.Active()
	if err != nil {
		return nil, err
	}

	prediction, err := table.PredictNamed(snapshot.Values)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate table %s: %w", table.ID, err)
	}

	timestamp := snapshot.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	record := &models.PredictionRecord{
		ID:          ps.newID(),
		DeviceID:    snapshot.DeviceID,
		Timestamp:   timestamp,
		ModelID:     table.ID,
		Temperature: prediction.Temperature,
		Humidity:    prediction.Humidity,
		Features:    snapshot.Values,
	}

	ps.logger.Debug("predicted",
		zap.String("device_id", record.DeviceID),
		zap.String("model_id", record.ModelID),
		zap.Float64("temperature", record.Temperature),
		zap.Float64("humidity", record.Humidity))
	return record, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, coef.ErrNoActiveTable):
		return "no_active_table"
	case errors.Is(err, coef.ErrMissingFeature):
		return "missing_feature"
	case errors.Is(err, coef.ErrFeatureCount):
		return "feature_count"
	default:
		return "error"
	}
}

// NewModelRecord describes a table for the model registry
func NewModelRecord(t *coef.Table, loadedAt time.Time) *models.ModelRecord {
	return &models.ModelRecord{
		ModelID:     t.ID,
		GeneratedAt: t.Meta.GeneratedAt,
		Samples:     t.Meta.Samples,
		NumFeatures: t.NumFeatures(),
		Normalized:  t.Normalized(),
		Fallback:    t.Meta.Fallback,
		Unstable:    t.Unstable(),
		Source:      t.Meta.Source,
		LoadedAt:    loadedAt,
	}
}
