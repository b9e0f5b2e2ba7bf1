package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"weather-coef/internal/aggregator"
	"weather-coef/internal/models"
	"weather-coef/internal/training"
)

// Options holds ClickHouse connection settings
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

type ClickHouseDB struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection and
// initializes the schema
func NewClickHouseDB(ctx context.Context, opts Options, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := &ClickHouseDB{conn: conn, logger: logger.Named("clickhouse")}
	db.logger.Info("connected", zap.String("addr", opts.Addr), zap.String("database", opts.Database))

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("schema initialized")
	return nil
}

// SaveObservation saves a DHT or API reading
func (db *ClickHouseDB) SaveObservation(ctx context.Context, obs *models.Observation) error {
	query := `
		INSERT INTO sensor_observations (timestamp, device_id, source, temperature, humidity)
		VALUES (?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		obs.Timestamp,
		obs.DeviceID,
		string(obs.Source),
		obs.Temperature,
		obs.Humidity,
	)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", err)
	}

	return nil
}

// SavePrediction saves a prediction together with the features it used
func (db *ClickHouseDB) SavePrediction(ctx context.Context, prediction *models.PredictionRecord) error {
	id, err := uuid.Parse(prediction.ID)
	if err != nil {
		return fmt.Errorf("invalid prediction id %q: %w", prediction.ID, err)
	}

	features, err := json.Marshal(prediction.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction features: %w", err)
	}

	query := `
		INSERT INTO weather_predictions (id, timestamp, device_id, model_id, temperature, humidity, features)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	err = db.conn.Exec(ctx, query,
		id,
		prediction.Timestamp,
		prediction.DeviceID,
		prediction.ModelID,
		prediction.Temperature,
		prediction.Humidity,
		string(features),
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}

	return nil
}

// SaveModel records a loaded coefficient table
func (db *ClickHouseDB) SaveModel(ctx context.Context, model *models.ModelRecord) error {
	query := `
		INSERT INTO model_registry (model_id, generated_at, samples, num_features, normalized, fallback, unstable, source, loaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		model.ModelID,
		model.GeneratedAt,
		uint32(model.Samples),
		uint16(model.NumFeatures),
		model.Normalized,
		model.Fallback,
		model.Unstable,
		model.Source,
		model.LoadedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model record: %w", err)
	}

	db.logger.Info("model recorded", zap.String("model_id", model.ModelID))
	return nil
}

// RecentPredictions returns the latest predictions for a device, newest first
func (db *ClickHouseDB) RecentPredictions(ctx context.Context, deviceID string, limit int) ([]models.PredictionRecord, error) {
	query := `
		SELECT id, timestamp, device_id, model_id, temperature, humidity
		FROM weather_predictions
		WHERE device_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := db.conn.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	var out []models.PredictionRecord
	for rows.Next() {
		var (
			record models.PredictionRecord
			id     uuid.UUID
		)
		if err := rows.Scan(&id, &record.Timestamp, &record.DeviceID, &record.ModelID, &record.Temperature, &record.Humidity); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		record.ID = id.String()
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return out, nil
}

// TrainingSamples pairs every DHT reading of a device since the given time
// with the latest API reading at or before it. Readings without an API
// partner come back as zeros and are dropped by preprocessing.
func (db *ClickHouseDB) TrainingSamples(ctx context.Context, deviceID string, since time.Time) ([]training.Sample, error) {
	query := `
		SELECT d.timestamp, d.temperature, d.humidity, a.temperature, a.humidity
		FROM (
			SELECT device_id, timestamp, temperature, humidity
			FROM sensor_observations
			WHERE device_id = ? AND source = 'dht' AND timestamp >= ?
		) AS d
		ASOF LEFT JOIN (
			SELECT device_id, timestamp, temperature, humidity
			FROM sensor_observations
			WHERE device_id = ? AND source = 'api'
		) AS a
		ON d.device_id = a.device_id AND d.timestamp >= a.timestamp
		ORDER BY d.timestamp
	`

	rows, err := db.conn.Query(ctx, query, deviceID, since, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query training samples: %w", err)
	}
	defer rows.Close()

	var samples []training.Sample
	for rows.Next() {
		var s training.Sample
		var dht, api aggregator.Reading
		if err := rows.Scan(&s.Timestamp, &dht.Temperature, &dht.Humidity, &api.Temperature, &api.Humidity); err != nil {
			return nil, fmt.Errorf("failed to scan training sample: %w", err)
		}
		s.DHT, s.API = dht, api
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training samples: %w", err)
	}

	db.logger.Info("loaded training samples", zap.String("device_id", deviceID), zap.Int("count", len(samples)))
	return samples, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("connection closed")
	}
	return nil
}
