package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"weather-coef/internal/models"
)

// DevicePlaceholder is replaced by the device ID in publish topics
const DevicePlaceholder = "{device_id}"

// Publisher handles MQTT publishing from channels
type Publisher struct {
	client mqtt.Client
	logger *zap.Logger

	// Input channel (read by publisher, written by prediction service)
	PredictionChan chan *models.PredictionRecord

	predictionTopic string // e.g., "prediction/{device_id}"
}

// PublisherConfig holds configuration for MQTT publisher
type PublisherConfig struct {
	PredictionTopic string // e.g., "prediction/{device_id}"
}

// predictionMessage is the outgoing payload; the feature vector stays in
// ClickHouse
type predictionMessage struct {
	ID          string  `json:"id"`
	DeviceID    string  `json:"device_id"`
	Timestamp   string  `json:"timestamp"`
	ModelID     string  `json:"model_id"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// NewPublisher creates a new MQTT publisher with channels
func NewPublisher(
	client mqtt.Client,
	config PublisherConfig,
	predictionChan chan *models.PredictionRecord,
	logger *zap.Logger,
) *Publisher {
	return &Publisher{
		client:          client,
		logger:          logger.Named("publisher"),
		PredictionChan:  predictionChan,
		predictionTopic: config.PredictionTopic,
	}
}

// Start begins publishing predictions from the channel
// Runs until context is cancelled or channel is closed
func (p *Publisher) Start(ctx context.Context) {
	p.logger.Info("starting")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down")
			return

		case prediction, ok := <-p.PredictionChan:
			if !ok {
				p.logger.Info("prediction channel closed, shutting down")
				return
			}

			if err := p.publishPrediction(prediction); err != nil {
				p.logger.Error("failed to publish prediction", zap.String("device_id", prediction.DeviceID), zap.Error(err))
			}
		}
	}
}

func (p *Publisher) publishPrediction(prediction *models.PredictionRecord) error {
	payload, err := EncodePrediction(prediction)
	if err != nil {
		return err
	}

	topic := FormatTopic(p.predictionTopic, prediction.DeviceID)

	token := p.client.Publish(topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish prediction: %w", token.Error())
	}

	p.logger.Debug("published prediction",
		zap.String("device_id", prediction.DeviceID),
		zap.String("topic", topic),
		zap.String("model_id", prediction.ModelID))
	return nil
}

// EncodePrediction builds the JSON payload published for a prediction
func EncodePrediction(prediction *models.PredictionRecord) ([]byte, error) {
	payload, err := json.Marshal(predictionMessage{
		ID:          prediction.ID,
		DeviceID:    prediction.DeviceID,
		Timestamp:   prediction.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		ModelID:     prediction.ModelID,
		Temperature: prediction.Temperature,
		Humidity:    prediction.Humidity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prediction: %w", err)
	}
	return payload, nil
}

// FormatTopic replaces the {device_id} placeholder with the actual device ID
func FormatTopic(topicPattern, deviceID string) string {
	return strings.ReplaceAll(topicPattern, DevicePlaceholder, deviceID)
}
