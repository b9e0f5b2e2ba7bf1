package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"weather-coef/internal/models"
)

// Subscriber handles MQTT subscriptions and writes observations to a channel
type Subscriber struct {
	client mqtt.Client
	logger *zap.Logger
	now    func() time.Time

	// Output channel (written by subscriber, read by prediction service)
	ObservationChan chan *models.Observation

	dhtTopic string
	apiTopic string
}

// SubscriberConfig holds configuration for MQTT subscriber
type SubscriberConfig struct {
	DHTTopic string // e.g., "sensor/+/dht"
	APITopic string // e.g., "weather/+/api"
}

// NewSubscriber creates a new MQTT subscriber with channels
func NewSubscriber(
	client mqtt.Client,
	config SubscriberConfig,
	observationChan chan *models.Observation,
	logger *zap.Logger,
) *Subscriber {
	return &Subscriber{
		client:          client,
		logger:          logger.Named("subscriber"),
		now:             time.Now,
		ObservationChan: observationChan,
		dhtTopic:        config.DHTTopic,
		apiTopic:        config.APITopic,
	}
}

// SubscribeAll subscribes to all configured observation topics
func (s *Subscriber) SubscribeAll() error {
	if s.dhtTopic != "" {
		if err := s.subscribeToTopic(s.dhtTopic, s.handler(models.SourceDHT)); err != nil {
			return fmt.Errorf("failed to subscribe to DHT topic: %w", err)
		}
		s.logger.Info("subscribed", zap.String("topic", s.dhtTopic))
	}

	if s.apiTopic != "" {
		if err := s.subscribeToTopic(s.apiTopic, s.handler(models.SourceAPI)); err != nil {
			return fmt.Errorf("failed to subscribe to API topic: %w", err)
		}
		s.logger.Info("subscribed", zap.String("topic", s.apiTopic))
	}

	return nil
}

func (s *Subscriber) subscribeToTopic(topic string, handler mqtt.MessageHandler) error {
	token := s.client.Subscribe(topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (s *Subscriber) handler(source models.Source) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		obs, err := DecodeObservation(msg.Topic(), msg.Payload(), source, s.now())
		if err != nil {
			s.logger.Warn("dropping message", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}

		s.logger.Debug("received observation",
			zap.String("device_id", obs.DeviceID),
			zap.String("source", string(source)),
			zap.Float64("temperature", obs.Temperature),
			zap.Float64("humidity", obs.Humidity))

		// Write to channel (non-blocking with timeout)
		select {
		case s.ObservationChan <- obs:
		case <-time.After(1 * time.Second):
			s.logger.Warn("observation channel full, dropping message", zap.String("device_id", obs.DeviceID))
		}
	}
}

// DecodeObservation parses an observation payload. The device ID comes from
// the second topic segment; a missing or malformed timestamp is replaced by
// now.
func DecodeObservation(topic string, payload []byte, source models.Source, now time.Time) (*models.Observation, error) {
	deviceID := extractDeviceID(topic)
	if deviceID == "" {
		return nil, fmt.Errorf("could not extract device ID from topic %q", topic)
	}

	var body models.ObservationPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal observation: %w", err)
	}

	timestamp := now
	if body.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, body.Timestamp); err == nil {
			timestamp = ts
		}
	}

	return &models.Observation{
		Timestamp:   timestamp,
		DeviceID:    deviceID,
		Source:      source,
		Temperature: body.Temperature,
		Humidity:    body.Humidity,
	}, nil
}

// extractDeviceID extracts device ID from MQTT topic
// Example: "sensor/esp32-01/dht" -> "esp32-01"
func extractDeviceID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 2 {
		return parts[1]
	}
	return ""
}
