package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"weather-coef/internal/models"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	payload []byte
}

// recordingClient only implements Publish; any other call panics.
type recordingClient struct {
	mqtt.Client

	mu       sync.Mutex
	messages []published
}

func (c *recordingClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, payload: payload.([]byte)})
	return doneToken{}
}

func (c *recordingClient) sent() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.messages...)
}

func TestDecodeObservation(t *testing.T) {
	now := time.Date(2025, 5, 21, 8, 0, 0, 0, time.UTC)

	obs, err := DecodeObservation("sensor/esp32-01/dht",
		[]byte(`{"temperature":31.5,"humidity":68.2,"timestamp":"2025-05-21T07:59:00Z"}`),
		models.SourceDHT, now)
	require.NoError(t, err)
	assert.Equal(t, "esp32-01", obs.DeviceID)
	assert.Equal(t, models.SourceDHT, obs.Source)
	assert.Equal(t, 31.5, obs.Temperature)
	assert.Equal(t, 68.2, obs.Humidity)
	assert.Equal(t, time.Date(2025, 5, 21, 7, 59, 0, 0, time.UTC), obs.Timestamp)

	obs, err = DecodeObservation("weather/esp32-01/api", []byte(`{"temperature":30,"humidity":70,"timestamp":"yesterday"}`), models.SourceAPI, now)
	require.NoError(t, err)
	assert.Equal(t, now, obs.Timestamp)
	assert.Equal(t, models.SourceAPI, obs.Source)
}

func TestDecodeObservationErrors(t *testing.T) {
	now := time.Now()

	_, err := DecodeObservation("sensor", []byte(`{}`), models.SourceDHT, now)
	assert.ErrorContains(t, err, "device ID")

	_, err = DecodeObservation("sensor//dht", []byte(`{}`), models.SourceDHT, now)
	assert.ErrorContains(t, err, "device ID")

	_, err = DecodeObservation("sensor/a/dht", []byte(`31.5`), models.SourceDHT, now)
	assert.ErrorContains(t, err, "unmarshal")
}

func TestFormatTopic(t *testing.T) {
	assert.Equal(t, "prediction/esp32-01", FormatTopic("prediction/{device_id}", "esp32-01"))
	assert.Equal(t, "prediction", FormatTopic("prediction", "esp32-01"))
}

func TestEncodePrediction(t *testing.T) {
	payload, err := EncodePrediction(&models.PredictionRecord{
		ID:          "0b7c3a8e-4a52-4d1b-9a77-0f3f1c8d2e11",
		DeviceID:    "esp32-01",
		Timestamp:   time.Date(2025, 5, 21, 8, 0, 0, 0, time.UTC),
		ModelID:     "20250521_001539",
		Temperature: 31.2,
		Humidity:    67.9,
		Features:    map[string]float64{"temp_api": 30},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "esp32-01", decoded["device_id"])
	assert.Equal(t, "20250521_001539", decoded["model_id"])
	assert.Equal(t, "2025-05-21T08:00:00.000Z", decoded["timestamp"])
	assert.Equal(t, 31.2, decoded["temperature"])
	assert.NotContains(t, decoded, "features")
}

func TestPublisherStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &recordingClient{}
	ch := make(chan *models.PredictionRecord, 2)
	publisher := NewPublisher(client, PublisherConfig{PredictionTopic: "prediction/{device_id}"}, ch, zap.NewNop())

	done := make(chan struct{})
	go func() {
		publisher.Start(context.Background())
		close(done)
	}()

	ch <- &models.PredictionRecord{ID: "a", DeviceID: "esp32-01", ModelID: "m"}
	ch <- &models.PredictionRecord{ID: "b", DeviceID: "esp32-02", ModelID: "m"}
	close(ch)
	<-done

	sent := client.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "prediction/esp32-01", sent[0].topic)
	assert.Equal(t, "prediction/esp32-02", sent[1].topic)
}

func TestPublisherStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	publisher := NewPublisher(&recordingClient{}, PublisherConfig{}, make(chan *models.PredictionRecord), zap.NewNop())

	done := make(chan struct{})
	go func() {
		publisher.Start(ctx)
		close(done)
	}()
	cancel()
	<-done
}
