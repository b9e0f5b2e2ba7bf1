package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-coef/internal/coef"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsExposition(t *testing.T) {
	m := New()
	m.Observation("dht", true)
	m.Observation("dht", true)
	m.Observation("dht", false)
	m.Prediction("esp32-01", "20250521_001539", 31.25, 67.5)
	m.PredictionFailed("no_active_table")
	m.ModelLoaded(coef.Snapshot20250520_234357)
	m.ModelLoadFailed()
	m.SetActiveModel(coef.Snapshot20250520_225918)

	body := scrape(t, m)
	assert.Contains(t, body, `weather_observations_total{result="ok",source="dht"} 2`)
	assert.Contains(t, body, `weather_observations_total{result="invalid",source="dht"} 1`)
	assert.Contains(t, body, `weather_predictions_total{model_id="20250521_001539"} 1`)
	assert.Contains(t, body, `weather_last_prediction{device_id="esp32-01",quantity="temperature"} 31.25`)
	assert.Contains(t, body, `weather_prediction_failures_total{reason="no_active_table"} 1`)
	assert.Contains(t, body, `weather_model_reloads_total{result="ok"} 1`)
	assert.Contains(t, body, `weather_model_reloads_total{result="error"} 1`)
	assert.Contains(t, body, `weather_active_model{model_id="20250520_225918",unstable="true"} 1`)
	assert.NotContains(t, body, `weather_active_model{model_id="20250520_234357"`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Observation("api", true)
		m.Prediction("d", "m", 1, 2)
		m.PredictionFailed("x")
		m.ModelLoaded(coef.Canonical)
		m.ModelLoadFailed()
		m.SetActiveModel(coef.Canonical)
	})
}
