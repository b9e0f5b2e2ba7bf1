package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-coef/internal/coef"
	"weather-coef/internal/header"
	"weather-coef/internal/models"
)

var testdata = filepath.Join("..", "..", "internal", "header", "testdata")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestList(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "ACTIVE")
	assert.Contains(t, lines[1], "canonical")
	assert.True(t, strings.HasPrefix(lines[4], "*"))
	assert.Contains(t, lines[4], "20250521_001539")
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", "20250520_225918")
	require.NoError(t, err)
	assert.Contains(t, out, "ID:          20250520_225918")
	assert.Contains(t, out, "Warning:")
	assert.Contains(t, out, "temp_dht_lag1")

	out, err = execute(t, "inspect", filepath.Join(testdata, "model_coef_20250521_001539.h"))
	require.NoError(t, err)
	assert.Contains(t, out, "Normalized:  true")
	assert.NotContains(t, out, "Warning:")

	_, err = execute(t, "inspect", "nope")
	assert.ErrorIs(t, err, coef.ErrUnknownTable)
}

func TestValidate(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(testdata, "*.h"))
	require.NoError(t, err)
	require.Len(t, files, 5)

	out, err := execute(t, append([]string{"validate"}, files...)...)
	require.NoError(t, err)
	assert.Equal(t, 5, strings.Count(out, "OK    "))
	assert.Contains(t, out, "(unstable)")

	broken := filepath.Join(t.TempDir(), "broken.h")
	require.NoError(t, os.WriteFile(broken, []byte("const float temp_intercept = 1.0;\n"), 0o644))
	out, err = execute(t, "validate", files[0], broken)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL  "+broken)
	assert.Contains(t, err.Error(), "1 of 2")
}

func TestPredictNamed(t *testing.T) {
	out, err := execute(t, "predict", "--model", "canonical",
		"hum_dht=80", "temp_api=30", "hum_api=70", "temp_dht=32")
	require.NoError(t, err)
	assert.Contains(t, out, "model:       canonical")
	assert.Contains(t, out, "temperature: 29.33")
	assert.Contains(t, out, "humidity:    89.25")
}

func TestPredictPositional(t *testing.T) {
	out, err := execute(t, "predict", "-m", "canonical", "30", "70", "32", "80")
	require.NoError(t, err)
	assert.Contains(t, out, "temperature: 29.33")

	_, err = execute(t, "predict", "-m", "canonical", "30", "70")
	assert.ErrorIs(t, err, coef.ErrFeatureCount)

	_, err = execute(t, "predict", "-m", "canonical", "temp_api=30")
	assert.ErrorIs(t, err, coef.ErrMissingFeature)
}

func TestPredictPositionalNegativeValues(t *testing.T) {
	table := coef.Snapshot20250521_001539
	values := []string{"31", "70", "31.5", "30.8", "66", "67", "-0.5", "-1", "0.5", "-4"}
	require.Len(t, values, table.NumFeatures())

	named := []string{"predict", "--model", table.ID}
	for i, name := range table.FeatureNames {
		named = append(named, name+"="+values[i])
	}
	want, err := execute(t, named...)
	require.NoError(t, err)

	got, err := execute(t, append([]string{"predict", "--model", table.ID}, values...)...)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	leading := []string{"-1", "70", "31.5", "30.8", "66", "67", "-0.5", "-1", "0.5", "-4"}
	_, err = execute(t, append([]string{"predict", "-m", table.ID, "--"}, leading...)...)
	assert.NoError(t, err)
}

func TestPredictDefaultsToActiveTable(t *testing.T) {
	args := []string{"predict"}
	for _, name := range coef.EngineeredFeatures() {
		args = append(args, name+"=1")
	}
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "model:       20250521_001539")
}

func TestRenderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.h")
	_, err := execute(t, "render", "20250520_234357", "-o", path)
	require.NoError(t, err)

	parsed, err := header.ParseFile(context.Background(), path)
	require.NoError(t, err)
	want := coef.Snapshot20250520_234357
	assert.Equal(t, want.ID, parsed.ID)
	assert.Equal(t, want.Temperature.Coefficients, parsed.Temperature.Coefficients)
	assert.Equal(t, want.Normalization.Scales, parsed.Normalization.Scales)

	out, err := execute(t, "render", "canonical")
	require.NoError(t, err)
	assert.Contains(t, out, "#ifndef MODEL_COEF_H")
}

func TestExport(t *testing.T) {
	out, err := execute(t, "export", "canonical", "--format", "json")
	require.NoError(t, err)

	var decoded coef.Table
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	if diff := cmp.Diff(coef.Canonical, &decoded); diff != "" {
		t.Errorf("exported table mismatch (-want +got):\n%s", diff)
	}

	out, err = execute(t, "export", "20250521_001539")
	require.NoError(t, err)
	assert.Contains(t, out, "id: ")
	assert.Contains(t, out, "20250521_001539")
	assert.Contains(t, out, "normalization:")

	_, err = execute(t, "export", "canonical", "--format", "toml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestTrainFromCSV(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "raw.csv")

	var b strings.Builder
	b.WriteString("timestamp,temp_dht,hum_dht,temp_api,hum_api\n")
	start := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 80; i++ {
		phase := float64(i) / 6
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f\n",
			start.Add(time.Duration(i)*10*time.Minute).Format(time.RFC3339),
			31+math.Sin(phase), 68+5*math.Cos(phase/2), 30+0.8*math.Sin(phase+0.4), 70+4*math.Cos(phase/3))
	}
	require.NoError(t, os.WriteFile(data, []byte(b.String()), 0o644))

	outDir := filepath.Join(dir, "models")
	out, err := execute(t, "train", "--data", data, "--out-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "samples:     71")
	assert.Contains(t, out, "wrote ")

	headers, err := filepath.Glob(filepath.Join(outDir, "model_coef_*.h"))
	require.NoError(t, err)
	require.NotEmpty(t, headers)

	out, err = execute(t, append([]string{"validate"}, headers...)...)
	require.NoError(t, err, out)
}

func TestTrainRequiresSource(t *testing.T) {
	_, err := execute(t, "train")
	assert.Error(t, err)

	_, err = execute(t, "train", "--data", "a.csv", "--device", "esp32-01")
	assert.Error(t, err)
}

func TestHistoryFlags(t *testing.T) {
	_, err := execute(t, "history")
	assert.ErrorContains(t, err, "device")

	_, err = execute(t, "history", "--device", "esp32-01", "--limit", "0")
	assert.ErrorContains(t, err, "--limit must be at least 1")
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printHistory(&out, nil))
	assert.Equal(t, "no predictions\n", out.String())

	out.Reset()
	require.NoError(t, printHistory(&out, []models.PredictionRecord{
		{
			Timestamp:   time.Date(2025, 5, 21, 8, 5, 0, 0, time.UTC),
			ModelID:     "20250521_001539",
			Temperature: 31.256,
			Humidity:    67.5,
		},
	}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TEMPERATURE")
	assert.Equal(t, []string{"2025-05-21", "08:05:00", "20250521_001539", "31.26", "67.50"}, strings.Fields(lines[1]))
}
