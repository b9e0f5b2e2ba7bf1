package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"weather-coef/internal/coef"
	"weather-coef/internal/database"
	"weather-coef/internal/header"
	"weather-coef/internal/training"
	"weather-coef/pkg/config"
)

type trainOptions struct {
	data    string
	device  string
	since   time.Duration
	horizon int
	outDir  string
}

func (a *app) trainCmd() *cobra.Command {
	opts := trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit new coefficient tables from recorded observations",
		Long: `Fits the temperature and humidity regressions and writes a
model_coef_<timestamp>.h header. Observations come from a CSV file with
temp_dht, hum_dht, temp_api and hum_api columns (--data) or from the
ClickHouse observation store (--device). When the fit has coefficients
larger than the stability limit a fall-back header is written as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			samples, err := a.loadSamples(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.train(cmd.OutOrStdout(), samples, opts)
		},
	}
	cmd.Flags().StringVar(&opts.data, "data", "", "CSV file with raw observations")
	cmd.Flags().StringVar(&opts.device, "device", "", "Load observations for this device from ClickHouse")
	cmd.Flags().DurationVar(&opts.since, "since", 30*24*time.Hour, "How far back to read ClickHouse observations")
	cmd.Flags().IntVar(&opts.horizon, "horizon", training.DefaultHorizon, "Forecast horizon in rows")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", ".", "Directory for generated headers")
	cmd.MarkFlagsMutuallyExclusive("data", "device")
	cmd.MarkFlagsOneRequired("data", "device")
	return cmd
}

func (a *app) loadSamples(ctx context.Context, opts trainOptions) ([]training.Sample, error) {
	if opts.data != "" {
		f, err := os.Open(opts.data)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.data, err)
		}
		defer f.Close()
		return training.ReadCSV(f)
	}

	db, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	return db.TrainingSamples(ctx, opts.device, time.Now().Add(-opts.since))
}

// openStore connects to ClickHouse with the server's environment settings
func (a *app) openStore(ctx context.Context) (*database.ClickHouseDB, error) {
	cfg := config.Load()
	return database.NewClickHouseDB(ctx, database.Options{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	}, a.logger)
}

func (a *app) train(out io.Writer, samples []training.Sample, opts trainOptions) error {
	rows := training.Preprocess(samples)
	a.logger.Info("preprocessed samples", zap.Int("raw", len(samples)), zap.Int("rows", len(rows)))

	cfg := training.DefaultConfig()
	cfg.Horizon = opts.horizon

	table, report, err := training.Fit(rows, cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "samples:     %d (rank %d)\n", report.Samples, report.Rank)
	fmt.Fprintf(out, "temperature: RMSE %.4f  R² %.4f\n", report.TemperatureRMSE, report.TemperatureR2)
	fmt.Fprintf(out, "humidity:    RMSE %.4f  R² %.4f\n", report.HumidityRMSE, report.HumidityR2)

	path, err := writeHeader(opts.outDir, table)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", path)

	if report.Unstable {
		fmt.Fprintf(out, "warning: coefficients exceed %g, writing fall-back table\n", coef.LargeCoefficientLimit)
		path, err := writeHeader(opts.outDir, training.Fallback(table))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %s\n", path)
	}
	return nil
}

func writeHeader(dir string, t *coef.Table) (string, error) {
	src, err := header.RenderBytes(t)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, header.FileName(t))
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
