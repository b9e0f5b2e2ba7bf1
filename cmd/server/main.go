package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"weather-coef/internal/aggregator"
	"weather-coef/internal/coef"
	"weather-coef/internal/database"
	"weather-coef/internal/metrics"
	"weather-coef/internal/modelwatch"
	"weather-coef/internal/mqtt"
	"weather-coef/internal/services"
	"weather-coef/pkg/config"
)

func main() {
	cfg := config.Load()

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}

	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	os.Exit(exitCode(logger, run(cfg, logger)))
}

// exitCode logs a failed run and flushes the logger; os.Exit skips defers.
func exitCode(logger *zap.Logger, err error) int {
	if err != nil {
		logger.Error("server failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		return 1
	}
	return 0
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting weather prediction service")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewClickHouseDB(ctx, database.Options{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePass,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	defer db.Close()

	m := metrics.New()

	// === Coefficient tables ===
	registry := coef.Builtin()
	if err := registry.Activate(cfg.ModelID); err != nil {
		return fmt.Errorf("failed to activate model %q: %w", cfg.ModelID, err)
	}

	recordModel := func(ctx context.Context, t *coef.Table) {
		if err := db.SaveModel(ctx, services.NewModelRecord(t, time.Now())); err != nil {
			logger.Error("failed to record model", zap.String("model_id", t.ID), zap.Error(err))
		}
	}

	if cfg.ModelPath != "" {
		watcher, err := modelwatch.New(cfg.ModelPath, registry, logger)
		if err != nil {
			return err
		}
		watcher.OnLoad = func(ctx context.Context, t *coef.Table) {
			m.ModelLoaded(t)
			recordModel(ctx, t)
		}
		watcher.OnError = func(error) { m.ModelLoadFailed() }
		if _, err := watcher.Load(ctx); err != nil {
			return fmt.Errorf("failed to load model file: %w", err)
		}
		logger.Info("model file loaded", zap.String("path", watcher.Path()), zap.Bool("watch", cfg.ModelWatch))
		if cfg.ModelWatch {
			if err := watcher.Start(ctx); err != nil {
				return err
			}
			defer watcher.Stop()
		}
	} else {
		active, err := registry.Active()
		if err != nil {
			return err
		}
		m.SetActiveModel(active)
		recordModel(ctx, active)
	}

	// === Services ===
	sensorConfig := services.DefaultSensorServiceConfig()
	sensorConfig.ObservationChannelSize = cfg.ObservationBuffer
	sensorService := services.NewSensorService(db, aggregator.NewFeatureBuffer(logger), sensorConfig, logger)
	sensorService.Metrics = m

	predictionConfig := services.DefaultPredictionServiceConfig()
	predictionConfig.ChannelSize = cfg.PredictionBuffer
	predictionService := services.NewPredictionService(registry, db, predictionConfig, logger)
	predictionService.Metrics = m

	// Sensor service output feeds the prediction service
	predictionService.SnapshotChan = sensorService.SnapshotChan

	// === MQTT ===
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize MQTT client: %w", err)
	}
	defer mqttClient.Close()

	subscriber := mqtt.NewSubscriber(
		mqttClient.GetNativeClient(),
		mqtt.SubscriberConfig{DHTTopic: cfg.MQTTTopicDHT, APITopic: cfg.MQTTTopicAPI},
		sensorService.ObservationChan,
		logger,
	)
	if err := subscriber.SubscribeAll(); err != nil {
		return fmt.Errorf("failed to subscribe to MQTT topics: %w", err)
	}

	publisher := mqtt.NewPublisher(
		mqttClient.GetNativeClient(),
		mqtt.PublisherConfig{PredictionTopic: cfg.MQTTTopicPrediction},
		predictionService.PredictionChan,
		logger,
	)

	var group errgroup.Group
	for _, start := range []func(context.Context){sensorService.Start, predictionService.Start, publisher.Start} {
		start := start
		group.Go(func() error {
			start(ctx)
			return nil
		})
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
	}

	active, _ := registry.Active()
	logger.Info("service running",
		zap.String("model_id", active.ID),
		zap.String("dht_topic", cfg.MQTTTopicDHT),
		zap.String("api_topic", cfg.MQTTTopicAPI),
		zap.String("prediction_topic", cfg.MQTTTopicPrediction))

	// === Wait for interrupt signal ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping services", zap.Bool("mqtt_connected", mqttClient.IsConnected()))
	cancel()
	_ = group.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to stop metrics server", zap.Error(err))
		}
	}

	logger.Info("shutdown complete")
	return nil
}
