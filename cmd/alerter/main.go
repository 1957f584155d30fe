package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vitals-alert/internal/config"
	"vitals-alert/internal/database"
	"vitals-alert/internal/handler"
	"vitals-alert/internal/logging"
	"vitals-alert/internal/notifier"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogToConsole)
	defer logger.Sync()

	logger.Info("Starting vitals alerter service")
	logConfiguration(logger, cfg)

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		logger.Fatal("Failed to load time zone", zap.String("zone", cfg.TimeZone), zap.Error(err))
	}

	repo, err := database.NewRepository(cfg.DBPath, database.Tables{
		Readings:   cfg.ReadingsTable,
		Thresholds: cfg.ThresholdTable,
		Patients:   cfg.PatientsTable,
	}, cfg.StoreTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer repo.Close()

	alertNotifier := notifier.NewMQTTNotifier(
		cfg.MQTTBroker,
		cfg.MQTTClientID+"-alert",
		cfg.MQTTUsername,
		cfg.MQTTPassword,
		cfg.AlertTopic,
		cfg.NotifyAttempts,
		logger,
	)

	pipe := handler.NewPipeline(repo, alertNotifier, loc, cfg.Window, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, closing consumers")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		runConsumer(ctx, cancel, cfg, pipe, logger)
	}()

	go func() {
		defer wg.Done()
		runMetricsServer(ctx, cfg.MetricsAddr, logger)
	}()

	logger.Info("Service started successfully, waiting for messages")
	wg.Wait()
	logger.Info("All services closed, exiting")
}

// runConsumer cancels the shared context on a setup failure instead of
// exiting the process, so the deferred repository close and log sync in
// main still run.
func runConsumer(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, pipe *handler.Pipeline, logger *zap.Logger) {
	kafkaConfig := &kafka.ConfigMap{
		"bootstrap.servers":  cfg.KafkaBrokers,
		"group.id":           cfg.ConsumerGroup,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	}

	consumer, err := kafka.NewConsumer(kafkaConfig)
	if err != nil {
		logger.Error("Failed to create consumer", zap.String("topic", cfg.VitalsTopic), zap.Error(err))
		cancel()
		return
	}
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.VitalsTopic, nil); err != nil {
		logger.Error("Failed to subscribe", zap.String("topic", cfg.VitalsTopic), zap.Error(err))
		cancel()
		return
	}

	logger.Info("Consumer started",
		zap.String("topic", cfg.VitalsTopic),
		zap.String("group", cfg.ConsumerGroup))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping consumer", zap.String("topic", cfg.VitalsTopic))
			return
		default:
			ev := consumer.Poll(100)
			if ev == nil {
				continue
			}
			switch e := ev.(type) {
			case *kafka.Message:
				// Offsets commit only after a successful handle; a store or
				// dispatch failure leaves the message for redelivery.
				if err := pipe.Handle(ctx, e.Value); err != nil {
					logger.Error("Message handling failed, offset not committed",
						zap.String("payload", string(e.Value)),
						zap.Error(err))
					continue
				}
				if _, err := consumer.CommitMessage(e); err != nil {
					logger.Error("Offset commit failed", zap.Error(err))
				}
			case kafka.Error:
				logger.Error("Kafka error", zap.String("error", e.Error()))
			}
		}
	}
}

func runMetricsServer(ctx context.Context, addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server error", zap.Error(err))
	}
}

func logConfiguration(logger *zap.Logger, cfg *config.Config) {
	logger.Info("Service configuration",
		zap.String("kafka_brokers", cfg.KafkaBrokers),
		zap.String("vitals_topic", cfg.VitalsTopic),
		zap.String("mqtt_broker", cfg.MQTTBroker),
		zap.String("alert_topic", cfg.AlertTopic),
		zap.String("time_zone", cfg.TimeZone),
		zap.Duration("window", cfg.Window),
		zap.String("db_path", cfg.DBPath),
		zap.Bool("mqtt_password_set", cfg.MQTTPassword != ""))
}
