package main

import (
	"os"
	"os/signal"
	"syscall"

	"vitals-alert/internal/config"
	"vitals-alert/internal/logging"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// The bridge relays raw device telemetry from the local MQTT broker onto
// the ingestion bus verbatim. It carries no business meaning of its own.
func main() {
	cfg := config.LoadConfig()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogToConsole)
	defer logger.Sync()

	logger.Info("Starting vitals bridge",
		zap.String("source_topic", cfg.BridgeSourceTopic),
		zap.String("target_topic", cfg.VitalsTopic))

	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.KafkaBrokers,
	})
	if err != nil {
		logger.Fatal("Failed to create producer", zap.Error(err))
	}
	defer producer.Close()

	go func() {
		for e := range producer.Events() {
			if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
				logger.Error("Delivery failed",
					zap.String("payload", string(m.Value)),
					zap.Error(m.TopicPartition.Error))
			}
		}
	}()

	relay := func(client mqtt.Client, msg mqtt.Message) {
		logger.Debug("Relaying message",
			zap.String("topic", msg.Topic()),
			zap.Int("bytes", len(msg.Payload())))
		err := producer.Produce(&kafka.Message{
			TopicPartition: kafka.TopicPartition{Topic: &cfg.VitalsTopic, Partition: kafka.PartitionAny},
			Value:          msg.Payload(),
		}, nil)
		if err != nil {
			logger.Error("Produce failed", zap.Error(err))
		}
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTTBroker)
	opts.SetClientID(cfg.MQTTClientID + "-bridge")
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker")
		token := client.Subscribe(cfg.BridgeSourceTopic, 1, relay)
		token.Wait()
		if token.Error() != nil {
			logger.Error("Subscribe failed",
				zap.String("topic", cfg.BridgeSourceTopic),
				zap.Error(token.Error()))
			return
		}
		logger.Info("Subscribed", zap.String("topic", cfg.BridgeSourceTopic))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, flushing producer")
	producer.Flush(5000)
	client.Disconnect(250)
	logger.Info("Bridge stopped")
}
