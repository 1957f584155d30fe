package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	KafkaBrokers  string
	VitalsTopic   string
	ConsumerGroup string

	MQTTBroker   string
	MQTTClientID string
	MQTTUsername string
	MQTTPassword string

	// AlertTopic receives formatted alert messages; BridgeSourceTopic is
	// the local broker topic the bridge relays onto the vitals topic.
	AlertTopic        string
	BridgeSourceTopic string

	// TimeZone is the civil zone inbound timestamps are interpreted in.
	// It is pipeline-wide, not per-message.
	TimeZone string

	Window         time.Duration
	DBPath         string
	ReadingsTable  string
	ThresholdTable string
	PatientsTable  string
	StoreTimeout   time.Duration
	NotifyAttempts int

	MetricsAddr  string
	LogLevel     string
	LogToConsole bool
}

func LoadConfig() *Config {
	err := godotenv.Load() // Looks for ".env" in the current directory
	if err != nil {
		log.Println("No .env file found, using environment variables or default values")
	}

	windowSeconds := getEnvInt("WINDOW_SECONDS", 30)
	if windowSeconds < 1 {
		log.Printf("WINDOW_SECONDS must be positive, using default 30")
		windowSeconds = 30
	}

	return &Config{
		KafkaBrokers:  getEnv("KAFKA_BROKERS", "localhost:9092"),
		VitalsTopic:   getEnv("VITALS_TOPIC", "patient-vitals-data-topic"),
		ConsumerGroup: getEnv("CONSUMER_GROUP", "vitals_alerter"),

		MQTTBroker:   getEnv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "vitals_alerter_local"),
		MQTTUsername: getEnv("MQTT_USERNAME", ""),
		MQTTPassword: getEnv("MQTT_PASSWORD", ""),

		AlertTopic:        getEnv("ALERT_TOPIC", "topicalert"),
		BridgeSourceTopic: getEnv("BRIDGE_SOURCE_TOPIC", "topictest"),

		TimeZone: getEnv("VITALS_TIMEZONE", "America/Chicago"),

		Window:         time.Duration(windowSeconds) * time.Second,
		DBPath:         getEnv("DB_PATH", "vitals.db"),
		ReadingsTable:  getEnv("READINGS_TABLE", "heartrate"),
		ThresholdTable: getEnv("THRESHOLD_TABLE", "threshold"),
		PatientsTable:  getEnv("PATIENTS_TABLE", "patient"),
		StoreTimeout:   time.Duration(getEnvInt("STORE_TIMEOUT_SECONDS", 5)) * time.Second,
		NotifyAttempts: getEnvInt("NOTIFY_ATTEMPTS", 3),

		MetricsAddr:  getEnv("METRICS_ADDR", ":8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogToConsole: strings.EqualFold(getEnv("LOG_TO_CONSOLE", "false"), "true"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Invalid integer for %s, using default %d", key, fallback)
	}
	return fallback
}
