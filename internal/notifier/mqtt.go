package notifier

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const connectTimeout = 10 * time.Second

// NotificationError reports an alert that could not be dispatched after the
// configured number of attempts. An undelivered alert must never be
// swallowed; the caller surfaces this for redelivery.
type NotificationError struct {
	Attempts int
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("alert dispatch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Notifier publishes a text message to the notification channel.
type Notifier interface {
	Publish(ctx context.Context, message string) error
}

// MQTTNotifier opens a fresh broker connection per alert: connect, publish,
// disconnect. There is no connection reuse and no per-patient ordering
// guarantee across alerts.
type MQTTNotifier struct {
	broker   string
	clientID string
	username string
	password string
	topic    string
	attempts int
	backoff  time.Duration
	// publish performs one dispatch attempt; tests substitute it.
	publish func(message string) error
	log     *zap.Logger
}

func NewMQTTNotifier(broker, clientID, username, password, topic string, attempts int, logger *zap.Logger) *MQTTNotifier {
	if attempts < 1 {
		attempts = 1
	}
	n := &MQTTNotifier{
		broker:   broker,
		clientID: clientID,
		username: username,
		password: password,
		topic:    topic,
		attempts: attempts,
		backoff:  time.Second,
		log:      logger,
	}
	n.publish = n.publishOnce
	return n
}

func (n *MQTTNotifier) Publish(ctx context.Context, message string) error {
	var lastErr error
	for attempt := 1; attempt <= n.attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &NotificationError{Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(time.Duration(attempt) * n.backoff):
			}
		}

		if lastErr = n.publish(message); lastErr == nil {
			return nil
		}
		n.log.Warn("Alert publish attempt failed",
			zap.Int("attempt", attempt),
			zap.String("topic", n.topic),
			zap.Error(lastErr))
	}
	return &NotificationError{Attempts: n.attempts, Err: lastErr}
}

func (n *MQTTNotifier) publishOnce(message string) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(n.broker)
	opts.SetClientID(n.clientID)
	opts.SetUsername(n.username)
	opts.SetPassword(n.password)
	opts.SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connect to %s timed out", n.broker)
	} else if token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	if token := client.Publish(n.topic, 1, false, message); !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("publish to %s timed out", n.topic)
	} else if token.Error() != nil {
		return token.Error()
	}
	return nil
}
