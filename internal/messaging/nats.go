package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"voting_api_gateway/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// sessionEventsSubject carries every session event; subscribers filter by
// session id from the payload.
const sessionEventsSubject = "voting.session.events"

type NATSClient interface {
	PublishSessionEvent(ctx context.Context, event *model.Event) error
	SubscribeSessionEvents(ctx context.Context, handler func(*model.Event)) error
	Close()
}

type natsClient struct {
	conn   *nats.Conn
	logger *zap.Logger
}

func NewNATSClient(url string, logger *zap.Logger) (NATSClient, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &natsClient{
		conn:   conn,
		logger: logger,
	}, nil
}

type SessionEventMessage struct {
	SessionID   string `json:"session_id"`
	Type        string `json:"type"`
	BiometricID string `json:"biometric_id,omitempty"`
	Origin      string `json:"origin,omitempty"`
}

func (c *natsClient) PublishSessionEvent(ctx context.Context, event *model.Event) error {
	msg := SessionEventMessage{
		SessionID:   event.SessionID,
		Type:        string(event.Type),
		BiometricID: event.BiometricID,
		Origin:      event.Origin,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal session event", zap.Error(err))
		return fmt.Errorf("failed to marshal session event: %w", err)
	}

	err = c.conn.Publish(sessionEventsSubject, data)
	if err != nil {
		c.logger.Error("failed to publish session event", zap.Error(err),
			zap.String("session_id", event.SessionID), zap.String("type", string(event.Type)))
		return fmt.Errorf("failed to publish session event: %w", err)
	}

	c.logger.Debug("session event published",
		zap.String("session_id", event.SessionID), zap.String("type", string(event.Type)))
	return nil
}

func (c *natsClient) SubscribeSessionEvents(ctx context.Context, handler func(*model.Event)) error {
	_, err := c.conn.Subscribe(sessionEventsSubject, func(msg *nats.Msg) {
		var eventMsg SessionEventMessage
		if err := json.Unmarshal(msg.Data, &eventMsg); err != nil {
			c.logger.Error("failed to unmarshal session event message", zap.Error(err))
			return
		}

		handler(&model.Event{
			SessionID:   eventMsg.SessionID,
			Type:        model.EventType(eventMsg.Type),
			BiometricID: eventMsg.BiometricID,
			Origin:      eventMsg.Origin,
		})
	})
	if err != nil {
		c.logger.Error("failed to subscribe to session events", zap.Error(err))
		return fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	c.logger.Info("subscribed to session events")
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}
