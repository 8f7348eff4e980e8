package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/core/port"
	"github.com/arklim/identity-token-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: envelopeMetadata{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(accountID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes identity.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string    `json:"account_id"`
		Email        string    `json:"email"`
		Method       string    `json:"method"`
		Provider     string    `json:"provider,omitempty"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		AccountID:    event.AccountID,
		Email:        event.Email,
		Method:       event.Method,
		Provider:     event.Provider,
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.account.registered", event.AccountID, event.RegisteredAt, payload)
}

// PublishLoginSucceeded publishes identity.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		AccountID string    `json:"account_id"`
		GrantType string    `json:"grant_type"`
		LoginAt   time.Time `json:"login_at"`
	}{
		AccountID: event.AccountID,
		GrantType: event.GrantType,
		LoginAt:   event.LoginAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.login.succeeded", event.AccountID, event.LoginAt, payload)
}

// PublishTokenRefreshed publishes identity.token.refreshed events.
func (p *EventPublisher) PublishTokenRefreshed(ctx context.Context, event domain.TokenRefreshedEvent) error {
	payload := struct {
		AccountID   string    `json:"account_id"`
		RefreshedAt time.Time `json:"refreshed_at"`
	}{
		AccountID:   event.AccountID,
		RefreshedAt: event.RefreshedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.token.refreshed", event.AccountID, event.RefreshedAt, payload)
}

// PublishLockoutRejected publishes identity.login.lockout_rejected events.
func (p *EventPublisher) PublishLockoutRejected(ctx context.Context, event domain.LockoutRejectedEvent) error {
	payload := struct {
		AccountID  string    `json:"account_id"`
		GrantType  string    `json:"grant_type"`
		RejectedAt time.Time `json:"rejected_at"`
	}{
		AccountID:  event.AccountID,
		GrantType:  event.GrantType,
		RejectedAt: event.RejectedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "identity.login.lockout_rejected", event.AccountID, event.RejectedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
