package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/domain"
	"github.com/arklim/identity-token-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs identity.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"account_id":    event.AccountID,
		"email":         event.Email,
		"method":        event.Method,
		"provider":      event.Provider,
		"registered_at": event.RegisteredAt,
	}
	p.logEvent("identity.account.registered", event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishLoginSucceeded logs identity.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	payload := map[string]any{
		"account_id": event.AccountID,
		"grant_type": event.GrantType,
		"login_at":   event.LoginAt,
	}
	p.logEvent("identity.login.succeeded", event.AccountID, event.LoginAt, payload)
	return nil
}

// PublishTokenRefreshed logs identity.token.refreshed events.
func (p *StubPublisher) PublishTokenRefreshed(_ context.Context, event domain.TokenRefreshedEvent) error {
	payload := map[string]any{
		"account_id":   event.AccountID,
		"refreshed_at": event.RefreshedAt,
	}
	p.logEvent("identity.token.refreshed", event.AccountID, event.RefreshedAt, payload)
	return nil
}

// PublishLockoutRejected logs identity.login.lockout_rejected events.
func (p *StubPublisher) PublishLockoutRejected(_ context.Context, event domain.LockoutRejectedEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"grant_type":  event.GrantType,
		"rejected_at": event.RejectedAt,
	}
	p.logEvent("identity.login.lockout_rejected", event.AccountID, event.RejectedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
