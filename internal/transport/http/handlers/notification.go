package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/identity-token-service/internal/core/port"
	appLogger "github.com/arklim/identity-token-service/internal/infra/logger"
)

type noopNotifier struct{}

func (noopNotifier) SendPasswordResetCode(context.Context, string, string) error {
	return nil
}

// LoggingNotifier records reset code dispatches for observability without
// delivering them. The code itself is never logged; this stands in until a
// mail gateway is wired up.
type LoggingNotifier struct {
	logger *zap.Logger
}

// NewLoggingNotifier constructs a notifier backed by structured logging.
func NewLoggingNotifier(logger *zap.Logger) port.Notifier {
	if logger == nil {
		return noopNotifier{}
	}
	return &LoggingNotifier{logger: logger}
}

// SendPasswordResetCode implements port.Notifier.
func (n *LoggingNotifier) SendPasswordResetCode(_ context.Context, email, _ string) error {
	n.logger.Info("dispatch password reset code",
		zap.String("email", appLogger.MaskEmail(email)),
	)
	return nil
}
