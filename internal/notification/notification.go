package notification

import (
	"context"
	"log/slog"
)

const (
	// KindLoginFailed indicates a rejected authentication attempt.
	KindLoginFailed = "login_failed"
	// KindCredentialsRotated indicates a completed password change.
	KindCredentialsRotated = "credentials_rotated"
	// KindAccountDeleted indicates an identity and its vaults were removed.
	KindAccountDeleted = "account_deleted"
)

// Message describes a security event payload.
type Message struct {
	Kind       string
	IdentityID string
	Detail     string
}

// Notifier delivers security events to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes events to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the event to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("security event", "kind", message.Kind, "identity_id", message.IdentityID, "detail", message.Detail)
	return nil
}
