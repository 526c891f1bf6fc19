package auth

import (
	"context"

	"bazario.org/user-service/internal/obs"
)

// Notifier receives delivery intents for verification and reset messages.
// Delivery itself is out of process; the service only states what should be
// sent to whom.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// LogNotifier writes the intent to the structured log. Used in development
// and as the default when no dispatcher is wired.
type LogNotifier struct{}

func (LogNotifier) SendVerificationEmail(_ context.Context, email, token string) error {
	obs.LogEvent(map[string]any{
		"type":  "notification_intent",
		"event": "send_verification_email",
		"email": email,
		"token": token,
	})
	return nil
}

func (LogNotifier) SendPasswordResetEmail(_ context.Context, email, token string) error {
	obs.LogEvent(map[string]any{
		"type":  "notification_intent",
		"event": "send_password_reset_email",
		"email": email,
		"token": token,
	})
	return nil
}
