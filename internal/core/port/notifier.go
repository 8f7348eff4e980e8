package port

import "context"

// Notifier delivers out-of-band messages to account owners. The default
// implementation only logs; a mail or SMS gateway can be dropped in later.
type Notifier interface {
	SendPasswordResetCode(ctx context.Context, email, code string) error
}
