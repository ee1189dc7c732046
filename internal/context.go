package internal

import (
	"context"
	"time"
)

type ctxKey string

// ContextSessionKey carries the resolved *broker.Session through the
// authenticated request path.
const ContextSessionKey ctxKey = "session"

// WithTimeout returns a context with timeout, defaulting to 5 seconds if
// duration is zero or negative. Every remote call goes through this so no
// directory or automation operation can hang indefinitely.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
