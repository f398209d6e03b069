package utils

import (
	"context"
	"time"
)

// DefaultCommandTimeout applies when a caller passes a non-positive duration
const DefaultCommandTimeout = 30 * time.Second

// ContextWithTimeout returns a background context bounded by d, or by
// DefaultCommandTimeout when d is not positive.
func ContextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultCommandTimeout
	}
	return context.WithTimeout(context.Background(), d)
}
