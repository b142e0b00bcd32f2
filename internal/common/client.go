package common

import (
	"context"
	"time"
)

// ContextWithDefaultTimeout returns a context suitable for a single call to the agent API.
func ContextWithDefaultTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}
