// Package notify surfaces out-of-band notices to the person at the terminal.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"xunji/internal/domain"
)

// ExpiredMessage is printed when the backend rejects the stored token.
const ExpiredMessage = "session expired, run `xunji login` to sign in again"

// ExpiryHook runs after the expiry notice, e.g. to clear the stored token.
type ExpiryHook func(ctx context.Context) error

// Console writes notices to w and logs them.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	logger   *slog.Logger
	onExpiry ExpiryHook
}

// NewConsole creates a console notifier. onExpiry may be nil.
func NewConsole(w io.Writer, logger *slog.Logger, onExpiry ExpiryHook) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{w: w, logger: logger, onExpiry: onExpiry}
}

// SessionExpired implements domain.Notifier.
func (c *Console) SessionExpired(ctx context.Context, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Warn("session expired", "error", err)
	fmt.Fprintln(c.w, ExpiredMessage)

	if c.onExpiry == nil {
		return
	}
	if herr := c.onExpiry(ctx); herr != nil {
		c.logger.Warn("expiry hook failed", "error", herr)
	}
}

var _ domain.Notifier = (*Console)(nil)
