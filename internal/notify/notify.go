// Package notify keeps the user-facing notification toasts.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity of a toast
type Severity int

const (
	Info Severity = iota
	Success
	Warning
	Error
)

var severityNames = [...]string{"info", "success", "warning", "error"}

func (s Severity) String() string {
	if s >= 0 && int(s) < len(severityNames) {
		return severityNames[s]
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// DefaultTTL is how long non-error toasts stay on screen
const DefaultTTL = 5 * time.Second

// Toast is one notification
type Toast struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is zero for toasts that stay until dismissed
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Notifier receives toasts. *Center implements it.
type Notifier interface {
	Push(sev Severity, message string) Toast
}

// Center collects toasts. Errors stay until dismissed; everything else
// expires after the TTL.
type Center struct {
	mu     sync.Mutex
	toasts []Toast
	now    func() time.Time
	ttl    time.Duration
	logger *zap.Logger
}

// Option configures a Center
type Option func(*Center)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// WithTTL sets the auto-dismiss delay
func WithTTL(ttl time.Duration) Option {
	return func(c *Center) { c.ttl = ttl }
}

// WithLogger mirrors warnings and errors into logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Center) { c.logger = logger }
}

// NewCenter creates an empty toast center
func NewCenter(opts ...Option) *Center {
	c := &Center{now: time.Now, ttl: DefaultTTL, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push records a toast and returns it
func (c *Center) Push(sev Severity, message string) Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	toast := Toast{
		ID:        uuid.NewString(),
		Severity:  sev,
		Message:   message,
		CreatedAt: now,
	}
	if sev != Error {
		toast.ExpiresAt = now.Add(c.ttl)
	}
	c.pruneLocked(now)
	c.toasts = append(c.toasts, toast)

	switch sev {
	case Warning:
		c.logger.Warn("toast", zap.String("id", toast.ID), zap.String("message", message))
	case Error:
		c.logger.Error("toast", zap.String("id", toast.ID), zap.String("message", message))
	}
	return toast
}

// Errorf pushes an error toast with a formatted message
func (c *Center) Errorf(format string, args ...any) Toast {
	return c.Push(Error, fmt.Sprintf(format, args...))
}

// Active returns the toasts still on screen, oldest first
func (c *Center) Active() []Toast {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked(c.now())
	return append([]Toast(nil), c.toasts...)
}

// Dismiss removes a toast, reporting whether it was on screen
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, t := range c.toasts {
		if t.ID == id {
			c.toasts = append(c.toasts[:i], c.toasts[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Center) pruneLocked(now time.Time) {
	kept := c.toasts[:0]
	for _, t := range c.toasts {
		if t.ExpiresAt.IsZero() || now.Before(t.ExpiresAt) {
			kept = append(kept, t)
		}
	}
	c.toasts = kept
}
