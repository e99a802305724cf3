package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/invalidate"
)

// Run delivers invalidation topics for the state's user to sub until ctx
// ends. It refuses states that are not authorized.
func (b *Bootstrapper) Run(ctx context.Context, st State, transport invalidate.Transport, sub invalidate.Subscriber) error {
	if !st.Authorized() {
		return errors.New("session is not authorized")
	}

	b.logger.Info("listening for invalidations", zap.String("email", st.User.Email))
	err := transport.Listen(ctx, st.User.Email, sub)
	b.logger.Info("stopped listening for invalidations", zap.String("email", st.User.Email))
	return err
}

type listener struct {
	email  string
	cancel context.CancelFunc
	done   chan struct{}
}

// Restart keeps exactly one invalidation listener alive for the state's
// user. A listener for the same user is kept; a listener for a different
// user, or any listener when the state is not authorized, is torn down
// first.
func (b *Bootstrapper) Restart(ctx context.Context, st State, transport invalidate.Transport, sub invalidate.Subscriber) {
	email := ""
	if st.Authorized() {
		email = st.User.Email
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener != nil {
		if b.listener.email == email {
			select {
			case <-b.listener.done:
			default:
				return
			}
		}
		b.stopLocked()
	}
	if email == "" {
		return
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &listener{email: email, cancel: cancel, done: make(chan struct{})}
	b.listener = l
	go func() {
		defer close(l.done)
		if err := b.Run(lctx, st, transport, sub); err != nil {
			b.logger.Error("invalidation listener failed", zap.String("email", email), zap.Error(err))
		}
	}()
}

// Stop tears the invalidation listener down and waits for it to exit
func (b *Bootstrapper) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopLocked()
}

// Listening returns the email the listener serves, or "" when none runs
func (b *Bootstrapper) Listening() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listener == nil {
		return ""
	}
	select {
	case <-b.listener.done:
		return ""
	default:
		return b.listener.email
	}
}

func (b *Bootstrapper) stopLocked() {
	if b.listener == nil {
		return
	}
	b.listener.cancel()
	<-b.listener.done
	b.listener = nil
}
