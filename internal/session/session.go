// Package session bootstraps a signed-in session: it waits for the session
// provider, loads the user and their authorized applications, decides which
// screen the user lands on and keeps the invalidation socket open.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-analytics/noah-server/internal/api"
)

// SetPasswordPath is the route of the password-setup screen
const SetPasswordPath = "/set-password"

var (
	// ErrNoSession means nobody is signed in
	ErrNoSession = errors.New("no session")
	// ErrUnauthorized means the user has no authorized applications
	ErrUnauthorized = errors.New("no authorized applications")
)

// Provider is the session provider. Wait blocks until its loading phase is
// over; a nil identity means there is no session.
type Provider interface {
	Wait(ctx context.Context) (*api.Identity, error)
}

// Directory is the part of the data service describing the user
type Directory interface {
	CurrentUser(ctx context.Context) (*api.User, error)
	AuthorizedApps(ctx context.Context) ([]api.App, error)
}

// Status is the bootstrap outcome
type Status int

const (
	Loading Status = iota
	SignedOut
	Failed
	Unauthorized
	NeedsPassword
	Ready
)

var statusNames = [...]string{"loading", "signed_out", "failed", "unauthorized", "needs_password", "ready"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is the recovery offered on a failure screen
type Action string

const (
	NoAction Action = ""
	// Reload retries the whole bootstrap
	Reload Action = "reload"
	// SignOut sends the user back to the login screen
	SignOut Action = "sign_out"
	// Redirect sends the user to State.Redirect
	Redirect Action = "redirect"
)

// State is what the user should see after bootstrap
type State struct {
	Status   Status    `json:"status"`
	Action   Action    `json:"action,omitempty"`
	Message  string    `json:"message,omitempty"`
	Redirect string    `json:"redirect,omitempty"`
	User     *api.User `json:"user,omitempty"`
	Apps     []api.App `json:"apps,omitempty"`
	Err      error     `json:"-"`
}

// Authorized reports whether the state carries a user allowed into the app
func (s State) Authorized() bool {
	return (s.Status == Ready || s.Status == NeedsPassword) && s.User != nil
}

// Bootstrapper runs the session bootstrap
type Bootstrapper struct {
	provider Provider
	dir      Directory
	logger   *zap.Logger

	mu       sync.Mutex
	listener *listener
}

// NewBootstrapper creates a bootstrapper. logger may be nil.
func NewBootstrapper(provider Provider, dir Directory, logger *zap.Logger) *Bootstrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bootstrapper{provider: provider, dir: dir, logger: logger}
}

// Start waits for the session provider and, when a session exists, loads
// the user and their applications in parallel. currentPath is the route the
// user is on, used to avoid redirecting to the password screen twice.
func (b *Bootstrapper) Start(ctx context.Context, currentPath string) State {
	identity, err := b.provider.Wait(ctx)
	if err != nil {
		b.logger.Warn("session provider failed", zap.Error(err))
		return failed(err)
	}
	if identity == nil {
		return State{Status: SignedOut, Err: ErrNoSession}
	}

	var (
		user *api.User
		apps []api.App
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := b.dir.CurrentUser(gctx)
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}
		user = u
		return nil
	})
	g.Go(func() error {
		a, err := b.dir.AuthorizedApps(gctx)
		if err != nil {
			return fmt.Errorf("failed to load applications: %w", err)
		}
		apps = a
		return nil
	})
	if err := g.Wait(); err != nil {
		b.logger.Warn("session bootstrap failed", zap.String("email", identity.Email), zap.Error(err))
		if errors.Is(err, ErrUnauthorized) {
			return unauthorized()
		}
		return failed(err)
	}

	if len(apps) == 0 {
		b.logger.Info("user has no authorized applications", zap.String("email", user.Email))
		return unauthorized()
	}

	st := State{Status: Ready, User: user, Apps: apps}
	if !user.HasPassword && currentPath != SetPasswordPath {
		st.Status = NeedsPassword
		st.Action = Redirect
		st.Redirect = SetPasswordPath
	}
	b.logger.Info("session ready",
		zap.String("email", user.Email),
		zap.Int("apps", len(apps)),
		zap.Stringer("status", st.Status))
	return st
}

func failed(err error) State {
	return State{Status: Failed, Action: Reload, Message: err.Error(), Err: err}
}

func unauthorized() State {
	return State{
		Status:  Unauthorized,
		Action:  SignOut,
		Message: "Your account is not authorized for any application.",
		Err:     ErrUnauthorized,
	}
}
