package pages

import (
	"context"
	"fmt"
	"io"
	"slices"

	"go.uber.org/zap"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/optimistic"
	"github.com/noah-analytics/noah-server/internal/table"
)

func fetchAccess(ctx context.Context, b Backend) ([]api.AccessEntry, error) {
	return b.AccessList(ctx)
}

func accessRow(e api.AccessEntry) table.Row {
	status := "inactive"
	if e.Active {
		status = "active"
	}
	var lastLogin any
	if !e.LastLogin.IsZero() {
		lastLogin = e.LastLogin
	}
	return table.Row{
		"name":       e.Name,
		"email":      e.Email,
		"role":       e.Role,
		"facilities": e.Facilities,
		"apps":       e.Apps,
		"status":     status,
		"last_login": lastLogin,
	}
}

func applyAccessUpdate(e api.AccessEntry, u api.AccessUpdate) api.AccessEntry {
	if u.Role != "" {
		e.Role = u.Role
	}
	if u.Facilities != nil {
		e.Facilities = slices.Clone(u.Facilities)
	}
	if u.Apps != nil {
		e.Apps = slices.Clone(u.Apps)
	}
	if u.Active != nil {
		e.Active = *u.Active
	}
	return e
}

// UpdateAccess changes an account optimistically and refetches the access
// list once the data service confirms.
func (s *Service) UpdateAccess(ctx context.Context, email string, update api.AccessUpdate) error {
	items, err := data[api.AccessEntry](ctx, s, Access)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(items, func(e api.AccessEntry) bool { return e.Email == email }) {
		return fmt.Errorf("account %q: %w", email, ErrNotFound)
	}

	return optimistic.Update(ctx, s.cache, DataKey(Access),
		func(items []api.AccessEntry) []api.AccessEntry {
			return replace(items,
				func(e api.AccessEntry) bool { return e.Email == email },
				func(e api.AccessEntry) api.AccessEntry { return applyAccessUpdate(e, update) })
		},
		func(ctx context.Context) error {
			_, err := s.backend.UpdateAccess(ctx, email, update)
			return err
		},
		optimistic.Options{Notifier: s.notifier, Action: "update access", Invalidate: true})
}

// UploadPhoto replaces the signed-in user's profile photo
func (s *Service) UploadPhoto(ctx context.Context, filename string, content io.Reader) (*api.User, error) {
	u, err := s.backend.UploadPhoto(ctx, filename, content)
	if err != nil {
		s.notifier.Push(notify.Error, fmt.Sprintf("Failed to upload photo: %v", err))
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}
	s.notifier.Push(notify.Success, "Profile photo updated")
	return u, nil
}

// Impersonate makes the session act as email. Every page's data belongs to
// the previous identity, so all of it is refetched.
func (s *Service) Impersonate(ctx context.Context, email string) (*api.User, error) {
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	u, err := s.backend.Impersonate(ctx, email)
	if err != nil {
		s.notifier.Push(notify.Error, fmt.Sprintf("Failed to impersonate %s: %v", email, err))
		return nil, fmt.Errorf("failed to impersonate %s: %w", email, err)
	}
	s.logger.Info("impersonating", zap.String("email", email))
	s.invalidateAll()
	s.notifier.Push(notify.Info, "Now acting as "+email)
	return u, nil
}

// StopImpersonating returns the session to the administrator
func (s *Service) StopImpersonating(ctx context.Context) error {
	if err := s.backend.StopImpersonating(ctx); err != nil {
		s.notifier.Push(notify.Error, fmt.Sprintf("Failed to stop impersonating: %v", err))
		return fmt.Errorf("failed to stop impersonating: %w", err)
	}
	s.logger.Info("stopped impersonating")
	s.invalidateAll()
	return nil
}

func (s *Service) invalidateAll() {
	for _, page := range s.Pages() {
		s.cache.Invalidate(page)
	}
}
