package pages

import (
	"context"
	"fmt"
	"slices"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/optimistic"
	"github.com/noah-analytics/noah-server/internal/table"
)

func fetchApps(ctx context.Context, b Backend) ([]api.App, error) {
	return b.AuthorizedApps(ctx)
}

func appRow(a api.App) table.Row {
	return table.Row{
		"id":       a.ID,
		"name":     a.Name,
		"location": a.Location,
		"starred":  a.Starred,
		"path":     a.Path,
	}
}

// SetStarred pins or unpins an application. The star flips immediately and
// flips back if the data service refuses.
func (s *Service) SetStarred(ctx context.Context, id string, starred bool) error {
	apps, err := data[api.App](ctx, s, Apps)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(apps, func(a api.App) bool { return a.ID == id }) {
		return fmt.Errorf("application %q: %w", id, ErrNotFound)
	}

	action := "star application"
	commit := s.backend.StarApp
	if !starred {
		action = "unstar application"
		commit = s.backend.UnstarApp
	}

	return optimistic.Update(ctx, s.cache, DataKey(Apps),
		func(apps []api.App) []api.App {
			return replace(apps,
				func(a api.App) bool { return a.ID == id },
				func(a api.App) api.App {
					a.Starred = starred
					return a
				})
		},
		func(ctx context.Context) error { return commit(ctx, id) },
		optimistic.Options{Notifier: s.notifier, Action: action})
}

// StarredApps lists the pinned applications
func (s *Service) StarredApps(ctx context.Context) ([]api.App, error) {
	apps, err := data[api.App](ctx, s, Apps)
	if err != nil {
		return nil, err
	}
	var out []api.App
	for _, a := range apps {
		if a.Starred {
			out = append(out, a)
		}
	}
	return out, nil
}
