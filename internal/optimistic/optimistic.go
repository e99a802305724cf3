// Package optimistic applies cache updates before the data service confirms
// them and rolls them back when it refuses.
package optimistic

import (
	"context"
	"fmt"

	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/query"
)

// Options tune one optimistic update
type Options struct {
	// Notifier receives an error toast when the commit fails
	Notifier notify.Notifier
	// Action names the update in the toast, e.g. "star application"
	Action string
	// Invalidate refetches the key after a successful commit
	Invalidate bool
}

// Update snapshots key, writes apply(current) to the cache, then calls
// commit once. On failure the snapshot is restored and an error toast is
// pushed. Any in-flight fetch of key is cancelled first so it cannot
// overwrite the optimistic value.
func Update[T any](ctx context.Context, cache *query.Cache, key string, apply func(T) T, commit func(ctx context.Context) error, opts Options) error {
	cache.Cancel(key)
	snap := cache.Snapshot(key)

	current, _ := query.GetAs[T](cache, key)
	cache.Set(key, apply(current))

	if err := commit(ctx); err != nil {
		cache.Restore(snap)

		action := opts.Action
		if action == "" {
			action = "save changes"
		}
		if opts.Notifier != nil {
			opts.Notifier.Push(notify.Error, fmt.Sprintf("Failed to %s: %v", action, err))
		}
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	if opts.Invalidate {
		cache.Invalidate(key)
	}
	return nil
}
