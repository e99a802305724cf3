package table

import (
	"errors"
	"fmt"

	"github.com/noah-analytics/noah-server/internal/prefs"
)

type visibilityPersistence struct {
	store prefs.Store
	key   string
}

// VisibilityKey is the preference key holding a page's column visibility
func VisibilityKey(page string) string {
	return "columnVisibility:" + page
}

// IsVisible reports whether a column is shown
func (t *Table) IsVisible(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visibility[id]
}

// Visibility returns a copy of the visibility of every column
func (t *Table) Visibility() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]bool, len(t.visibility))
	for k, v := range t.visibility {
		out[k] = v
	}
	return out
}

// VisibleColumns returns the shown columns in display order
func (t *Table) VisibleColumns() []ColumnDef {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []ColumnDef
	for _, c := range t.columns {
		if t.visibility[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// SetColumnVisibility shows or hides a column and saves the preference when
// the table is bound to a store.
func (t *Table) SetColumnVisibility(id string, visible bool) error {
	if _, ok := t.Column(id); !ok {
		return fmt.Errorf("unknown column %q", id)
	}

	t.mu.Lock()
	t.visibility[id] = visible
	// global search only looks at visible columns
	if t.global != "" {
		t.invalidateLocked()
	}
	persist := t.persist
	snapshot := make(map[string]bool, len(t.visibility))
	for k, v := range t.visibility {
		snapshot[k] = v
	}
	t.mu.Unlock()

	if persist == nil {
		return nil
	}
	if err := prefs.PutJSON(persist.store, persist.key, snapshot); err != nil {
		return fmt.Errorf("failed to save column visibility: %w", err)
	}
	return nil
}

// BindVisibility restores the saved column visibility of page from store and
// keeps saving every later change there. Saved entries for columns that no
// longer exist are ignored.
func (t *Table) BindVisibility(store prefs.Store, page string) error {
	key := VisibilityKey(page)

	var saved map[string]bool
	err := prefs.GetJSON(store, key, &saved)
	if err != nil && !errors.Is(err, prefs.ErrNotFound) {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, visible := range saved {
		if _, ok := t.byID[id]; ok {
			t.visibility[id] = visible
		}
	}
	t.persist = &visibilityPersistence{store: store, key: key}
	t.invalidateLocked()
	return nil
}

// legacyVisibilityKey held the hidden column ids of a page as a JSON list
func legacyVisibilityKey(page string) string {
	return page + "HiddenColumns"
}

// MigrateVisibility moves the hidden-column lists saved by older versions
// into the per-page visibility maps. It runs once per store.
func MigrateVisibility(store prefs.Store, pages []string) (bool, error) {
	return prefs.Once(store, "v2-visibility", func() error {
		for _, page := range pages {
			var hidden []string
			err := prefs.GetJSON(store, legacyVisibilityKey(page), &hidden)
			if errors.Is(err, prefs.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			visibility := map[string]bool{}
			if err := prefs.GetJSON(store, VisibilityKey(page), &visibility); err != nil && !errors.Is(err, prefs.ErrNotFound) {
				return err
			}
			for _, id := range hidden {
				if _, set := visibility[id]; !set {
					visibility[id] = false
				}
			}
			if err := prefs.PutJSON(store, VisibilityKey(page), visibility); err != nil {
				return err
			}
			if err := store.Delete(legacyVisibilityKey(page)); err != nil {
				return fmt.Errorf("failed to drop legacy visibility of %s: %w", page, err)
			}
		}
		return nil
	})
}
