package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// RecentAppsKey stores the recently opened application ids
	RecentAppsKey = "recentApps"

	// MaxRecentApps caps the recent applications list
	MaxRecentApps = 4
)

// RecentApps returns the recently opened applications, most recent first
func RecentApps(store Store) ([]string, error) {
	data, err := store.Get(RecentAppsKey)
	if errors.Is(err, ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read recent apps: %w", err)
	}

	var apps []string
	if err := json.Unmarshal(data, &apps); err != nil {
		// A corrupted list is reset rather than surfaced
		return []string{}, nil
	}
	return apps, nil
}

// TouchRecentApp moves id to the front of the recent list, dropping
// duplicates and anything beyond MaxRecentApps.
func TouchRecentApp(store Store, id string) ([]string, error) {
	current, err := RecentApps(store)
	if err != nil {
		return nil, err
	}

	next := make([]string, 0, MaxRecentApps)
	next = append(next, id)
	for _, app := range current {
		if len(next) == MaxRecentApps {
			break
		}
		if app != id {
			next = append(next, app)
		}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recent apps: %w", err)
	}
	if err := store.Put(RecentAppsKey, data); err != nil {
		return nil, fmt.Errorf("failed to save recent apps: %w", err)
	}
	return next, nil
}

// Once runs fn the first time flag is seen and records the flag on success.
// It reports whether fn ran.
func Once(store Store, flag string, fn func() error) (bool, error) {
	key := "migration:" + flag
	if _, err := store.Get(key); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("failed to read migration flag %s: %w", flag, err)
	}

	if err := fn(); err != nil {
		return true, fmt.Errorf("migration %s failed: %w", flag, err)
	}
	if err := store.Put(key, []byte("done")); err != nil {
		return true, fmt.Errorf("failed to record migration flag %s: %w", flag, err)
	}
	return true, nil
}

// GetJSON decodes the JSON value stored under key into v.
// It returns ErrNotFound when nothing is stored.
func GetJSON(store Store, key string, v any) error {
	data, err := store.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v as JSON under key
func PutJSON(store Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}
	return store.Put(key, data)
}
