package session

import (
	"fmt"

	"github.com/noah-analytics/noah-server/internal/api"
	"github.com/noah-analytics/noah-server/internal/notify"
	"github.com/noah-analytics/noah-server/internal/prefs"
	"github.com/noah-analytics/noah-server/internal/query"
)

// Deps are the long-lived services a session context hands to pages
type Deps struct {
	API    *api.Client
	Prefs  prefs.Store
	Cache  *query.Cache
	Notify *notify.Center
}

// Context is the application context of one authorized session. It lives
// from bootstrap until sign-out or an identity change.
type Context struct {
	Deps
	User *api.User
	Apps []api.App
}

// NewContext builds the context of an authorized bootstrap state
func NewContext(st State, deps Deps) (*Context, error) {
	if !st.Authorized() {
		return nil, fmt.Errorf("cannot build a session context in state %s: %w", st.Status, ErrUnauthorized)
	}
	return &Context{Deps: deps, User: st.User, Apps: st.Apps}, nil
}

// App returns the authorized application with id
func (c *Context) App(id string) (api.App, bool) {
	for _, a := range c.Apps {
		if a.ID == id {
			return a, true
		}
	}
	return api.App{}, false
}

// OpenApp records id as the most recently opened application and returns
// the updated recent list.
func (c *Context) OpenApp(id string) ([]string, error) {
	if _, ok := c.App(id); !ok {
		return nil, fmt.Errorf("application %q: %w", id, ErrUnauthorized)
	}
	return prefs.TouchRecentApp(c.Prefs, id)
}

// RecentApps returns the recently opened applications the user may still
// open, most recent first.
func (c *Context) RecentApps() ([]api.App, error) {
	ids, err := prefs.RecentApps(c.Prefs)
	if err != nil {
		return nil, err
	}
	var out []api.App
	for _, id := range ids {
		if a, ok := c.App(id); ok {
			out = append(out, a)
		}
	}
	return out, nil
}
