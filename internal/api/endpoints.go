package api

import (
	"context"
	"errors"
	"io"
	"net/url"
	"time"
)

// Identity is the signed-in principal as reported by the session provider
type Identity struct {
	Email string `json:"email"`
}

// User is the profile of the signed-in user
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Role        string `json:"role"`
	HasPassword bool   `json:"has_password"`
	PhotoURL    string `json:"photo_url,omitempty"`
	// ImpersonatedBy is set while an administrator acts as this user
	ImpersonatedBy string `json:"impersonated_by,omitempty"`
}

// App is one application/location the user is authorized for
type App struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Location string `json:"location,omitempty"`
	Starred  bool   `json:"starred"`
}

// QualityMeasure is one NHQI measure score of a facility for a quarter
type QualityMeasure struct {
	Facility        string  `json:"facility"`
	State           string  `json:"state"`
	Measure         string  `json:"measure"`
	MeasureType     string  `json:"measure_type"` // "short_stay" or "long_stay"
	Quarter         string  `json:"quarter"`
	Score           float64 `json:"score"`
	NationalAverage float64 `json:"national_average"`
	StateAverage    float64 `json:"state_average"`
	LowerIsBetter   bool    `json:"lower_is_better"`
}

// TriggerReview is a progress note flagged by trigger words
type TriggerReview struct {
	ID           string    `json:"id"`
	Patient      string    `json:"patient"`
	Facility     string    `json:"facility"`
	NoteDate     time.Time `json:"note_date"`
	NoteType     string    `json:"note_type"`
	Author       string    `json:"author"`
	NoteText     string    `json:"note_text"`
	TriggerWords []string  `json:"trigger_words"`
	Category     string    `json:"category"`
	Comment      string    `json:"comment,omitempty"`
	// Thumb is +1, -1 or 0 when not yet rated
	Thumb int `json:"thumb"`
}

// TriggerFeedback is the reviewer's verdict on a TriggerReview
type TriggerFeedback struct {
	Comment string `json:"comment,omitempty"`
	Thumb   int    `json:"thumb"`
}

// MDSSuggestion is one MDS/PDPM coding suggestion for a patient
type MDSSuggestion struct {
	ID             string    `json:"id"`
	Patient        string    `json:"patient"`
	Facility       string    `json:"facility"`
	AssessmentDate time.Time `json:"assessment_date"`
	Section        string    `json:"section"`
	Item           string    `json:"item"`
	Current        string    `json:"current"`
	Suggested      string    `json:"suggested"`
	Evidence       string    `json:"evidence"`
	PDPMImpact     float64   `json:"pdpm_impact"`
	Status         string    `json:"status"` // "open", "accepted", "rejected"
}

// MDSReview accepts or rejects an MDSSuggestion
type MDSReview struct {
	Decision string `json:"decision"` // "accepted" or "rejected"
	Comment  string `json:"comment,omitempty"`
}

// CashflowPoint is one day of the cash-flow forecast
type CashflowPoint struct {
	Date      time.Time `json:"date"`
	Facility  string    `json:"facility"`
	Actual    *float64  `json:"actual"`
	Predicted float64   `json:"predicted"`
	Lower     float64   `json:"lower"`
	Upper     float64   `json:"upper"`
}

// AccessEntry is one account on the access list
type AccessEntry struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Facilities []string  `json:"facilities"`
	Apps       []string  `json:"apps"`
	Active     bool      `json:"active"`
	LastLogin  time.Time `json:"last_login,omitzero"`
}

// AccessUpdate changes an account's role, facilities or apps
type AccessUpdate struct {
	Role       string   `json:"role,omitempty"`
	Facilities []string `json:"facilities,omitempty"`
	Apps       []string `json:"apps,omitempty"`
	Active     *bool    `json:"active,omitempty"`
}

// Event is one entry of the event/incident tracker
type Event struct {
	ID          string    `json:"id"`
	Facility    string    `json:"facility"`
	Patient     string    `json:"patient,omitempty"`
	Type        string    `json:"type"`
	Severity    string    `json:"severity"`
	OccurredAt  time.Time `json:"occurred_at"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
}

// DateWindow narrows list fetches to [From, To]; zero bounds are open
type DateWindow struct {
	From time.Time
	To   time.Time
}

func (w DateWindow) values() url.Values {
	q := url.Values{}
	if !w.From.IsZero() {
		q.Set("from", w.From.Format("2006-01-02"))
	}
	if !w.To.IsZero() {
		q.Set("to", w.To.Format("2006-01-02"))
	}
	return q
}

// Session asks the session provider who is signed in. A nil identity means
// there is no session.
func (c *Client) Session(ctx context.Context) (*Identity, error) {
	var id Identity
	err := c.Get(ctx, "/auth/session", nil, &id)
	if IsUnauthorized(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if id.Email == "" {
		return nil, nil
	}
	return &id, nil
}

// Wait makes Client a session provider: the session lookup is the loading
// phase, so it returns once the lookup settles.
func (c *Client) Wait(ctx context.Context) (*Identity, error) {
	return c.Session(ctx)
}

// SignOut ends the session
func (c *Client) SignOut(ctx context.Context) error {
	return c.Post(ctx, "/auth/logout", nil, nil)
}

// CurrentUser fetches the signed-in user's profile
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.Get(ctx, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthorizedApps lists the applications the user may open
func (c *Client) AuthorizedApps(ctx context.Context) ([]App, error) {
	var apps []App
	if err := c.Get(ctx, "/users/me/apps", nil, &apps); err != nil {
		return nil, err
	}
	return apps, nil
}

// StarApp pins an application to the user's dashboard
func (c *Client) StarApp(ctx context.Context, id string) error {
	return c.Post(ctx, "/users/me/apps/"+url.PathEscape(id)+"/star", nil, nil)
}

// UnstarApp unpins an application
func (c *Client) UnstarApp(ctx context.Context, id string) error {
	return c.Delete(ctx, "/users/me/apps/"+url.PathEscape(id)+"/star", nil)
}

// UploadPhoto replaces the user's profile photo
func (c *Client) UploadPhoto(ctx context.Context, filename string, content io.Reader) (*User, error) {
	var u User
	if err := c.Upload(ctx, "/users/me/photo", "photo", filename, content, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Impersonate makes the session act as email; the data service swaps the
// session cookie.
func (c *Client) Impersonate(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, errors.New("email is required")
	}
	var u User
	if err := c.Post(ctx, "/auth/impersonate", map[string]string{"email": email}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// StopImpersonating returns the session to the administrator
func (c *Client) StopImpersonating(ctx context.Context) error {
	return c.Delete(ctx, "/auth/impersonate", nil)
}

// QualityMeasures lists NHQI measures, optionally for one facility
func (c *Client) QualityMeasures(ctx context.Context, facility string) ([]QualityMeasure, error) {
	q := url.Values{}
	if facility != "" {
		q.Set("facility", facility)
	}
	var out []QualityMeasure
	if err := c.Get(ctx, "/nhqi/measures", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TriggerReviews lists notes flagged by trigger words in window
func (c *Client) TriggerReviews(ctx context.Context, window DateWindow) ([]TriggerReview, error) {
	var out []TriggerReview
	if err := c.Get(ctx, "/trigger-words/reviews", window.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitTriggerFeedback records a comment and thumbs-up/down on a review
func (c *Client) SubmitTriggerFeedback(ctx context.Context, id string, fb TriggerFeedback) error {
	return c.Post(ctx, "/trigger-words/reviews/"+url.PathEscape(id)+"/feedback", fb, nil)
}

// MDSSuggestions lists open and reviewed MDS/PDPM suggestions
func (c *Client) MDSSuggestions(ctx context.Context) ([]MDSSuggestion, error) {
	var out []MDSSuggestion
	if err := c.Get(ctx, "/mds/suggestions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitMDSReview accepts or rejects a suggestion
func (c *Client) SubmitMDSReview(ctx context.Context, id string, review MDSReview) error {
	return c.Post(ctx, "/mds/suggestions/"+url.PathEscape(id)+"/review", review, nil)
}

// CashflowForecast fetches the forecast series, optionally for one facility
func (c *Client) CashflowForecast(ctx context.Context, facility string) ([]CashflowPoint, error) {
	q := url.Values{}
	if facility != "" {
		q.Set("facility", facility)
	}
	var out []CashflowPoint
	if err := c.Get(ctx, "/cashflow/predictions", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccessList lists the accounts the user administers
func (c *Client) AccessList(ctx context.Context) ([]AccessEntry, error) {
	var out []AccessEntry
	if err := c.Get(ctx, "/access/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAccess changes one account and returns it as stored
func (c *Client) UpdateAccess(ctx context.Context, email string, update AccessUpdate) (*AccessEntry, error) {
	var out AccessEntry
	if err := c.Put(ctx, "/access/users/"+url.PathEscape(email), update, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Events lists tracked events/incidents in window
func (c *Client) Events(ctx context.Context, window DateWindow) ([]Event, error) {
	var out []Event
	if err := c.Get(ctx, "/events", window.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}
