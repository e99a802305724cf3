package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCenter_AutoDismissExceptErrors(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)}
	c := NewCenter(WithClock(clock.Now), WithTTL(time.Second))

	c.Push(Info, "saved")
	c.Push(Success, "review submitted")
	failure := c.Errorf("failed to star %s", "NHQI")
	require.Len(t, c.Active(), 3)

	clock.Advance(999 * time.Millisecond)
	assert.Len(t, c.Active(), 3)

	clock.Advance(time.Millisecond)
	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, failure.ID, active[0].ID)
	assert.Equal(t, "failed to star NHQI", active[0].Message)
	assert.True(t, active[0].ExpiresAt.IsZero())

	clock.Advance(time.Hour)
	assert.Len(t, c.Active(), 1, "errors stay until dismissed")

	assert.True(t, c.Dismiss(failure.ID))
	assert.False(t, c.Dismiss(failure.ID))
	assert.Empty(t, c.Active())
}

func TestCenter_UniqueIDs(t *testing.T) {
	c := NewCenter()
	a := c.Push(Info, "a")
	b := c.Push(Info, "a")
	assert.NotEqual(t, a.ID, b.ID)
}

func TestCenter_LogsWarningsAndErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c := NewCenter(WithLogger(zap.New(core)))

	c.Push(Info, "quiet")
	c.Push(Warning, "slow network")
	c.Push(Error, "request failed")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "request failed", entries[1].ContextMap()["message"])
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{Info, "info"},
		{Success, "success"},
		{Warning, "warning"},
		{Error, "error"},
		{Severity(9), "Severity(9)"},
	}
	for _, tt := range tests {
		if got := tt.sev.String(); got != tt.want {
			t.Errorf("Severity(%d).String() = %q, want %q", int(tt.sev), got, tt.want)
		}
	}
}
