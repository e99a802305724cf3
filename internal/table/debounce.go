package table

import (
	"sync"
	"time"
)

// TextInput debounces keystrokes of a free-text filter widget: the value is
// applied once no new keystroke arrived for the delay.
type TextInput struct {
	mu      sync.Mutex
	delay   time.Duration
	apply   func(string)
	after   func(string)
	timer   *time.Timer
	pending string
	dirty   bool
}

// NewTextInput creates a debounced input calling apply with the settled value
func NewTextInput(delay time.Duration, apply func(string)) *TextInput {
	return &TextInput{delay: delay, apply: apply}
}

// ColumnInput returns a debounced input bound to a text column filter
func (t *Table) ColumnInput(id string, delay time.Duration) *TextInput {
	return NewTextInput(delay, func(s string) {
		t.SetColumnFilter(id, TextValue(s))
	})
}

// GlobalInput returns a debounced input bound to the global search
func (t *Table) GlobalInput(delay time.Duration) *TextInput {
	return NewTextInput(delay, t.SetGlobalFilter)
}

// OnApply registers fn to run after each settled value was applied
func (in *TextInput) OnApply(fn func(string)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.after = fn
}

// Type records a new value and restarts the quiet period
func (in *TextInput) Type(s string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.pending = s
	in.dirty = true
	if in.timer != nil {
		in.timer.Stop()
	}
	in.timer = time.AfterFunc(in.delay, in.Flush)
}

// Flush applies the pending value immediately
func (in *TextInput) Flush() {
	in.mu.Lock()
	if !in.dirty {
		in.mu.Unlock()
		return
	}
	value, after := in.pending, in.after
	in.dirty = false
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
	in.mu.Unlock()

	in.apply(value)
	if after != nil {
		after(value)
	}
}

// Stop drops any pending value
func (in *TextInput) Stop() {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.dirty = false
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}
