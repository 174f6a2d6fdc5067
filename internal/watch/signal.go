package watch

import "sync"

// Activity is a one-shot flag set the first time visible server output
// occurs within one race-loop iteration. Safe to set repeatedly and to
// wait on redundantly; set at most once.
type Activity struct {
	once sync.Once
	ch   chan struct{}
}

// NewActivity creates an unset activity signal.
func NewActivity() *Activity {
	return &Activity{ch: make(chan struct{})}
}

// Set marks activity. Idempotent.
func (a *Activity) Set() {
	if a == nil {
		return
	}
	a.once.Do(func() { close(a.ch) })
}

// Done returns a channel closed once activity has occurred.
func (a *Activity) Done() <-chan struct{} {
	return a.ch
}
