package lounge

import "time"

// timer names; at most one live instance per name per session
const (
	TimerExpiry          = "expiry"
	TimerWarning         = "warning"
	TimerDisconnectGrace = "disconnect_grace"
	TimerPayingGrace     = "paying_grace"
)

// timerTable holds a session's named delayed actions so they can be canceled
// atomically when the session ends. Not self-locking: every method is called
// under the orchestrator mutex.
type timerTable struct {
	timers map[string]*time.Timer
}

// arms a timer under the given name, firing the action at the absolute time
// `at` (already elapsed fires immediately). First writer wins: a second
// schedule under a live name is refused.
func (t *timerTable) scheduleAt(name string, at time.Time, action func()) error {
	if t.timers == nil {
		t.timers = make(map[string]*time.Timer)
	}

	if _, exists := t.timers[name]; exists {
		return ErrDuplicateTimer
	}

	t.timers[name] = time.AfterFunc(max(time.Until(at), 0), action)

	return nil
}

// arms a timer firing after the given delay; same first-writer-wins rule
func (t *timerTable) schedule(name string, delay time.Duration, action func()) error {
	return t.scheduleAt(name, time.Now().Add(delay), action)
}

// reports whether a timer is currently armed under the name
func (t *timerTable) armed(name string) bool {
	_, exists := t.timers[name]
	return exists
}

// stops and forgets the named timer if armed
func (t *timerTable) cancel(name string) {
	timer, exists := t.timers[name]
	if !exists {
		return
	}

	timer.Stop()
	delete(t.timers, name)
}

// stops and forgets every timer unconditionally
func (t *timerTable) cancelAll() {
	for name, timer := range t.timers {
		timer.Stop()
		delete(t.timers, name)
	}
}
