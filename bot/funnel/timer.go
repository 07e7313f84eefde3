package funnel

import (
	"sync"
	"time"
)

// WakeFunc is called when a delay elapses for a (bot, user) pair.
type WakeFunc func(botID string, userID, chatID int64)

// WakeTimer schedules in-process wakeups for delay steps. One pending timer
// per user; scheduling again replaces the previous one. Timers do not
// survive a restart, the engine re-arms them lazily from persisted
// DelayedUntil stamps when the user is next seen.
type WakeTimer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	wake   WakeFunc
}

func NewWakeTimer(wake WakeFunc) *WakeTimer {
	return &WakeTimer{
		timers: make(map[string]*time.Timer),
		wake:   wake,
	}
}

// Schedule arms a wakeup after d. A non-positive d fires on the next tick.
func (w *WakeTimer) Schedule(botID string, userID, chatID int64, d time.Duration) {
	if d < 0 {
		d = 0
	}
	key := lockKey(botID, userID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	w.timers[key] = time.AfterFunc(d, func() {
		w.mu.Lock()
		delete(w.timers, key)
		w.mu.Unlock()
		w.wake(botID, userID, chatID)
	})
}

// Cancel drops a pending wakeup, if any.
func (w *WakeTimer) Cancel(botID string, userID int64) {
	key := lockKey(botID, userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[key]; ok {
		t.Stop()
		delete(w.timers, key)
	}
}

// Stop cancels every pending wakeup.
func (w *WakeTimer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
}
