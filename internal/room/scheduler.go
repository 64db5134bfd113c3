// internal/room/scheduler.go
package room

import (
	"sync"
	"time"
)

// Timer keys used by the Manager. Grace timers are keyed per player with
// GraceKey.
const (
	TimerLoading   = "loading"
	TimerTurn      = "turn"
	TimerCrisis    = "crisis"
	TimerNextRound = "next-round"
)

// GraceKey names the reconnect grace timer for one player.
func GraceKey(playerID string) string {
	return "grace:" + playerID
}

type scheduledTimer struct {
	timer    *time.Timer
	deadline time.Time
}

// Scheduler owns a room's named timers. Scheduling a key that is already
// pending replaces it. Callbacks run on their own goroutine and must
// re-acquire the room lock and re-validate state before acting.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]scheduledTimer
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]scheduledTimer)}
}

// Schedule arms (or re-arms) the named timer.
func (s *Scheduler) Schedule(key string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
	}
	t := time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
	s.timers[key] = scheduledTimer{timer: t, deadline: time.Now().Add(d)}
}

// Cancel stops the named timer if pending.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.timers[key]; ok {
		existing.timer.Stop()
		delete(s.timers, key)
	}
}

// CancelRemaining stops the named timer and reports how long it had left,
// so a paused timer can later resume with the same budget.
func (s *Scheduler) CancelRemaining(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.timers[key]
	if !ok {
		return 0, false
	}
	existing.timer.Stop()
	delete(s.timers, key)
	remaining := time.Until(existing.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// CancelAll stops every pending timer. Used on room teardown.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, existing := range s.timers {
		existing.timer.Stop()
		delete(s.timers, key)
	}
}
