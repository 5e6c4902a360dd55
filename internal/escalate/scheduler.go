// Package escalate arms one-shot grace timers per session. When a customer
// goes quiet in a stage that expects a reply, the timer fires once and hands
// the session back to the dialogue layer for timeout handling.
package escalate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/washdeskhq/washdesk/internal/session"
)

// FallbackFunc is invoked exactly once when an armed timer fires.
// armedStage is the stage at arming time; the handler re-reads the
// session's current stage before acting on it.
type FallbackFunc func(key string, armedStage session.Stage)

type pending struct {
	timer    *time.Timer
	stage    session.Stage
	deadline time.Time
}

// Scheduler keeps at most one pending timer per session key. Arming
// replaces any existing timer, so only the most recent arm ever fires.
type Scheduler struct {
	mu       sync.Mutex
	timers   map[string]*pending
	fallback FallbackFunc
}

// NewScheduler builds a Scheduler delivering fires to fallback.
func NewScheduler(fallback FallbackFunc) *Scheduler {
	return &Scheduler{
		timers:   make(map[string]*pending),
		fallback: fallback,
	}
}

// Arm schedules a fire for key after grace. A previous timer for the same
// key is stopped and replaced; the new deadline wins.
func (s *Scheduler) Arm(key string, stage session.Stage, grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
	}
	p := &pending{stage: stage, deadline: time.Now().Add(grace)}
	p.timer = time.AfterFunc(grace, func() { s.fire(key, p) })
	s.timers[key] = p
	slog.Debug("grace timer armed", "session", key, "stage", stage, "grace", grace)
}

// Cancel stops the pending timer for key, if any. Safe to call for keys
// that were never armed.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.timers[key]; ok {
		p.timer.Stop()
		delete(s.timers, key)
	}
}

// fire removes the pending entry before invoking the fallback so a re-arm
// from inside the handler is not clobbered afterwards. A timer that was
// replaced between scheduling and firing is ignored.
func (s *Scheduler) fire(key string, p *pending) {
	s.mu.Lock()
	cur, ok := s.timers[key]
	if !ok || cur != p {
		s.mu.Unlock()
		return
	}
	delete(s.timers, key)
	s.mu.Unlock()

	slog.Info("grace timer fired", "session", key, "stage", p.stage)
	s.fallback(key, p.stage)
}

// Pending reports whether key has an armed timer and its deadline.
func (s *Scheduler) Pending(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return p.deadline, true
}

// Stop cancels every pending timer. Used at shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, key)
	}
}
