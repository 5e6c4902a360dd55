package escalate

import (
	"sync"
	"testing"
	"time"

	"github.com/washdeskhq/washdesk/internal/session"
)

type fireRecorder struct {
	mu    sync.Mutex
	fires []session.Stage
	ch    chan struct{}
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan struct{}, 8)}
}

func (r *fireRecorder) fallback(_ string, stage session.Stage) {
	r.mu.Lock()
	r.fires = append(r.fires, stage)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fires)
}

func TestSchedulerFiresOnce(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fallback)
	defer s.Stop()

	s.Arm("tg:1", session.StageWaitingFeedback, 10*time.Millisecond)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if _, ok := s.Pending("tg:1"); ok {
		t.Error("timer still pending after fire")
	}
	time.Sleep(30 * time.Millisecond)
	if got := rec.count(); got != 1 {
		t.Errorf("fired %d times, want 1", got)
	}
}

func TestSchedulerRearmReplaces(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fallback)
	defer s.Stop()

	s.Arm("tg:1", session.StageProblemConfirmation, time.Hour)
	s.Arm("tg:1", session.StageWaitingFeedback, 10*time.Millisecond)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("replacement timer never fired")
	}
	time.Sleep(30 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.fires) != 1 {
		t.Fatalf("fired %d times, want exactly 1", len(rec.fires))
	}
	if rec.fires[0] != session.StageWaitingFeedback {
		t.Errorf("fired with stage %q, want stage from the second arm", rec.fires[0])
	}
}

func TestSchedulerCancel(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fallback)
	defer s.Stop()

	s.Arm("tg:1", session.StageWaitingFeedback, 20*time.Millisecond)
	s.Cancel("tg:1")
	s.Cancel("tg:never-armed")

	time.Sleep(60 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("fired %d times after cancel, want 0", got)
	}
}

func TestSchedulerKeysIndependent(t *testing.T) {
	rec := newFireRecorder()
	s := NewScheduler(rec.fallback)
	defer s.Stop()

	s.Arm("tg:1", session.StageWaitingFeedback, 10*time.Millisecond)
	s.Arm("tg:2", session.StageOrderRequest, time.Hour)

	select {
	case <-rec.ch:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	if _, ok := s.Pending("tg:2"); !ok {
		t.Error("unrelated key lost its timer")
	}
}

func TestWorthSalvaging(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", false},
		{"ok", false},
		{"the gate", true},
		{"no power", true},
		{"something is wrong with it", true},
		{"hello???", false},
	}
	for _, tt := range tests {
		if got := WorthSalvaging(tt.text); got != tt.want {
			t.Errorf("WorthSalvaging(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}
