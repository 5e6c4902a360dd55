package session

import (
	"testing"
	"time"

	"github.com/washdeskhq/washdesk/internal/identity"
)

func TestGetOrCreate(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()

	sess, created := s.GetOrCreate("telegram:1", now)
	if !created {
		t.Fatal("first lookup should create")
	}
	if sess.Stage != StageIdentifying {
		t.Errorf("new session stage = %q, want identifying", sess.Stage)
	}

	again, created := s.GetOrCreate("telegram:1", now)
	if created {
		t.Fatal("second lookup must not create")
	}
	if again.Key != sess.Key {
		t.Errorf("key mismatch: %q vs %q", again.Key, sess.Key)
	}
	if s.Len() != 1 {
		t.Errorf("store holds %d sessions, want 1", s.Len())
	}
}

func TestUpdateMergesDataAndBumpsSeq(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()
	s.GetOrCreate("telegram:1", now)

	s.Update("telegram:1", Patch{Data: map[string]string{"a": "1", "b": "2"}}, now)
	sess := s.Update("telegram:1", Patch{Data: map[string]string{"b": "3", "c": "4"}}, now)

	if sess.Data["a"] != "1" || sess.Data["b"] != "3" || sess.Data["c"] != "4" {
		t.Errorf("data after merge = %+v", sess.Data)
	}
	if sess.Seq != 2 {
		t.Errorf("seq = %d, want 2", sess.Seq)
	}

	// Empty value deletes the key; ResetData clears the bag.
	sess = s.Update("telegram:1", Patch{Data: map[string]string{"a": ""}}, now)
	if _, ok := sess.Data["a"]; ok {
		t.Error("empty patch value must delete the key")
	}
	sess = s.Update("telegram:1", Patch{ResetData: true}, now)
	if len(sess.Data) != 0 {
		t.Errorf("data after reset = %+v, want empty", sess.Data)
	}
}

func TestUpdateBindsCustomer(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()
	s.GetOrCreate("telegram:1", now)

	c := &identity.Customer{ID: "c1", Name: "Dana"}
	sess := s.Update("telegram:1", Patch{Customer: c, BindCustomer: true}, now)
	if sess.Customer == nil || sess.Customer.ID != "c1" {
		t.Fatalf("customer = %+v, want c1 bound", sess.Customer)
	}

	// A patch without the bind flag leaves the customer alone.
	sess = s.Update("telegram:1", Patch{Touch: true}, now)
	if sess.Customer == nil {
		t.Error("customer unbound by unrelated patch")
	}
}

func TestUpdateMissingSession(t *testing.T) {
	s := NewStore(StoreConfig{})
	if got := s.Update("telegram:ghost", Patch{Touch: true}, time.Now()); got != nil {
		t.Fatalf("Update on missing session = %+v, want nil", got)
	}
}

func TestSweepFragileVsSteadyState(t *testing.T) {
	s := NewStore(StoreConfig{MaxAge: 24 * time.Hour, FragileIdle: 15 * time.Minute})
	start := time.Now()

	s.GetOrCreate("telegram:fragile", start)
	s.GetOrCreate("telegram:steady", start)
	s.Update("telegram:steady", Patch{Stage: StagePtr(StageMenu)}, start)

	// Both idle for 20 minutes: only the fragile-stage session goes.
	evicted := s.Sweep(start.Add(20 * time.Minute))
	if len(evicted) != 1 || evicted[0] != "telegram:fragile" {
		t.Fatalf("evicted = %v, want only the fragile session", evicted)
	}
	if s.Get("telegram:steady") == nil {
		t.Fatal("steady-state session evicted before max age")
	}

	// Past max age everything goes, regardless of stage or activity.
	s.Update("telegram:steady", Patch{Touch: true}, start.Add(23*time.Hour))
	evicted = s.Sweep(start.Add(25 * time.Hour))
	if len(evicted) != 1 || evicted[0] != "telegram:steady" {
		t.Fatalf("evicted = %v, want the aged-out session", evicted)
	}
}

func TestWithLockSerializesPerKey(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()
	s.GetOrCreate("telegram:1", now)

	done := make(chan struct{})
	entered := make(chan struct{})
	go s.WithLock("telegram:1", func() {
		close(entered)
		<-done
	})
	<-entered

	// A different key must not block behind the held lock.
	acquired := make(chan struct{})
	go s.WithLock("telegram:2", func() { close(acquired) })
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked behind another key's lock")
	}
	close(done)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(StoreConfig{})
	now := time.Now()
	snap, _ := s.GetOrCreate("telegram:1", now)

	snap.Data["rogue"] = "edit"
	snap.Stage = StageCompleted

	fresh := s.Get("telegram:1")
	if _, ok := fresh.Data["rogue"]; ok {
		t.Error("mutating a snapshot leaked into the store")
	}
	if fresh.Stage != StageIdentifying {
		t.Errorf("stage = %q, want identifying", fresh.Stage)
	}
}
