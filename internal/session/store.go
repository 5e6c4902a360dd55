package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/washdeskhq/washdesk/internal/identity"
)

// StoreConfig bounds session lifetime. Zero values fall back to defaults.
type StoreConfig struct {
	MaxAge      time.Duration // absolute cap regardless of activity
	FragileIdle time.Duration // inactivity cap while in a fragile stage
}

// DefaultStoreConfig returns the reference sweep thresholds.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxAge:      24 * time.Hour,
		FragileIdle: 15 * time.Minute,
	}
}

// Store owns the session map and its lifecycle. It is explicitly constructed
// and injected — never a package-level singleton — so tests and the gateway
// control exactly one instance each.
//
// Two lock levels exist on purpose: the store mutex guards the map itself,
// while per-key mutexes (WithLock) serialize the inbound-event path against
// the escalation-timer path for one conversation. Sessions are fully
// partitioned by key, so no cross-session locking is ever taken.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	locks    sync.Map // key → *sync.Mutex
	cfg      StoreConfig
}

// NewStore creates an empty session store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultStoreConfig().MaxAge
	}
	if cfg.FragileIdle <= 0 {
		cfg.FragileIdle = DefaultStoreConfig().FragileIdle
	}
	return &Store{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// WithLock runs fn while holding the per-key critical section. Both the
// inbound consumer and the escalation fallback must wrap their
// read-mutate-write cycle in this.
func (s *Store) WithLock(key string, fn func()) {
	l, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	fn()
}

// GetOrCreate returns a copy of the session for key, creating it in
// StageIdentifying if absent. The second result reports creation.
// A missing session is never an error.
func (s *Store) GetOrCreate(key string, now time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess.clone(), false
	}

	sess := &Session{
		Key:            key,
		Stage:          StageIdentifying,
		Data:           make(map[string]string),
		CreatedAt:      now,
		LastActivityAt: now,
	}
	s.sessions[key] = sess
	return sess.clone(), true
}

// Get returns a copy of the session, or nil if absent.
func (s *Store) Get(key string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[key]; ok {
		return sess.clone()
	}
	return nil
}

// Patch is a partial session update. Data is shallow-merged into the bag;
// ResetData clears the bag first (explicit stage reset only). Stage and
// customer binding apply only when their pointers/flags are set.
type Patch struct {
	Stage        *Stage
	Customer     *identity.Customer
	BindCustomer bool // apply Customer even when nil is not intended: set together
	Data         map[string]string
	ResetData    bool
	Turns        []Turn
	Touch        bool // refresh LastActivityAt
}

// StagePtr is a small helper for building patches.
func StagePtr(st Stage) *Stage { return &st }

// Update applies a partial update under the store lock and returns a copy of
// the committed session. Every committed update bumps Seq, which late
// asynchronous results compare against before applying their own patch.
func (s *Store) Update(key string, p Patch, now time.Time) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}

	if p.ResetData {
		sess.Data = make(map[string]string)
	}
	for k, v := range p.Data {
		if v == "" {
			delete(sess.Data, k)
			continue
		}
		sess.Data[k] = v
	}
	if p.BindCustomer {
		sess.Customer = p.Customer
	}
	if p.Stage != nil {
		sess.Stage = *p.Stage
	}
	sess.History = append(sess.History, p.Turns...)
	if p.Touch {
		sess.LastActivityAt = now
	}
	sess.Seq++
	return sess.clone()
}

// Delete removes a session and its key lock entry.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
	s.locks.Delete(key)
}

// Sweep evicts sessions past the absolute max age, and fragile-stage
// sessions idle past the much shorter fragile threshold. Returns the
// evicted keys so the caller can cancel their pending timers.
func (s *Store) Sweep(now time.Time) []string {
	s.mu.Lock()
	var evicted []string
	for key, sess := range s.sessions {
		age := now.Sub(sess.CreatedAt)
		idle := now.Sub(sess.LastActivityAt)
		switch {
		case age >= s.cfg.MaxAge:
			delete(s.sessions, key)
			evicted = append(evicted, key)
		case sess.Stage.Fragile() && idle >= s.cfg.FragileIdle:
			delete(s.sessions, key)
			evicted = append(evicted, key)
		}
	}
	s.mu.Unlock()

	for _, key := range evicted {
		s.locks.Delete(key)
	}
	if len(evicted) > 0 {
		slog.Info("session sweep", "evicted", len(evicted))
	}
	return evicted
}

// Info is a lightweight session descriptor for listing.
type Info struct {
	Key          string    `json:"key"`
	Stage        Stage     `json:"stage"`
	CustomerName string    `json:"customer,omitempty"`
	Turns        int       `json:"turns"`
	Created      time.Time `json:"created"`
	LastActivity time.Time `json:"last_activity"`
}

// List returns descriptors for all live sessions.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Info, 0, len(s.sessions))
	for _, sess := range s.sessions {
		info := Info{
			Key:          sess.Key,
			Stage:        sess.Stage,
			Turns:        len(sess.History),
			Created:      sess.CreatedAt,
			LastActivity: sess.LastActivityAt,
		}
		if sess.Customer != nil {
			info.CustomerName = sess.Customer.Name
		}
		out = append(out, info)
	}
	return out
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
