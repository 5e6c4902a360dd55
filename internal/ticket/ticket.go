// Package ticket issues service-request identifiers. Numbers come from a
// pluggable sequence so managed deployments share one counter via the
// database while standalone ones fall back to an in-memory counter.
package ticket

import (
	"context"
	"fmt"
	"sync"
)

// DefaultPrefix is the ticket identifier prefix.
const DefaultPrefix = "SR-"

// DefaultFloor is the lowest number the in-memory sequence will hand out.
// Kept above legacy ticket ranges so identifiers stay unambiguous.
const DefaultFloor = 5000

// Sequence hands out monotonically increasing ticket numbers.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// MemorySequence is a process-local Sequence. Numbers start above the
// floor and never repeat within the process lifetime.
type MemorySequence struct {
	mu   sync.Mutex
	last int64
}

// NewMemorySequence builds a MemorySequence starting above floor.
// A floor below DefaultFloor is raised to it.
func NewMemorySequence(floor int64) *MemorySequence {
	if floor < DefaultFloor {
		floor = DefaultFloor
	}
	return &MemorySequence{last: floor}
}

// Next returns the next ticket number.
func (m *MemorySequence) Next(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last++
	return m.last, nil
}

// Observe raises the counter to at least n. Used when a persisted counter
// is loaded at startup so restarts never reissue a number.
func (m *MemorySequence) Observe(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.last {
		m.last = n
	}
}

// Issuer formats ticket identifiers from a Sequence.
type Issuer struct {
	prefix string
	seq    Sequence
}

// NewIssuer builds an Issuer. An empty prefix means DefaultPrefix.
func NewIssuer(prefix string, seq Sequence) *Issuer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Issuer{prefix: prefix, seq: seq}
}

// Issue returns a fresh ticket identifier like "SR-5001".
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	n, err := i.seq.Next(ctx)
	if err != nil {
		return "", fmt.Errorf("ticket sequence: %w", err)
	}
	return fmt.Sprintf("%s%d", i.prefix, n), nil
}
