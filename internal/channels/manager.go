package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Per-channel outbound pacing. Platform APIs throttle around 30 msg/s;
// staying under that avoids send errors during escalation bursts.
const (
	outboundPerSecond = 25
	outboundBurst     = 5
)

// Manager owns the registered adapters: lifecycle plus outbound routing
// by identity key ({channel}:{address}), paced per channel.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	limiters map[string]*rate.Limiter
}

// NewManager creates an empty channel manager. Adapters register via
// Register before StartAll.
func NewManager() *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Register adds an adapter to the manager.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
	m.limiters[ch.Name()] = rate.NewLimiter(rate.Limit(outboundPerSecond), outboundBurst)
}

// StartAll starts every registered adapter. A single adapter failing to
// start is logged but does not stop the others.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll gracefully stops every adapter.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		slog.Info("stopping channel", "channel", name)
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	return nil
}

// Send routes text to an identity key ({channel}:{address}), waiting on
// the channel's rate limiter first.
func (m *Manager) Send(ctx context.Context, identityKey, text string) error {
	name, address, ok := strings.Cut(identityKey, ":")
	if !ok || address == "" {
		return fmt.Errorf("malformed identity key %q", identityKey)
	}

	m.mu.RLock()
	ch, exists := m.channels[name]
	limiter := m.limiters[name]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("channel %s not registered", name)
	}
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	return ch.Send(ctx, address, text)
}

// Status returns the running state of every registered channel.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}

// Names returns the registered channel names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
