// Package recovery lets a client that reconnects shortly after a drop
// resume its room memberships without re-joining by hand. Presence is
// deliberately not restored; clients re-send assume-identity on connect.
package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/dispatch-relay/internal/observability"
)

type snapshot struct {
	rooms          []string
	disconnectedAt time.Time
}

// Manager holds per-token room snapshots for the configured grace window.
type Manager struct {
	mu       sync.Mutex
	window   time.Duration
	sessions map[string]snapshot
	logger   *slog.Logger

	now func() time.Time // test hook
}

func NewManager(window time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		window:   window,
		sessions: make(map[string]snapshot),
		logger:   logger,
		now:      time.Now,
	}
}

// Remember snapshots a disconnecting connection's rooms under its resume
// token. An empty room list is still remembered so that a quick reconnect
// is recognized as a resume.
func (m *Manager) Remember(token string, rooms []string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	m.sessions[token] = snapshot{rooms: rooms, disconnectedAt: m.now()}
	m.mu.Unlock()
}

// Resume redeems a token. Within the grace window it returns the prior
// room memberships; otherwise the token is unknown or stale and the
// connection is treated as entirely new. A token can be redeemed once.
func (m *Manager) Resume(token string) ([]string, bool) {
	if token == "" {
		return nil, false
	}
	m.mu.Lock()
	snap, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	if m.now().Sub(snap.disconnectedAt) > m.window {
		observability.RecoveryExpiredTotal.Inc()
		m.logger.Info("resume token expired", "rooms", len(snap.rooms))
		return nil, false
	}
	observability.RecoveryResumedTotal.Inc()
	return snap.rooms, true
}

// GC drops snapshots past the grace window.
func (m *Manager) GC() int {
	cutoff := m.now().Add(-m.window)
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for token, snap := range m.sessions {
		if snap.disconnectedAt.Before(cutoff) {
			delete(m.sessions, token)
			removed++
			observability.RecoveryExpiredTotal.Inc()
		}
	}
	return removed
}

// Run garbage-collects stale snapshots until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	interval := m.window / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.GC()
		}
	}
}
