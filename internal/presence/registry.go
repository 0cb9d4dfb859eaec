// Package presence maps assumed identities (full names) to the connection
// currently representing them on this process.
package presence

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/example/dispatch-relay/internal/models"
)

// Conn is the slice of a connection the registry needs.
type Conn interface {
	ID() string
	Send(event string, data any)
}

var ErrInvalidProfile = errors.New("profile is missing required name fields")

// Entry is one identity's presence on this process.
type Entry struct {
	Key      string
	Role     models.Role
	Profile  models.Profile
	Location *models.Location
	Conn     Conn
}

// Registry holds at most one entry per identity key. A later registration
// under the same key overwrites the earlier mapping; the superseded
// connection is returned to the caller and stays open.
type Registry struct {
	mu     sync.RWMutex
	byKey  map[string]*Entry
	byConn map[string]string // connection id -> identity key
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byKey:  make(map[string]*Entry),
		byConn: make(map[string]string),
		logger: logger,
	}
}

// Register upserts the presence entry for profile's full name. It returns
// the connection that previously held the identity, if any and if it is a
// different connection.
func (r *Registry) Register(role models.Role, profile models.Profile, loc *models.Location, conn Conn) (Conn, error) {
	key := profile.FullName()
	if key == "" {
		return nil, ErrInvalidProfile
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded Conn
	if prev, ok := r.byKey[key]; ok && prev.Conn.ID() != conn.ID() {
		superseded = prev.Conn
		delete(r.byConn, prev.Conn.ID())
	}
	// A connection re-registering under a new name releases its old key.
	if oldKey, ok := r.byConn[conn.ID()]; ok && oldKey != key {
		delete(r.byKey, oldKey)
	}

	r.byKey[key] = &Entry{Key: key, Role: role, Profile: profile, Location: loc, Conn: conn}
	r.byConn[conn.ID()] = key

	r.logger.Info("identity registered", "identity", key, "role", string(role), "conn_id", conn.ID())
	return superseded, nil
}

// UpdateLocation mutates the last known location of the identity held by
// connID. Unregistered connections are silently ignored.
func (r *Registry) UpdateLocation(connID string, loc models.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byConn[connID]
	if !ok {
		return
	}
	if e, ok := r.byKey[key]; ok {
		e.Location = &loc
	}
}

// LookupByIdentity resolves a full name to its live connection.
func (r *Registry) LookupByIdentity(key string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	return e.Conn, true
}

// RemoveByConnection drops the entry owned by connID, if any. Called on
// disconnect; removing an unregistered connection is a no-op.
func (r *Registry) RemoveByConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)
	// The key may have been overwritten by a newer connection; only remove
	// the entry if it still points at us.
	if e, ok := r.byKey[key]; ok && e.Conn.ID() == connID {
		delete(r.byKey, key)
		r.logger.Info("identity removed", "identity", key, "conn_id", connID)
	}
}

// Snapshot lists the current entries for the admin API.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.byKey))
	for _, e := range r.byKey {
		out = append(out, *e)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
