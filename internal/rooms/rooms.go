// Package rooms manages named broadcast groups. Rooms come into existence
// on first join and are removed when the last member leaves; local delivery
// is FIFO in the order broadcasts are made on this process.
package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/models"
	"github.com/example/dispatch-relay/internal/observability"
)

// Conn is the slice of a connection the room manager needs.
type Conn interface {
	ID() string
	Send(event string, data any)
}

// Publisher mirrors local broadcasts to the rest of the fleet.
type Publisher interface {
	Publish(ctx context.Context, env fanout.Envelope) error
}

type Manager struct {
	mu     sync.Mutex
	rooms  map[string]map[string]Conn // room id -> conn id -> conn
	byConn map[string]map[string]bool // conn id -> room ids
	bus    Publisher
	origin string
	logger *slog.Logger
}

// NewManager builds a room manager that publishes every broadcast on bus
// with the given origin. A nil bus keeps everything process-local.
func NewManager(bus Publisher, origin string, logger *slog.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]map[string]Conn),
		byConn: make(map[string]map[string]bool),
		bus:    bus,
		origin: origin,
		logger: logger,
	}
}

// Join adds conn to roomID, creating the room if needed. Joining twice is a
// no-op. The joiner gets a room-joined event; existing members get
// user-joined.
func (m *Manager) Join(conn Conn, roomID string) {
	m.mu.Lock()
	members, ok := m.rooms[roomID]
	if !ok {
		members = make(map[string]Conn)
		m.rooms[roomID] = members
		observability.RoomsActive.Inc()
	}
	if _, already := members[conn.ID()]; already {
		m.mu.Unlock()
		return
	}
	members[conn.ID()] = conn
	if m.byConn[conn.ID()] == nil {
		m.byConn[conn.ID()] = make(map[string]bool)
	}
	m.byConn[conn.ID()][roomID] = true
	peers := othersLocked(members, conn.ID())
	m.mu.Unlock()

	m.logger.Info("room joined", "room", roomID, "conn_id", conn.ID(), "members", len(peers)+1)

	conn.Send(models.EventRoomJoined, models.RoomJoined{
		RoomID:  roomID,
		Message: fmt.Sprintf("Successfully joined room: %s", roomID),
	})
	notice := models.RoomPresence{
		UserID:  conn.ID(),
		RoomID:  roomID,
		Message: fmt.Sprintf("User %s joined the room", conn.ID()),
	}
	for _, peer := range peers {
		peer.Send(models.EventUserJoined, notice)
	}
}

// Leave removes conn from roomID. Leaving a room the connection is not in
// is a no-op.
func (m *Manager) Leave(conn Conn, roomID string) {
	m.mu.Lock()
	peers, left := m.leaveLocked(conn.ID(), roomID)
	m.mu.Unlock()
	if !left {
		return
	}
	m.logger.Info("room left", "room", roomID, "conn_id", conn.ID())
	m.notifyLeft(peers, conn.ID(), roomID, fmt.Sprintf("User %s left the room", conn.ID()))
}

// BroadcastToRoom delivers message to every local member of roomID and
// mirrors it on the fanout bus for the other instances. From is the sender
// label echoed to receivers.
func (m *Manager) BroadcastToRoom(ctx context.Context, roomID, from, message string) {
	env := fanout.NewEnvelope(fanout.KindRoomMessage, roomID, message, from, m.origin)
	out := models.RoomMessageOut{RoomID: roomID, From: from, Message: message, Timestamp: env.Timestamp}

	// Sends are non-blocking enqueues, so delivering under the lock is
	// cheap and keeps local delivery FIFO in call order.
	m.mu.Lock()
	for _, member := range m.rooms[roomID] {
		member.Send(models.EventRoomMessage, out)
	}
	m.mu.Unlock()
	observability.RoomMessagesTotal.Inc()

	if m.bus != nil {
		if err := m.bus.Publish(ctx, env); err != nil {
			m.logger.Warn("fanout publish failed", "room", roomID, "error", err)
			return
		}
		observability.FanoutPublishedTotal.Inc()
	}
}

// DeliverLocal hands an envelope that originated elsewhere to this
// process's members. It never republishes.
func (m *Manager) DeliverLocal(env fanout.Envelope) {
	out := models.RoomMessageOut{RoomID: env.RoomID, From: env.From, Message: env.Message, Timestamp: env.Timestamp}
	m.mu.Lock()
	for _, member := range m.rooms[env.RoomID] {
		member.Send(models.EventRoomMessage, out)
	}
	m.mu.Unlock()
}

// OnDisconnect removes connID from every room it belonged to, notifying
// each room's remaining members.
func (m *Manager) OnDisconnect(connID string) {
	m.mu.Lock()
	roomIDs := make([]string, 0, len(m.byConn[connID]))
	for roomID := range m.byConn[connID] {
		roomIDs = append(roomIDs, roomID)
	}
	notifications := make(map[string][]Conn, len(roomIDs))
	for _, roomID := range roomIDs {
		if peers, left := m.leaveLocked(connID, roomID); left {
			notifications[roomID] = peers
		}
	}
	m.mu.Unlock()

	for roomID, peers := range notifications {
		m.notifyLeft(peers, connID, roomID, fmt.Sprintf("User %s disconnected", connID))
	}
}

// RoomsOf reports the rooms connID is currently in, for recovery snapshots.
func (m *Manager) RoomsOf(connID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byConn[connID]))
	for roomID := range m.byConn[connID] {
		out = append(out, roomID)
	}
	return out
}

// MemberCounts lists every room and its member count for the admin API.
func (m *Manager) MemberCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.rooms))
	for roomID, members := range m.rooms {
		out[roomID] = len(members)
	}
	return out
}

// Members lists the connection ids in roomID; ok is false for an unknown
// room.
func (m *Manager) Members(roomID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out, true
}

func (m *Manager) leaveLocked(connID, roomID string) ([]Conn, bool) {
	members, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, in := members[connID]; !in {
		return nil, false
	}
	delete(members, connID)
	delete(m.byConn[connID], roomID)
	if len(m.byConn[connID]) == 0 {
		delete(m.byConn, connID)
	}
	if len(members) == 0 {
		delete(m.rooms, roomID)
		observability.RoomsActive.Dec()
		m.logger.Info("room removed", "room", roomID)
	}
	return snapshotLocked(members), true
}

func (m *Manager) notifyLeft(peers []Conn, connID, roomID, message string) {
	notice := models.RoomPresence{UserID: connID, RoomID: roomID, Message: message}
	for _, peer := range peers {
		peer.Send(models.EventUserLeft, notice)
	}
}

func snapshotLocked(members map[string]Conn) []Conn {
	out := make([]Conn, 0, len(members))
	for _, c := range members {
		out = append(out, c)
	}
	return out
}

func othersLocked(members map[string]Conn, exclude string) []Conn {
	out := make([]Conn, 0, len(members))
	for id, c := range members {
		if id == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

