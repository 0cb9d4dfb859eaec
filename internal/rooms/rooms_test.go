package rooms

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/models"
)

type sent struct {
	event string
	data  any
}

type fakeConn struct {
	id   string
	mu   sync.Mutex
	sent []sent
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{event, data})
}

func (f *fakeConn) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s.event == event {
			n++
		}
	}
	return n
}

func (f *fakeConn) messages() []models.RoomMessageOut {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.RoomMessageOut
	for _, s := range f.sent {
		if s.event == models.EventRoomMessage {
			out = append(out, s.data.(models.RoomMessageOut))
		}
	}
	return out
}

type capturePub struct {
	mu   sync.Mutex
	envs []fanout.Envelope
}

func (p *capturePub) Publish(ctx context.Context, env fanout.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJoinLeaveMemberCounts(t *testing.T) {
	m := NewManager(nil, "node-a", testLogger())

	conns := make([]*fakeConn, 5)
	for i := range conns {
		conns[i] = &fakeConn{id: fmt.Sprintf("c%d", i)}
		m.Join(conns[i], "lobby")
	}
	m.Leave(conns[0], "lobby")
	m.Leave(conns[1], "lobby")

	counts := m.MemberCounts()
	if counts["lobby"] != 3 {
		t.Fatalf("expected 3 members, got %d", counts["lobby"])
	}

	for _, c := range conns[2:] {
		m.Leave(c, "lobby")
	}
	if _, ok := m.Members("lobby"); ok {
		t.Fatal("empty room must be absent, not present with zero members")
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	m := NewManager(nil, "node-a", testLogger())
	c := &fakeConn{id: "c1"}
	m.Join(c, "lobby")
	m.Join(c, "lobby")

	counts := m.MemberCounts()
	if counts["lobby"] != 1 {
		t.Fatalf("double join must not double count: %d", counts["lobby"])
	}
	if got := c.count(models.EventRoomJoined); got != 1 {
		t.Fatalf("expected one room-joined, got %d", got)
	}
}

func TestJoinAndLeaveNotifyPeers(t *testing.T) {
	m := NewManager(nil, "node-a", testLogger())
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}

	m.Join(c1, "lobby")
	m.Join(c2, "lobby")
	if got := c1.count(models.EventUserJoined); got != 1 {
		t.Fatalf("c1 should see c2 join, got %d", got)
	}
	if got := c2.count(models.EventUserJoined); got != 0 {
		t.Fatalf("joiner must not see its own join, got %d", got)
	}

	m.Leave(c2, "lobby")
	if got := c1.count(models.EventUserLeft); got != 1 {
		t.Fatalf("c1 should see c2 leave, got %d", got)
	}
}

func TestBroadcastDeliversInOrderAndPublishes(t *testing.T) {
	pub := &capturePub{}
	m := NewManager(pub, "node-a", testLogger())
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	m.Join(c1, "lobby")
	m.Join(c2, "lobby")

	m.BroadcastToRoom(context.Background(), "lobby", "c1", "first")
	m.BroadcastToRoom(context.Background(), "lobby", "c1", "second")

	for _, c := range []*fakeConn{c1, c2} {
		msgs := c.messages()
		if len(msgs) != 2 {
			t.Fatalf("%s expected 2 messages, got %d", c.id, len(msgs))
		}
		if msgs[0].Message != "first" || msgs[1].Message != "second" {
			t.Fatalf("%s out of order: %+v", c.id, msgs)
		}
	}

	if len(pub.envs) != 2 {
		t.Fatalf("expected 2 published envelopes, got %d", len(pub.envs))
	}
	if pub.envs[0].Origin != "node-a" || pub.envs[0].Type != fanout.KindRoomMessage {
		t.Fatalf("bad envelope: %+v", pub.envs[0])
	}
}

func TestOnDisconnectCleansEverything(t *testing.T) {
	m := NewManager(nil, "node-a", testLogger())
	c1 := &fakeConn{id: "c1"}
	c2 := &fakeConn{id: "c2"}
	m.Join(c1, "lobby")
	m.Join(c1, "dispatch")
	m.Join(c2, "lobby")

	m.OnDisconnect("c1")

	if got := len(m.RoomsOf("c1")); got != 0 {
		t.Fatalf("disconnected conn still tracked in %d rooms", got)
	}
	if _, ok := m.Members("dispatch"); ok {
		t.Fatal("dispatch should be removed once empty")
	}
	if got := c2.count(models.EventUserLeft); got != 1 {
		t.Fatalf("peer should be told about the disconnect, got %d", got)
	}

	// A connection that never joined anything must be a harmless no-op.
	m.OnDisconnect("ghost")
}

// relayPub forwards published envelopes straight into a second manager the
// way the server's fanout subscriber does, skipping that manager's own
// origin.
type relayPub struct {
	deliver func(fanout.Envelope)
}

func (p relayPub) Publish(ctx context.Context, env fanout.Envelope) error {
	p.deliver(env)
	return nil
}

func TestBroadcastReachesOtherInstance(t *testing.T) {
	mgrB := NewManager(nil, "node-b", testLogger())
	mgrA := NewManager(relayPub{deliver: func(env fanout.Envelope) {
		if env.Origin != "node-b" {
			mgrB.DeliverLocal(env)
		}
	}}, "node-a", testLogger())

	remote := &fakeConn{id: "remote"}
	mgrB.Join(remote, "lobby")

	mgrA.BroadcastToRoom(context.Background(), "lobby", "SERVER", "hello fleet")

	msgs := remote.messages()
	if len(msgs) != 1 || msgs[0].Message != "hello fleet" {
		t.Fatalf("remote member should receive the fanned-out message, got %+v", msgs)
	}
}
