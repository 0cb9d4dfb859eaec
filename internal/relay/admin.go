package relay

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/observability"
)

// The admin API covers what an operator needs from this instance: inspect
// rooms and clients, and push messages into the fleet without a socket.

type roomSummary struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

type clientSummary struct {
	ConnectionID string   `json:"connectionId"`
	Identity     string   `json:"identity,omitempty"`
	Role         string   `json:"role,omitempty"`
	Rooms        []string `json:"rooms"`
}

type adminMessage struct {
	Message string `json:"message"`
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	counts := s.rooms.MemberCounts()
	out := make([]roomSummary, 0, len(counts))
	for roomID, n := range counts {
		out = append(out, roomSummary{RoomID: roomID, Members: n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

func (s *Server) handleRoomDetail(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	members, ok := s.rooms.Members(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": roomID, "members": members})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	identities := make(map[string]struct {
		name string
		role string
	})
	for _, e := range s.presence.Snapshot() {
		identities[e.Conn.ID()] = struct {
			name string
			role string
		}{e.Key, string(e.Role)}
	}

	s.mu.RLock()
	out := make([]clientSummary, 0, len(s.conns))
	for id := range s.conns {
		c := clientSummary{ConnectionID: id, Rooms: s.rooms.RoomsOf(id)}
		if ident, ok := identities[id]; ok {
			c.Identity = ident.name
			c.Role = ident.role
		}
		out = append(out, c)
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, map[string]any{"clients": out})
}

// handleBroadcast delivers to every local client and mirrors the envelope
// so the other instances do the same.
func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var msg adminMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	env := fanout.NewEnvelope(fanout.KindBroadcast, "", msg.Message, "SERVER", s.cfg.InstanceID)
	s.broadcastLocal(env)
	if err := s.bus.Publish(r.Context(), env); err != nil {
		s.logger.Warn("broadcast fanout publish failed", "error", err)
	} else {
		observability.FanoutPublishedTotal.Inc()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent"})
}

// handleRoomSend relays a message into a room. The room may have no local
// members at all; other instances still deliver through the fanout.
func (s *Server) handleRoomSend(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	var msg adminMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || msg.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	s.rooms.BroadcastToRoom(r.Context(), roomID, "SERVER", msg.Message)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "sent", "roomId": roomID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
