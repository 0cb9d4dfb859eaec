package relay

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/example/dispatch-relay/internal/models"
	"github.com/example/dispatch-relay/internal/presence"
)

// handleAssumeIdentity records a rider or driver identity for the
// connection. Malformed payloads are rejected and logged; the connection
// stays up either way.
func (s *Server) handleAssumeIdentity(c *Conn, data json.RawMessage) {
	var msg models.AssumeIdentity
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("malformed assume-identity", "conn_id", c.ID(), "error", err)
		return
	}

	role := models.Role(msg.UserType)
	if role != models.RoleRider && role != models.RoleDriver {
		s.logger.Warn("assume-identity with unknown role", "conn_id", c.ID(), "user_type", msg.UserType)
		return
	}

	superseded, err := s.presence.Register(role, msg.UserData, msg.Location, c)
	if err != nil {
		if errors.Is(err, presence.ErrInvalidProfile) {
			s.logger.Warn("rejected registration", "conn_id", c.ID(), "error", err)
			return
		}
		s.logger.Error("registration failed", "conn_id", c.ID(), "error", err)
		return
	}
	if superseded != nil {
		// Last writer wins; the old connection stays open but no longer
		// resolves for this identity.
		s.logger.Warn("identity superseded", "identity", msg.UserData.FullName(), "old_conn_id", superseded.ID(), "new_conn_id", c.ID())
	}
}

func (s *Server) handleUpdateLocation(c *Conn, data json.RawMessage) {
	var msg models.UpdateLocation
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("malformed update-location", "conn_id", c.ID(), "error", err)
		return
	}
	s.presence.UpdateLocation(c.ID(), msg.Location)
}

func (s *Server) handleJoinRoom(c *Conn, data json.RawMessage) {
	roomID, ok := s.roomID(c, data)
	if !ok {
		return
	}
	s.rooms.Join(c, roomID)
}

func (s *Server) handleLeaveRoom(c *Conn, data json.RawMessage) {
	roomID, ok := s.roomID(c, data)
	if !ok {
		return
	}
	s.rooms.Leave(c, roomID)
}

func (s *Server) handleRoomMessage(c *Conn, data json.RawMessage) {
	var msg models.RoomMessageIn
	if err := json.Unmarshal(data, &msg); err != nil || msg.RoomID == "" {
		s.logger.Warn("malformed room-message", "conn_id", c.ID(), "error", err)
		return
	}
	s.rooms.BroadcastToRoom(context.Background(), msg.RoomID, c.ID(), msg.Message)
}

// handleTripRequest runs the trip creation off the read loop so one slow
// assignment call never stalls this connection's other events or peers.
// The call gets its own context: a disconnect does not cancel it, and the
// eventual emit to a gone handle is a safe no-op.
func (s *Server) handleTripRequest(c *Conn, data json.RawMessage) {
	var req models.TripRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("malformed trip-request", "conn_id", c.ID(), "error", err)
		return
	}
	if req.Action != "" && req.Action != "create_trip" {
		s.logger.Warn("unsupported trip action", "conn_id", c.ID(), "action", req.Action)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TripTimeout)
		defer cancel()
		s.trips.CreateTrip(ctx, c, req)
	}()
}

func (s *Server) handleDriverResponse(c *Conn, data json.RawMessage) {
	var resp models.DriverResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.TripID == "" {
		s.logger.Warn("malformed driver-response", "conn_id", c.ID(), "error", err)
		return
	}
	s.trips.RelayDriverResponse(context.Background(), resp)
}

func (s *Server) handleCheckActiveTrip(c *Conn, data json.RawMessage) {
	var msg models.CheckActiveTrip
	if err := json.Unmarshal(data, &msg); err != nil || msg.UserID == "" {
		s.logger.Warn("malformed check-active-trip", "conn_id", c.ID(), "error", err)
		return
	}
	c.Send(models.EventActiveTrip, models.ActiveTrips{TripIDs: s.trips.ActiveTrips(msg.UserID)})
}

func (s *Server) roomID(c *Conn, data json.RawMessage) (string, bool) {
	var ref models.RoomRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.RoomID == "" {
		s.logger.Warn("malformed room reference", "conn_id", c.ID(), "error", err)
		return "", false
	}
	return ref.RoomID, true
}
