package models

import "encoding/json"

// Frame is the wire envelope for every message on a client connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EventAssumeIdentity  = "assume-identity"
	EventUpdateLocation  = "update-location"
	EventJoinRoom        = "join-room"
	EventLeaveRoom       = "leave-room"
	EventRoomMessage     = "room-message"
	EventTripRequest     = "trip-request"
	EventDriverResponse  = "driver-response"
	EventCheckActiveTrip = "check-active-trip"
)

// Outbound event names.
const (
	EventSessionEstablished      = "session-established"
	EventRoomJoined              = "room-joined"
	EventUserJoined              = "user-joined"
	EventUserLeft                = "user-left"
	EventServerBroadcast         = "server-broadcast"
	EventTripCreated             = "trip-created"
	EventTripError               = "trip-error"
	EventTripRequestNotification = "trip-request-notification"
	EventDriverAccepted          = "driver-accepted"
	EventDriverRejected          = "driver-rejected"
	EventActiveTrip              = "active-trip"
)

// AssumeIdentity registers a rider or driver identity for a connection.
type AssumeIdentity struct {
	UserType string    `json:"userType"`
	UserData Profile   `json:"userData"`
	Location *Location `json:"location,omitempty"`
}

type UpdateLocation struct {
	Location Location `json:"location"`
}

type RoomRef struct {
	RoomID string `json:"roomId"`
}

type RoomMessageIn struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// TripRequest is the rider's booking payload, forwarded to the trip service.
type TripRequest struct {
	Action string                     `json:"action"`
	Header map[string]json.RawMessage `json:"header,omitempty"`
	Data   TripRequestData            `json:"data"`
}

type TripRequestData struct {
	Rider TripRider `json:"rider"`
}

type DriverResponse struct {
	TripID     string `json:"tripId"`
	DriverName string `json:"driverName"`
	Accepted   bool   `json:"accepted"`
}

type CheckActiveTrip struct {
	UserID string `json:"userId"`
}

type SessionEstablished struct {
	ConnectionID string `json:"connectionId"`
	ResumeToken  string `json:"resumeToken"`
}

type RoomJoined struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// RoomPresence announces a peer joining or leaving a room.
type RoomPresence struct {
	UserID  string `json:"userId"`
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type RoomMessageOut struct {
	RoomID    string `json:"roomId"`
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type ServerBroadcast struct {
	Message   string `json:"message"`
	From      string `json:"from,omitempty"`
	Timestamp string `json:"timestamp"`
}

type TripCreated struct {
	TripID string    `json:"tripId"`
	Rider  TripRider `json:"rider"`
	Fare   Fare      `json:"fare"`
	Driver *Profile  `json:"driver,omitempty"`
}

type TripError struct {
	Message string `json:"message"`
}

// TripNotification is pushed to the assigned driver's connection.
type TripNotification struct {
	TripID string    `json:"tripId"`
	Rider  TripRider `json:"rider"`
	Fare   Fare      `json:"fare"`
}

// DriverDecision relays an accept or reject back to the requesting rider.
type DriverDecision struct {
	TripID     string `json:"tripId"`
	DriverName string `json:"driverName"`
}

type ActiveTrips struct {
	TripIDs []string `json:"tripIds"`
}
