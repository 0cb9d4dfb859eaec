package models

import (
	"encoding/json"
	"strings"
)

// Role distinguishes the two kinds of identity a connection can assume.
type Role string

const (
	RoleRider  Role = "rider"
	RoleDriver Role = "driver"
)

type Location struct {
	Name        string  `json:"name,omitempty"`
	PlaceID     string  `json:"place_id,omitempty"`
	Title       string  `json:"title,omitempty"`
	FullAddress string  `json:"fullAddress,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Profile is the identity snapshot a client supplies when assuming a rider
// or driver. It is stored as-is; the relay only needs the name fields.
type Profile struct {
	UserID      string `json:"userId"`
	Name        string `json:"name,omitempty"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// FullName is the presence lookup key for this profile.
func (p Profile) FullName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if full != "" {
		return full
	}
	return strings.TrimSpace(p.Name)
}

type Fare struct {
	BaseFare float64 `json:"baseFare,omitempty"`
	Total    float64 `json:"total"`
	Distance float64 `json:"distance,omitempty"`
	Time     float64 `json:"time,omitempty"`
}

// TripRider is the rider block of a trip-request, echoed back by the trip
// service in its response.
type TripRider struct {
	UserID    string        `json:"userId"`
	FirstName string        `json:"firstName"`
	LastName  string        `json:"lastName"`
	Location  TripLocations `json:"location"`
}

func (r TripRider) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

type TripLocations struct {
	Source      Location `json:"source"`
	Destination Location `json:"destination"`
}

// TripRecord is the trip service's view of a created trip. The service keys
// trips by a sort key ("sk"); everything else is echo data for the clients.
type TripRecord struct {
	SK      string          `json:"sk"`
	Rider   TripRider       `json:"rider"`
	Fare    Fare            `json:"fare"`
	Metrics json.RawMessage `json:"metrics,omitempty"`
	Driver  *Profile        `json:"driver,omitempty"`
}

type TripServiceResponse struct {
	Data TripRecord `json:"data"`
}
