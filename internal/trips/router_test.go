package trips

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

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

type fakeAssigner struct {
	rec *models.TripRecord
	err error
}

func (f *fakeAssigner) Create(ctx context.Context, rider models.TripRider) (*models.TripRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

type fakeDirectory struct {
	conns map[string]Conn
}

func (f *fakeDirectory) LookupByIdentity(key string) (Conn, bool) {
	c, ok := f.conns[key]
	return c, ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tripRequest() models.TripRequest {
	return models.TripRequest{
		Action: "create_trip",
		Data: models.TripRequestData{Rider: models.TripRider{
			UserID:    "u1",
			FirstName: "Rhea",
			LastName:  "Rivera",
		}},
	}
}

func assignedRecord(tripID, driverName string) *models.TripRecord {
	rec := &models.TripRecord{
		SK:    tripID,
		Rider: models.TripRider{UserID: "u1", FirstName: "Rhea", LastName: "Rivera"},
		Fare:  models.Fare{Total: 182.50},
	}
	if driverName != "" {
		rec.Driver = &models.Profile{UserID: "d1", Name: driverName}
	}
	return rec
}

func TestCreateTripNotifiesRiderAndDriver(t *testing.T) {
	rider := &fakeConn{id: "rider"}
	driver := &fakeConn{id: "driver"}
	dir := &fakeDirectory{conns: map[string]Conn{"Dan Cruz": driver}}
	r := NewRouter(&fakeAssigner{rec: assignedRecord("trip-1", "Dan Cruz")}, dir, nil, testLogger())

	r.CreateTrip(context.Background(), rider, tripRequest())

	if rider.count(models.EventTripCreated) != 1 {
		t.Fatal("rider should receive trip-created")
	}
	if driver.count(models.EventTripRequestNotification) != 1 {
		t.Fatal("assigned driver should receive trip-request-notification")
	}
}

func TestCreateTripDriverOffline(t *testing.T) {
	rider := &fakeConn{id: "rider"}
	dir := &fakeDirectory{conns: map[string]Conn{}}
	r := NewRouter(&fakeAssigner{rec: assignedRecord("trip-1", "Dan Cruz")}, dir, nil, testLogger())

	r.CreateTrip(context.Background(), rider, tripRequest())

	// The miss is logged and counted only; the rider still has a live
	// trip and must not be told it failed.
	if rider.count(models.EventTripCreated) != 1 {
		t.Fatal("rider should still receive trip-created")
	}
	if rider.count(models.EventTripError) != 0 {
		t.Fatal("driver-offline must not surface as trip-error")
	}
	if got := r.ActiveTrips("u1"); len(got) != 1 {
		t.Fatalf("route should exist, got %v", got)
	}
}

func TestCreateTripFailureEmitsSingleError(t *testing.T) {
	rider := &fakeConn{id: "rider"}
	r := NewRouter(&fakeAssigner{err: errors.New("boom")}, &fakeDirectory{}, nil, testLogger())

	r.CreateTrip(context.Background(), rider, tripRequest())

	if got := rider.count(models.EventTripError); got != 1 {
		t.Fatalf("expected exactly one trip-error, got %d", got)
	}
	if rider.count(models.EventTripCreated) != 0 {
		t.Fatal("no trip-created on failure")
	}
	if got := r.ActiveTrips("u1"); len(got) != 0 {
		t.Fatalf("no route should exist after failure, got %v", got)
	}
}

func TestRejectRetainsRouteUntilAccept(t *testing.T) {
	rider := &fakeConn{id: "rider"}
	dir := &fakeDirectory{conns: map[string]Conn{}}
	r := NewRouter(&fakeAssigner{rec: assignedRecord("trip-1", "")}, dir, nil, testLogger())
	r.CreateTrip(context.Background(), rider, tripRequest())

	r.RelayDriverResponse(context.Background(), models.DriverResponse{TripID: "trip-1", DriverName: "Dan Cruz", Accepted: false})
	if rider.count(models.EventDriverRejected) != 1 {
		t.Fatal("rider should see the rejection")
	}

	// A later assignment attempt for the same trip still finds the
	// original requester.
	r.RelayDriverResponse(context.Background(), models.DriverResponse{TripID: "trip-1", DriverName: "Eli Santos", Accepted: true})
	if rider.count(models.EventDriverAccepted) != 1 {
		t.Fatal("second driver's accept should reach the original rider")
	}

	// Accept removed the route; further responses are dropped.
	r.RelayDriverResponse(context.Background(), models.DriverResponse{TripID: "trip-1", DriverName: "Eli Santos", Accepted: true})
	if got := rider.count(models.EventDriverAccepted); got != 1 {
		t.Fatalf("response after accept must be dropped, got %d accepts", got)
	}
}

func TestRelayUnknownTripIsDropped(t *testing.T) {
	r := NewRouter(&fakeAssigner{}, &fakeDirectory{}, nil, testLogger())
	// must not panic or emit anywhere
	r.RelayDriverResponse(context.Background(), models.DriverResponse{TripID: "stale", DriverName: "Dan Cruz", Accepted: true})
}

func TestExpireRemovesStaleRoutes(t *testing.T) {
	rider := &fakeConn{id: "rider"}
	r := NewRouter(&fakeAssigner{rec: assignedRecord("trip-1", "")}, &fakeDirectory{}, nil, testLogger())
	r.CreateTrip(context.Background(), rider, tripRequest())

	if n := r.Expire(time.Hour); n != 0 {
		t.Fatalf("fresh route must survive, expired %d", n)
	}
	if n := r.Expire(0); n != 1 {
		t.Fatalf("expected 1 expired route, got %d", n)
	}
	r.RelayDriverResponse(context.Background(), models.DriverResponse{TripID: "trip-1", DriverName: "Dan Cruz", Accepted: true})
	if rider.count(models.EventDriverAccepted) != 0 {
		t.Fatal("expired route must not relay")
	}
}

func TestCreateTripTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer ts.Close()

	rider := &fakeConn{id: "rider"}
	r := NewRouter(NewClient(ts.URL, 20*time.Millisecond), &fakeDirectory{}, nil, testLogger())
	r.CreateTrip(context.Background(), rider, tripRequest())

	if got := rider.count(models.EventTripError); got != 1 {
		t.Fatalf("timeout should surface exactly one trip-error, got %d", got)
	}
	if got := r.ActiveTrips("u1"); len(got) != 0 {
		t.Fatalf("no route after timeout, got %v", got)
	}
}
