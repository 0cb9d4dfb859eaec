// Package trips routes in-flight trips back to the riders that requested
// them and relays driver decisions.
package trips

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/dispatch-relay/internal/models"
	"github.com/example/dispatch-relay/internal/observability"
)

// Conn is the slice of a connection the router needs.
type Conn interface {
	ID() string
	Send(event string, data any)
}

// Assigner creates trips via the external assignment service.
type Assigner interface {
	Create(ctx context.Context, rider models.TripRider) (*models.TripRecord, error)
}

// Directory resolves a driver's full name to a live connection.
type Directory interface {
	LookupByIdentity(key string) (Conn, bool)
}

// Recorder receives best-effort trip lifecycle events for downstream
// consumers. Implementations must never block or fail loudly.
type Recorder interface {
	TripEvent(ctx context.Context, kind, tripID, riderID string)
}

// route maps an in-flight trip back to its requesting rider connection.
type route struct {
	conn    Conn
	riderID string
	created time.Time
}

type Router struct {
	mu     sync.Mutex
	routes map[string]*route

	svc      Assigner
	presence Directory
	journal  Recorder // optional
	logger   *slog.Logger
}

func NewRouter(svc Assigner, presence Directory, journal Recorder, logger *slog.Logger) *Router {
	return &Router{
		routes:   make(map[string]*route),
		svc:      svc,
		presence: presence,
		journal:  journal,
		logger:   logger,
	}
}

// CreateTrip calls the assignment service and, on success, records the
// trip->rider route and notifies the assigned driver if one is already
// online here. The rider always gets either trip-created or exactly one
// trip-error. The caller runs this off the connection's read loop; a rider
// that disconnects mid-call still gets its route recorded, and the eventual
// emit to the dead handle is a safe no-op.
func (r *Router) CreateTrip(ctx context.Context, conn Conn, req models.TripRequest) {
	rider := req.Data.Rider

	rec, err := r.svc.Create(ctx, rider)
	if err != nil {
		observability.TripErrorsTotal.Inc()
		r.logger.Warn("trip creation failed", "rider", rider.FullName(), "error", err)
		conn.Send(models.EventTripError, models.TripError{Message: err.Error()})
		return
	}

	r.mu.Lock()
	r.routes[rec.SK] = &route{conn: conn, riderID: rider.UserID, created: time.Now()}
	r.mu.Unlock()

	observability.TripsCreatedTotal.Inc()
	r.record(ctx, "created", rec.SK, rider.UserID)
	r.logger.Info("trip created", "trip_id", rec.SK, "rider", rider.FullName())

	conn.Send(models.EventTripCreated, models.TripCreated{
		TripID: rec.SK,
		Rider:  rec.Rider,
		Fare:   rec.Fare,
		Driver: rec.Driver,
	})

	if rec.Driver == nil {
		return
	}
	driverName := rec.Driver.FullName()
	dconn, ok := r.presence.LookupByIdentity(driverName)
	if !ok {
		// The assignment service owns reassignment; telling the rider the
		// trip failed here would be wrong, so this is only logged and
		// counted.
		observability.AssignmentMissedTotal.Inc()
		r.record(ctx, "assignment-missed", rec.SK, rider.UserID)
		r.logger.Warn("assigned driver not reachable", "trip_id", rec.SK, "driver", driverName)
		return
	}
	dconn.Send(models.EventTripRequestNotification, models.TripNotification{
		TripID: rec.SK,
		Rider:  rec.Rider,
		Fare:   rec.Fare,
	})
	r.logger.Info("driver notified", "trip_id", rec.SK, "driver", driverName)
}

// RelayDriverResponse resolves tripID to its requesting rider and forwards
// the decision. An accept removes the route; a reject keeps it so a later
// assignment for the same trip can still find the rider. Responses for
// unknown trips are dropped.
func (r *Router) RelayDriverResponse(ctx context.Context, resp models.DriverResponse) {
	r.mu.Lock()
	rt, ok := r.routes[resp.TripID]
	if ok && resp.Accepted {
		delete(r.routes, resp.TripID)
	}
	r.mu.Unlock()

	if !ok {
		observability.ResponsesDroppedTotal.Inc()
		r.logger.Warn("driver response for unknown trip", "trip_id", resp.TripID, "driver", resp.DriverName)
		return
	}

	decision := models.DriverDecision{TripID: resp.TripID, DriverName: resp.DriverName}
	if resp.Accepted {
		observability.DriverResponsesTotal.WithLabelValues("accepted").Inc()
		r.record(ctx, "accepted", resp.TripID, rt.riderID)
		rt.conn.Send(models.EventDriverAccepted, decision)
	} else {
		observability.DriverResponsesTotal.WithLabelValues("rejected").Inc()
		r.record(ctx, "rejected", resp.TripID, rt.riderID)
		rt.conn.Send(models.EventDriverRejected, decision)
	}
	r.logger.Info("driver response relayed", "trip_id", resp.TripID, "driver", resp.DriverName, "accepted", resp.Accepted)
}

// ActiveTrips lists the unresolved trip ids routed to userID.
func (r *Router) ActiveTrips(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for tripID, rt := range r.routes {
		if rt.riderID == userID {
			out = append(out, tripID)
		}
	}
	return out
}

// Expire removes routes older than ttl. Indefinitely rejected trips would
// otherwise pin their route until restart.
func (r *Router) Expire(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	r.mu.Lock()
	expired := make(map[string]string)
	for tripID, rt := range r.routes {
		if rt.created.Before(cutoff) {
			expired[tripID] = rt.riderID
			delete(r.routes, tripID)
		}
	}
	r.mu.Unlock()

	for tripID, riderID := range expired {
		observability.TripRoutesExpiredTotal.Inc()
		r.record(context.Background(), "expired", tripID, riderID)
		r.logger.Info("trip route expired", "trip_id", tripID)
	}
	return len(expired)
}

// Run sweeps expired routes until ctx is cancelled.
func (r *Router) Run(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Expire(ttl)
		}
	}
}

func (r *Router) record(ctx context.Context, kind, tripID, riderID string) {
	if r.journal == nil {
		return
	}
	r.journal.TripEvent(ctx, kind, tripID, riderID)
}
