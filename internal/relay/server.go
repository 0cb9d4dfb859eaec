// Package relay is the websocket front of the dispatch system: it accepts
// client connections, routes their events to the presence, room and trip
// managers, and bridges local broadcasts to the rest of the fleet through
// the fanout bus.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/dispatch-relay/internal/config"
	"github.com/example/dispatch-relay/internal/fanout"
	"github.com/example/dispatch-relay/internal/logging"
	"github.com/example/dispatch-relay/internal/models"
	"github.com/example/dispatch-relay/internal/observability"
	"github.com/example/dispatch-relay/internal/presence"
	"github.com/example/dispatch-relay/internal/recovery"
	"github.com/example/dispatch-relay/internal/rooms"
	"github.com/example/dispatch-relay/internal/trips"
)

type Server struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	router *mux.Router

	presence *presence.Registry
	rooms    *rooms.Manager
	trips    *trips.Router
	recovery *recovery.Manager
	bus      fanout.Bus

	mu    sync.RWMutex
	conns map[string]*Conn

	upgrader websocket.Upgrader

	janitorInterval time.Duration
}

// NewServer wires the relay. The assigner is the external trip service
// client; journal may be nil when no broker is configured.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, bus fanout.Bus, assigner trips.Assigner, journal trips.Recorder) *Server {
	s := &Server{
		cfg:             cfg,
		logger:          logger,
		bus:             bus,
		conns:           make(map[string]*Conn),
		upgrader:        websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		janitorInterval: time.Minute,
	}
	s.presence = presence.NewRegistry(logging.Component(logger, "presence"))
	s.rooms = rooms.NewManager(bus, cfg.InstanceID, logging.Component(logger, "rooms"))
	s.trips = trips.NewRouter(assigner, presenceDirectory{s.presence}, journal, logging.Component(logger, "trips"))
	s.recovery = recovery.NewManager(cfg.RecoveryWindow, logging.Component(logger, "recovery"))

	s.router = mux.NewRouter()
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/ws", s.handleWS)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler())

	admin := s.router.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	admin.HandleFunc("/rooms/{roomId}", s.handleRoomDetail).Methods("GET")
	admin.HandleFunc("/rooms/{roomId}/message", s.handleRoomSend).Methods("POST")
	admin.HandleFunc("/clients", s.handleListClients).Methods("GET")
	admin.HandleFunc("/broadcast", s.handleBroadcast).Methods("POST")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Run serves until ctx is cancelled, then shuts down gracefully. The fanout
// subscriber, recovery GC and trip route janitor run for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		if err := s.bus.Subscribe(ctx, s.handleEnvelope); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("fanout subscriber stopped", "error", err)
		}
	}()
	go s.recovery.Run(ctx)
	go s.trips.Run(ctx, s.janitorInterval, s.cfg.TripRouteTTL)

	srv := &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("dispatch relay listening", "addr", s.cfg.HTTPAddr, "instance", s.cfg.InstanceID)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shCtx)
	case err := <-errCh:
		return err
	}
}

// handleWS owns a connection for its whole lifetime: upgrade, optional
// resume, read loop, then the disconnect cleanup cascade.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := newConn(ws, s.logger)
	s.addConn(conn)
	observability.ConnectionsActive.Inc()

	token := r.URL.Query().Get("resume")
	restoredRooms, resumed := s.recovery.Resume(token)
	if !resumed {
		token = uuid.NewString()
	}

	conn.Send(models.EventSessionEstablished, models.SessionEstablished{
		ConnectionID: conn.ID(),
		ResumeToken:  token,
	})
	for _, roomID := range restoredRooms {
		s.rooms.Join(conn, roomID)
	}
	go conn.writePump()

	s.logger.Info("client connected", "conn_id", conn.ID(), "resumed", resumed, "restored_rooms", len(restoredRooms))

	s.readLoop(conn)

	// Disconnect cascade. The recovery snapshot is taken before membership
	// is torn down so a reconnect within the grace window can rejoin.
	s.recovery.Remember(token, s.rooms.RoomsOf(conn.ID()))
	s.rooms.OnDisconnect(conn.ID())
	s.presence.RemoveByConnection(conn.ID())
	s.removeConn(conn.ID())
	conn.close()
	observability.ConnectionsActive.Dec()
	s.logger.Info("client disconnected", "conn_id", conn.ID())
}

func (s *Server) readLoop(c *Conn) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read ended", "conn_id", c.ID(), "error", err)
			}
			return
		}
		s.dispatch(c, raw)
	}
}

// dispatch routes one inbound frame. A panicking handler loses that frame
// only; the connection and the process keep running.
func (s *Server) dispatch(c *Conn, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("panic in event handler", "conn_id", c.ID(), "panic", rec)
		}
	}()

	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.logger.Warn("malformed frame", "conn_id", c.ID(), "error", err)
		return
	}

	switch frame.Event {
	case models.EventAssumeIdentity:
		s.handleAssumeIdentity(c, frame.Data)
	case models.EventUpdateLocation:
		s.handleUpdateLocation(c, frame.Data)
	case models.EventJoinRoom:
		s.handleJoinRoom(c, frame.Data)
	case models.EventLeaveRoom:
		s.handleLeaveRoom(c, frame.Data)
	case models.EventRoomMessage:
		s.handleRoomMessage(c, frame.Data)
	case models.EventTripRequest:
		s.handleTripRequest(c, frame.Data)
	case models.EventDriverResponse:
		s.handleDriverResponse(c, frame.Data)
	case models.EventCheckActiveTrip:
		s.handleCheckActiveTrip(c, frame.Data)
	default:
		s.logger.Warn("unknown event", "conn_id", c.ID(), "event", frame.Event)
	}
}

// handleEnvelope receives everything published on the fanout channel,
// including this instance's own envelopes, which it skips: local members
// were already served at publish time.
func (s *Server) handleEnvelope(env fanout.Envelope) {
	if env.Origin == s.cfg.InstanceID {
		return
	}
	observability.FanoutReceivedTotal.Inc()
	switch env.Type {
	case fanout.KindRoomMessage:
		s.rooms.DeliverLocal(env)
	case fanout.KindBroadcast:
		s.broadcastLocal(env)
	default:
		s.logger.Debug("ignoring fanout envelope", "type", env.Type)
	}
}

func (s *Server) broadcastLocal(env fanout.Envelope) {
	out := models.ServerBroadcast{Message: env.Message, From: env.From, Timestamp: env.Timestamp}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		c.Send(models.EventServerBroadcast, out)
	}
}

func (s *Server) addConn(c *Conn) {
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
}

func (s *Server) removeConn(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
}

// presenceDirectory narrows the registry to the lookup the trip router
// needs.
type presenceDirectory struct {
	reg *presence.Registry
}

func (d presenceDirectory) LookupByIdentity(key string) (trips.Conn, bool) {
	c, ok := d.reg.LookupByIdentity(key)
	if !ok {
		return nil, false
	}
	return c, true
}
