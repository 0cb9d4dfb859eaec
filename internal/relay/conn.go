package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/dispatch-relay/internal/models"
	"github.com/example/dispatch-relay/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// Conn wraps one client's live duplex channel. Every other component keys
// on its server-assigned id. Sending to a closed or backed-up connection is
// a safe no-op: the frame is dropped, never an error.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (c *Conn) ID() string { return c.id }

// Send marshals an event frame and enqueues it for the write pump.
func (c *Conn) Send(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("marshal event payload", "event", event, "error", err)
		return
	}
	frame, err := json.Marshal(models.Frame{Event: event, Data: payload})
	if err != nil {
		c.logger.Error("marshal frame", "event", event, "error", err)
		return
	}

	select {
	case <-c.done:
		// Connection already gone; the in-flight caller must not care.
	case c.send <- frame:
	default:
		observability.SendDroppedTotal.Inc()
		c.logger.Warn("send queue full, dropping frame", "conn_id", c.id, "event", event)
	}
}

// writePump owns all writes on the underlying socket.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}
