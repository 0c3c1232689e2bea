package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/chaos-dotcom/colourstream-sub003/pkg/progress"
	"github.com/chaos-dotcom/colourstream-sub003/pkg/uplog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const dashboardWriteWait = 5 * time.Second

// Dashboard pushes progress events to every connected operator dashboard
// over websockets.
type Dashboard struct {
	logger   *uplog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewDashboard creates a Dashboard channel with no connected observers.
func NewDashboard(logger *uplog.Logger) *Dashboard {
	if logger == nil {
		logger = uplog.NewDefault()
	}
	return &Dashboard{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard sits behind the operator reverse proxy, which
			// enforces the origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
	}
}

// Name implements Channel.
func (d *Dashboard) Name() string { return "dashboard" }

// HandleWS upgrades an observer request and keeps the connection
// registered until the peer goes away.
func (d *Dashboard) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	id := uuid.NewString()
	d.mu.Lock()
	d.conns[id] = conn
	d.mu.Unlock()
	d.logger.Debug("dashboard observer connected", "conn", id)

	// Observers only listen; the read loop exists to notice the close.
	go func() {
		defer d.drop(id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ObserverCount returns the number of connected dashboards.
func (d *Dashboard) ObserverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// Deliver implements Channel: one JSON frame per event, pushed to every
// connection. Connections that fail to take the write are dropped; the
// browser reconnects on its own.
func (d *Dashboard) Deliver(_ context.Context, event progress.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, conn := range d.conns {
		conn.SetWriteDeadline(time.Now().Add(dashboardWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			d.logger.Debug("dropping stalled dashboard observer", "conn", id, "error", err.Error())
			conn.Close()
			delete(d.conns, id)
		}
	}
	return nil
}

// Close disconnects every observer.
func (d *Dashboard) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, conn := range d.conns {
		conn.Close()
		delete(d.conns, id)
	}
}

func (d *Dashboard) drop(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if conn, ok := d.conns[id]; ok {
		conn.Close()
		delete(d.conns, id)
	}
}

// Ensure Dashboard implements Channel.
var _ Channel = (*Dashboard)(nil)
