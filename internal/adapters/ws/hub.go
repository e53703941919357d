// Package ws is the live performance transport: clients connect to /ws,
// send invoke messages, and receive every manifestation the scheduler
// releases as a JSON push.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hibikido/hibikido/internal/domain/model"
	"github.com/hibikido/hibikido/pkg/logger"
	"github.com/hibikido/hibikido/pkg/metrics"
)

// writeTimeout bounds a single push so one stalled client cannot hold a
// broadcast goroutine forever.
const writeTimeout = 5 * time.Second

// Invoker is the slice of the application the hub needs for inbound
// invoke messages.
type Invoker interface {
	Invoke(ctx context.Context, text string) (invocationID string, queued int, err error)
}

// Inbound message envelope.
type message struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ackMessage struct {
	Type         string `json:"type"`
	InvocationID string `json:"invocation_id"`
	Queued       int    `json:"queued"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// manifestMessage wraps a manifestation for the wire.
type manifestMessage struct {
	Type string `json:"type"`
	model.Manifestation
}

// Hub tracks connected clients and fans manifestations out to them.
type Hub struct {
	invoker Invoker
	log     logger.Logger

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// NewHub builds a hub that routes invoke messages to invoker.
func NewHub(invoker Invoker) *Hub {
	return &Hub{
		invoker: invoker,
		log:     logger.Get().Named("ws"),
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the connection until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn(r.Context(), "websocket accept failed", logger.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.addConn(conn)
	defer h.removeConn(conn)

	ctx := r.Context()
	h.log.Info(ctx, "client connected", logger.String("remote", r.RemoteAddr))

	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			h.log.Debug(ctx, "read ended", logger.Error(err))
			return
		}

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "invoke":
			h.handleInvoke(ctx, conn, msg.Text)
		default:
			_ = wsjson.Write(ctx, conn, errorMessage{
				Type: "error", Message: "unknown message type: " + msg.Type,
			})
		}
	}
}

func (h *Hub) handleInvoke(ctx context.Context, conn *websocket.Conn, text string) {
	id, queued, err := h.invoker.Invoke(ctx, text)
	if err != nil {
		h.log.Warn(ctx, "invoke failed", logger.Error(err))
		_ = wsjson.Write(ctx, conn, errorMessage{Type: "error", Message: err.Error()})
		return
	}
	_ = wsjson.Write(ctx, conn, ackMessage{
		Type: "ack", InvocationID: id, Queued: queued,
	})
}

// Broadcast pushes one manifestation to every connected client. Writes run
// concurrently; a failed or slow client only loses its own copy.
func (h *Hub) Broadcast(m model.Manifestation) {
	msg := manifestMessage{Type: "manifest", Manifestation: m}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.conns {
		go func(c *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := wsjson.Write(ctx, c, msg); err != nil {
				metrics.RecordWSPushError()
			}
		}(conn)
	}
}

// ConnCount reports how many clients are connected.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) addConn(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	metrics.UpdateWSConnections(len(h.conns))
	h.mu.Unlock()
}

func (h *Hub) removeConn(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	metrics.UpdateWSConnections(len(h.conns))
	h.mu.Unlock()
}
