// Package transport serves broadcast clients over WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/btouchard/beacon/internal/broadcast"
)

const (
	DefaultHeartbeat  = 30 * time.Second
	DefaultSendBuffer = 64

	writeTimeout = 10 * time.Second
)

// Client operations.
const (
	OpAttach = "attach"
	OpDetach = "detach"
)

// Request is a message sent by a client.
type Request struct {
	Op    string `json:"op"`
	Scope string `json:"scope"`
}

// Handler upgrades HTTP requests to WebSocket connections and registers them
// with the broadcast registry for their lifetime.
type Handler struct {
	reg        *broadcast.Registry
	heartbeat  time.Duration
	sendBuffer int
	origins    []string
}

func NewHandler(reg *broadcast.Registry, heartbeat time.Duration, sendBuffer int) *Handler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Handler{reg: reg, heartbeat: heartbeat, sendBuffer: sendBuffer}
}

// SetOriginPatterns allows browser connections from the given host patterns.
func (h *Handler) SetOriginPatterns(patterns []string) {
	h.origins = patterns
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("websocket accept failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	defer ws.CloseNow()

	c := newConn(uuid.NewString(), ws, h.sendBuffer)
	h.reg.Register(c)
	defer func() {
		h.reg.Unregister(c.id)
		c.Close()
	}()

	slog.Info("client connected", "client_id", c.id, "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		h.writeLoop(ctx, c)
	}()

	h.readLoop(ctx, c)

	slog.Info("client disconnected", "client_id", c.id)
}

func (h *Handler) readLoop(ctx context.Context, c *conn) {
	for {
		var req Request
		if err := wsjson.Read(ctx, c.ws, &req); err != nil {
			if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
				slog.Debug("websocket read failed", "client_id", c.id, "error", err)
			}
			return
		}
		h.handle(c, req)
	}
}

func (h *Handler) handle(c *conn, req Request) {
	reply := broadcast.Message{Scope: req.Scope}

	switch req.Op {
	case OpAttach:
		if err := h.reg.Attach(c.id, req.Scope); err != nil {
			reply.Type = broadcast.TypeError
			reply.Error = err.Error()
			break
		}
		reply.Type = broadcast.TypeAttached
		slog.Debug("client attached", "client_id", c.id, "scope", req.Scope)
	case OpDetach:
		h.reg.Detach(c.id, req.Scope)
		reply.Type = broadcast.TypeDetached
	default:
		reply.Type = broadcast.TypeError
		reply.Error = "unknown op " + req.Op
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		slog.Debug("reply dropped", "client_id", c.id, "error", err)
	}
}

func (h *Handler) writeLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			slog.Info("closing dropped client", "client_id", c.id)
			_ = c.ws.Close(websocket.StatusPolicyViolation, "client dropped")
			return
		case msg := <-c.out:
			if err := write(ctx, c.ws, msg); err != nil {
				slog.Info("websocket write failed", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				slog.Info("heartbeat failed", "client_id", c.id, "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, ws *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, msg)
}
