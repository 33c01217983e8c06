package in

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"focusguard/internal/modules/session/dto"
	apperrors "focusguard/internal/platform/errors"
	"focusguard/internal/platform/id"
	"focusguard/internal/platform/kv"
	"focusguard/internal/platform/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 32
)

// Gateway is the presentation channel. Each tab holds a WebSocket at
// /ws/{tabID}; messages are answered in order and pushes (timeUp,
// storageChanged) are written by the same per-connection writer.
type Gateway struct {
	endpoint *Endpoint
	ids      id.Generator
	logger   *slog.Logger
	upgrader websocket.Upgrader
	origins  map[string]struct{}

	mu    sync.RWMutex
	conns map[string]*gatewayConn
}

type gatewayConn struct {
	id     string
	tabID  int
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

// GatewayOption adjusts a Gateway at construction.
type GatewayOption func(*Gateway)

// WithAllowedOrigins lists the browser origins (for example
// "chrome-extension://<id>") that may open a connection. Requests without an
// Origin header are always accepted.
func WithAllowedOrigins(origins ...string) GatewayOption {
	return func(g *Gateway) {
		for _, o := range origins {
			if o = normalizeOrigin(o); o != "" {
				g.origins[o] = struct{}{}
			}
		}
	}
}

func NewGateway(endpoint *Endpoint, ids id.Generator, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if ids == nil {
		ids = id.UUID{}
	}
	g := &Gateway{
		endpoint: endpoint,
		ids:      ids,
		logger:   logger,
		origins:  map[string]struct{}{},
		conns:    map[string]*gatewayConn{},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.upgrader = websocket.Upgrader{
		CheckOrigin:     g.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return g
}

// checkOrigin admits clients without an Origin header and the configured
// origins; web pages are refused.
func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if _, ok := g.origins[normalizeOrigin(origin)]; ok {
		return true
	}
	g.logger.Warn("websocket origin refused", slog.String("origin", origin))
	return false
}

func normalizeOrigin(origin string) string {
	return strings.TrimRight(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/ws", g.handleWebSocket)
	r.Get("/ws/{tabID}", g.handleWebSocket)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tabID := 0
	if raw := chi.URLParam(r, "tabID"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "tabID must be a positive integer", http.StatusBadRequest)
			return
		}
		tabID = parsed
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	conn := &gatewayConn{
		id:     g.ids.New(),
		tabID:  tabID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
	g.add(conn)
	defer g.remove(conn)

	go g.writeLoop(conn)
	g.readLoop(r.Context(), conn)
}

func (g *Gateway) readLoop(ctx context.Context, conn *gatewayConn) {
	conn.ws.SetReadLimit(64 * 1024)
	_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	sender := dto.Sender{TabID: conn.tabID}
	for {
		_, raw, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket closed unexpectedly",
					slog.String("conn_id", conn.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		reply := g.endpoint.Handle(ctx, sender, raw)
		if err := g.enqueue(conn, reply); err != nil {
			g.logger.Warn("dropping reply", slog.String("conn_id", conn.id), slog.String("error", err.Error()))
			return
		}
	}
}

func (g *Gateway) writeLoop(conn *gatewayConn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()
	for {
		select {
		case payload := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				g.logger.Debug("websocket write failed", slog.String("conn_id", conn.id), slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-conn.closed:
			_ = conn.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (g *Gateway) enqueue(conn *gatewayConn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}
	select {
	case <-conn.closed:
		return apperrors.ErrTabUnreachable
	default:
	}
	select {
	case conn.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", apperrors.ErrTabUnreachable)
	}
}

func (g *Gateway) add(conn *gatewayConn) {
	g.mu.Lock()
	g.conns[conn.id] = conn
	g.mu.Unlock()
	metrics.GatewayConnections.Inc()
	g.logger.Debug("websocket connected", slog.String("conn_id", conn.id), slog.Int("tab_id", conn.tabID))
}

func (g *Gateway) remove(conn *gatewayConn) {
	g.mu.Lock()
	if _, ok := g.conns[conn.id]; ok {
		delete(g.conns, conn.id)
		metrics.GatewayConnections.Dec()
	}
	g.mu.Unlock()
	conn.once.Do(func() { close(conn.closed) })
	g.logger.Debug("websocket disconnected", slog.String("conn_id", conn.id), slog.Int("tab_id", conn.tabID))
}

func (g *Gateway) snapshot() []*gatewayConn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*gatewayConn, 0, len(g.conns))
	for _, conn := range g.conns {
		out = append(out, conn)
	}
	return out
}

// NotifyTimeUp pushes timeUp to every connection of the tab. It fails with
// ErrTabUnreachable when nothing accepted the push.
func (g *Gateway) NotifyTimeUp(_ context.Context, tabID int) error {
	delivered := 0
	for _, conn := range g.snapshot() {
		if conn.tabID != tabID {
			continue
		}
		if err := g.enqueue(conn, dto.TimeUp{Action: dto.PushTimeUp, TabID: tabID}); err == nil {
			delivered++
		}
	}
	if delivered == 0 {
		return fmt.Errorf("%w: tab %d", apperrors.ErrTabUnreachable, tabID)
	}
	return nil
}

// BroadcastStorageChanged pushes the changed logical keys to every connection.
func (g *Gateway) BroadcastStorageChanged(keys []string) {
	if len(keys) == 0 {
		return
	}
	push := dto.StorageChanged{Action: dto.PushStorageChanged, Keys: keys}
	for _, conn := range g.snapshot() {
		if err := g.enqueue(conn, push); err != nil {
			g.logger.Debug("storageChanged not delivered", slog.String("conn_id", conn.id), slog.String("error", err.Error()))
		}
	}
}

// WatchStore relays store changes until ctx ends.
func (g *Gateway) WatchStore(ctx context.Context, store kv.Store) error {
	return store.Watch(ctx, func(change kv.Change) {
		g.BroadcastStorageChanged([]string{kv.Logical(change.Key)})
	})
}

// Connections reports how many sockets are open.
func (g *Gateway) Connections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}
