package realtime

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"converse/infrastructure"
	"converse/internal/metrics"
)

const bearerSubprotocol = "bearer"

// Hub is the connection lifecycle: it authenticates handshakes,
// registers connections in the presence registry, runs the
// per-connection event loop, and tears everything down on disconnect.
type Hub struct {
	resolver IdentityResolver
	presence *Registry
	rooms    *Router
	delivery *Delivery
	log      *zap.Logger

	writeTimeout time.Duration
	queueLen     int

	upgrader websocket.Upgrader
}

func NewHub(resolver IdentityResolver, presence *Registry, rooms *Router, delivery *Delivery, log *zap.Logger) *Hub {
	return &Hub{
		resolver:     resolver,
		presence:     presence,
		rooms:        rooms,
		delivery:     delivery,
		log:          log,
		writeTimeout: 10 * time.Second,
		queueLen:     256,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetWriteTimeout and SetQueueLen tune the per-connection write pump;
// zero values keep the defaults.
func (h *Hub) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		h.writeTimeout = d
	}
}

func (h *Hub) SetQueueLen(n int) {
	if n > 0 {
		h.queueLen = n
	}
}

// ServeHTTP performs the websocket handshake. Authentication happens
// before the upgrade: a rejected token never registers a connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := tokenFromRequest(r)

	identity, err := h.resolver.ResolveIdentity(r.Context(), token)
	if err != nil {
		reason := "invalid_token"
		switch {
		case errors.Is(err, infrastructure.ErrMissingToken):
			reason = "missing_token"
		case errors.Is(err, infrastructure.ErrUnknownUser):
			reason = "unknown_user"
		}
		metrics.HandshakeRejected.WithLabelValues(reason).Inc()
		h.log.Info("websocket handshake rejected", zap.String("reason", reason))
		http.Error(w, reason, http.StatusUnauthorized)
		return
	}

	var responseHeader http.Header
	if subprotocolToken(r) != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {bearerSubprotocol}}
	}

	ws, err := h.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	conn := newConn(identity, ws, h.queueLen)
	h.register(conn)
	go conn.writePump(h.writeTimeout)

	s := &session{hub: h, conn: conn}
	go s.readLoop()
}

func (h *Hub) register(c *Conn) {
	h.presence.Register(c.User().ID, c)
	h.updateGauges()
	h.log.Info("user connected",
		zap.String("user_id", c.User().ID),
		zap.String("username", c.User().Name))
}

// unregister is idempotent: the session guards it with a sync.Once, and
// the registry and router removals are themselves no-ops on repeat.
func (h *Hub) unregister(c *Conn) {
	c.close()
	h.rooms.Drop(c)
	h.presence.Unregister(c.User().ID, c)
	h.updateGauges()
	h.log.Info("user disconnected", zap.String("user_id", c.User().ID))
}

func (h *Hub) updateGauges() {
	users, conns := h.presence.Counts()
	metrics.OnlineUsers.Set(float64(users))
	metrics.OnlineConns.Set(float64(conns))
}

// tokenFromRequest extracts the handshake token: query parameter,
// bearer header, then subprotocol pair, in that precedence order.
func tokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if t := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")); t != "" {
			return t
		}
	}
	return subprotocolToken(r)
}

// subprotocolToken reads the `bearer, <token>` subprotocol pair —
// the browser WebSocket API cannot set an Authorization header, so
// clients smuggle the token through Sec-WebSocket-Protocol.
func subprotocolToken(r *http.Request) string {
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if p == bearerSubprotocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}
