package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// defaultAllowedOrigins covers local development; production deployments
// set Server.AllowedOrigins explicitly.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

// newUpgrader builds a websocket.Upgrader with origin checking.
// allowedOrigins nil/empty uses defaultAllowedOrigins; []string{"*"}
// allows any origin (development only).
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultAllowedOrigins
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	allowAll := allowed["*"]

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := strings.ToLower(strings.TrimRight(r.Header.Get("Origin"), "/"))
			if origin == "" {
				return true
			}
			return allowed[origin]
		},
	}
}

// wsFrame is the wire shape of every server->client push: the live
// update kind, its payload, and the emission timestamp.
type wsFrame struct {
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// handleWebSocket upgrades the connection, subscribes it to the
// broadcaster, and relays updates to the client as JSON frames until
// the client disconnects or the subscription's Done channel closes
// (buffer overflow unsubscribe, or server shutdown flush).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := newUpgrader(s.deps.Config.Server.AllowedOrigins)
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := s.deps.Broadcast.Subscribe(r.Context())
	defer sub.Unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-sub.Done:
			return
		case update, ok := <-sub.Updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(wsFrame{
				Kind:      string(update.Kind),
				Data:      update.Data,
				EmittedAt: update.EmittedAt,
			}); err != nil {
				s.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}
