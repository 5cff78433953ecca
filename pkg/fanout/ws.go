package fanout

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a silent peer stays connected.
	pongWait = 60 * time.Second
	// pingPeriod must be under pongWait so the peer gets a chance to answer.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1024
)

// WSHandler upgrades HTTP requests to websocket subscriptions on the hub.
type WSHandler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a handler bound to the hub. checkOrigin nil allows all
// origins, matching a token-authenticated API surface.
func NewWSHandler(hub *Hub, logger *slog.Logger, checkOrigin func(*http.Request) bool) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// Serve upgrades the request and pumps session events to the peer until the
// connection drops or the peer stops answering pings.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "session_id", sessionID, "err", err)
		return
	}

	sub := h.hub.Subscribe(sessionID)
	done := make(chan struct{})

	go h.readPump(conn, sessionID, sub, done)
	h.writePump(conn, sessionID, sub, done)
}

// readPump drains and discards inbound frames, keeping the pong deadline
// fresh. The subscription is torn down when the peer goes silent or closes.
func (h *WSHandler) readPump(conn *websocket.Conn, sessionID string, sub *Subscriber, done chan struct{}) {
	defer func() {
		h.hub.Unsubscribe(sessionID, sub)
		close(done)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", "session_id", sessionID, "err", err)
			}
			return
		}
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sessionID string, sub *Subscriber, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sessionID, sub)
		_ = conn.Close()
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("websocket write failed", "session_id", sessionID, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
