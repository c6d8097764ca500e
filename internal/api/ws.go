package api

import (
	"net/http"
	"time"

	"voting_api_gateway/internal/model"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is handled by the CORS layer; the socket itself
	// accepts any origin, matching the open voting frontend.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WatchSession handles GET /ws?session={id}. The connected device receives
// every event published to its session until either side closes. A missed
// event is recovered by polling the session status endpoint.
func (h *Handler) WatchSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.bus.Subscribe(sessionID)
	defer cancel()

	h.logger.Debug("websocket joined session",
		zap.String("session_id", sessionID), zap.String("remote_addr", r.RemoteAddr))

	// Confirm to the device that it is listening.
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(model.Event{SessionID: sessionID, Type: model.EventSessionJoined}); err != nil {
		return
	}

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
