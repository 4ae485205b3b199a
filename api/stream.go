package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360studio/taskjournal/tasks"
)

type streamConfig struct {
	buffer     int
	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
	origins    []string
}

func defaultStreamConfig() streamConfig {
	return streamConfig{
		buffer:     64,
		writeWait:  10 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// WithAllowedOrigins accepts websocket upgrades from the given origins in
// addition to same-origin requests. "*" accepts any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) {
		h.stream.origins = origins
	}
}

// handleStream upgrades to a websocket and pushes every change event as a
// JSON message until the client goes away. Events that overflow the buffer
// are dropped; clients recover by reloading the list.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	up := upgrader
	up.CheckOrigin = h.checkOrigin

	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	cfg := h.stream
	events := make(chan tasks.ChangeEvent, cfg.buffer)
	sub, err := h.store.Subscribe(func(kind tasks.ChangeKind, t tasks.Task) {
		select {
		case events <- tasks.ChangeEvent{Kind: kind, Task: t, At: time.Now().UTC()}:
		default:
			h.logger.Warn("Stream client too slow, dropping event", "kind", kind, "id", t.ID)
		}
	})
	if err != nil {
		h.logger.Error("Stream subscribe failed", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(cfg.writeWait))
		return
	}
	defer sub.Cancel()

	// The read loop only services control frames and notices disconnects.
	closed := make(chan struct{})
	_ = conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(cfg.pingPeriod)
	defer ticker.Stop()

	h.logger.Debug("Stream client connected", "remote", r.RemoteAddr)
	for {
		select {
		case ev := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("Stream write failed", "error", err)
				return
			}
			h.metrics.ObserveFeed(string(ev.Kind), "streamed")
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.writeWait)); err != nil {
				return
			}
		case <-closed:
			h.logger.Debug("Stream client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.stream.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return sameOrigin(r, origin)
}

func sameOrigin(r *http.Request, origin string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		if origin == scheme+r.Host {
			return true
		}
	}
	return false
}
