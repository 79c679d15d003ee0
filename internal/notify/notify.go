// Package notify serves the live-reload notification endpoint. Every
// connection is held open as a push stream backed by the broadcast hub: the
// default transport is Server-Sent-Events (what the injected script
// consumes), with a WebSocket variant on /ws for clients that prefer it.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"github.com/InsiderPie/http-reload-proxy/internal/hub"
	"github.com/InsiderPie/http-reload-proxy/internal/logging"
)

// Time allowed to write a message to a WebSocket peer.
const writeWait = 10 * time.Second

// Server handles notification-endpoint connections.
type Server struct {
	hub           *hub.Hub
	allowedOrigin string
	originPattern string
	logger        logging.Logger
}

// NewServer creates a notification server over the given hub. allowedOrigin
// is the value sent back in Access-Control-Allow-Origin and the origin
// accepted for WebSocket upgrades.
func NewServer(h *hub.Hub, allowedOrigin string, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}

	pattern := allowedOrigin
	if u, err := url.Parse(allowedOrigin); err == nil && u.Host != "" {
		pattern = u.Host
	}

	return &Server{
		hub:           h,
		allowedOrigin: allowedOrigin,
		originPattern: pattern,
		logger:        logger.WithComponent("notify"),
	}
}

// Handler returns the http.Handler for the notification listener. Every
// path and method gets the event-stream treatment, with one exception: /ws
// upgrades to a WebSocket carrying the same notification tokens.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/", s.handleEventStream)
	return mux
}

// handleEventStream serves one SSE connection. Any method and any path get
// identical treatment; the request body is never read. The connection stays
// open until the client goes away.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	// Keeps nginx and friends from buffering the stream.
	header.Set("X-Accel-Buffering", "no")
	header.Set("Access-Control-Allow-Origin", s.allowedOrigin)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-sub.Events():
			if !open {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", event); err != nil {
				// Client disconnected mid-write; nothing to escalate.
				return
			}
			flusher.Flush()
		}
	}
}

// handleWebSocket serves one WebSocket connection delivering the same
// notification tokens as the event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{s.originPattern},
	})
	if err != nil {
		s.logger.Debug(r.Context(), "websocket upgrade rejected", "error", err.Error())
		return
	}

	// No inbound messages are expected; CloseRead watches for the client
	// closing the connection.
	ctx := conn.CloseRead(r.Context())

	sub := s.hub.Subscribe()
	defer s.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, open := <-sub.Events():
			if !open {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(writeCtx, websocket.MessageText, []byte(event))
			cancel()
			if err != nil {
				return
			}
		}
	}
}
