package broadcast

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// buildCheckOrigin returns a CheckOrigin function restricted to
// allowedOrigins when any are configured. An empty list allows all origins,
// matching local/dev kiosk deployments that front a single trusted display.
func buildCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		return func(r *http.Request) bool { return true }
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimSpace(origin)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			return true
		}
		slog.Warn("broadcast: rejected websocket connection from disallowed origin", "origin", origin)
		return false
	}
}

// WebSocketSubscriber wraps a single client connection. Sends are
// serialized through a buffered channel and a dedicated writer goroutine so
// concurrent Hub.Broadcast calls never race on the same *websocket.Conn.
type WebSocketSubscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (s *WebSocketSubscriber) ID() string { return s.id }

// Send queues payload for delivery. It never blocks on the network: a full
// send buffer is treated as a dead subscriber.
func (s *WebSocketSubscriber) Send(payload []byte) error {
	select {
	case s.send <- payload:
		return nil
	default:
		return errSendBufferFull
	}
}

func (s *WebSocketSubscriber) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer s.conn.Close()

	for {
		select {
		case payload := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// readLoop drains inbound frames so the connection's read deadline keeps
// advancing on pong. Display clients are not expected to send anything
// meaningful; inbound payloads are discarded.
func (s *WebSocketSubscriber) readLoop(h *Hub) {
	defer func() {
		h.Unregister(s.id)
		s.close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("broadcast: websocket read error", "subscriber", s.id, "error", err)
			}
			return
		}
	}
}

func (s *WebSocketSubscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Server upgrades incoming HTTP connections to WebSocket subscribers of a
// Hub.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer builds a Server that registers new connections with hub,
// restricting cross-origin upgrades to allowedOrigins.
func NewServer(hub *Hub, allowedOrigins []string) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     buildCheckOrigin(allowedOrigins),
		},
	}
}

// ServeHTTP upgrades the request and registers the resulting connection as
// a broadcast subscriber until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("broadcast: websocket upgrade failed", "error", err)
		return
	}

	sub := &WebSocketSubscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 16),
		done: make(chan struct{}),
	}

	s.hub.Register(sub)
	slog.Info("broadcast: display client connected", "subscriber", sub.id)

	go sub.writeLoop()
	sub.readLoop(s.hub)
}

var errSendBufferFull = sendBufferFullError{}

type sendBufferFullError struct{}

func (sendBufferFullError) Error() string { return "subscriber send buffer full" }
