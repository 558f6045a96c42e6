// Package wsserver upgrades incoming HTTP requests to websocket
// connections and drives each one through a session.Session: a read
// pump parsing inbound frames, and a send channel drained by a write
// pump so Session.Deliver (called from another goroutine via the
// broker) never blocks on socket I/O.
package wsserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidcontrol/server/internal/handlers"
	"github.com/rapidcontrol/server/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades connections and wires them to Deps.
type Handler struct {
	deps *handlers.Deps
}

// New returns a Handler serving websocket connections with deps.
func New(deps *handlers.Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Log.Warn("wsserver: upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	sock := &socket{conn: conn, remoteAddr: r.RemoteAddr, send: make(chan []byte, sendBuffer)}
	sess := session.New(h.deps, sock)
	sess.Open()

	go sock.writePump(h.deps.Log)
	sock.readPump(context.Background(), sess, h.deps.Log)
}

// socket implements session.Socket over a gorilla/websocket connection.
type socket struct {
	conn       *websocket.Conn
	remoteAddr string
	send       chan []byte
}

func (s *socket) RemoteAddr() string { return s.remoteAddr }

// Send queues message for the write pump. Never blocks indefinitely: a
// slow or dead client's buffer fills and the send is dropped rather than
// stalling the broker publish that triggered it.
func (s *socket) Send(message []byte) error {
	select {
	case s.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = &sendBufferFullError{}

type sendBufferFullError struct{}

func (*sendBufferFullError) Error() string { return "wsserver: send buffer full" }

func (s *socket) readPump(ctx context.Context, sess *session.Session, log *slog.Logger) {
	defer func() {
		sess.OnClose(ctx)
		close(s.send)
		s.conn.Close()
	}()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("wsserver: read error", "remote", s.remoteAddr, "error", err)
			}
			return
		}
		sess.OnMessage(ctx, message)
	}
}

func (s *socket) writePump(log *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("wsserver: write error", "remote", s.remoteAddr, "error", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
