// Package session implements the per-socket state machine: the
// open/message/close control flow driving the command parser, handlers,
// and connection state together.
package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rapidcontrol/server/internal/command"
	"github.com/rapidcontrol/server/internal/conn"
	"github.com/rapidcontrol/server/internal/handlers"
	"github.com/rapidcontrol/server/internal/reply"
	"github.com/rapidcontrol/server/internal/types"
)

// Socket is the minimal send-only view of the transport this package
// needs. The transport itself (an upgraded websocket, in wsserver) is an
// external collaborator and is not part of this package.
type Socket interface {
	// Send writes a single frame. The caller swallows a failed send and
	// treats the socket as closed.
	Send(message []byte) error
	// RemoteAddr identifies the peer, for logging only.
	RemoteAddr() string
}

// Session is the in-memory state for one socket: its connection state
// (conn.State) plus the plumbing to dispatch frames and receive routed
// messages.
type Session struct {
	deps   *handlers.Deps
	socket Socket
	state  *conn.State
}

// New returns a Session wrapping socket. Call Open once the transport has
// accepted the connection.
func New(deps *handlers.Deps, socket Socket) *Session {
	return &Session{deps: deps, socket: socket, state: conn.New()}
}

// Open logs the new connection. There is no further bookkeeping: the
// Connection record (conn.State) already exists from New.
func (s *Session) Open() {
	s.deps.Log.Info("session opened", "remote", s.socket.RemoteAddr())
}

// Deliver implements broker.Subscriber: a message routed to this
// session's subscribed topic is written straight to the socket.
func (s *Session) Deliver(message []byte) {
	if err := s.socket.Send(message); err != nil {
		s.deps.Log.Warn("session: deliver failed, socket considered closed",
			"remote", s.socket.RemoteAddr(), "error", err)
	}
}

// OnMessage handles one inbound frame. A farm-origin connection's frame
// is relayed verbatim and never parsed as a command; anything else is
// tokenized, dispatched to its handler, and replied to exactly once.
func (s *Session) OnMessage(ctx context.Context, raw []byte) {
	if userId, ok := s.state.User(); ok {
		isFarm, err := s.deps.Store.IsInGroup(ctx, userId, types.FarmGroup)
		if err != nil {
			s.deps.Log.Error("session: group check", "user", userId, "error", err)
		} else if isFarm {
			handlers.RouteFarmMessage(ctx, s.deps, userId, raw)
			return
		}
	}

	cmd, err := command.Parse(string(raw))
	if err != nil {
		var perr *command.ParseError
		verb := ""
		if errors.As(err, &perr) {
			verb = perr.Verb
		}
		s.deps.Metrics.CommandProcessed(verb, "parse_error")
		s.Deliver(reply.ProtocolError(verb))
		return
	}

	fn := handlers.Dispatch[cmd.Verb]
	r := fn(ctx, s.deps, s.state, s, cmd)

	outcome := "error"
	if r.IsOk() {
		outcome = "ok"
	}
	s.deps.Metrics.CommandProcessed(cmd.Verb, outcome)

	s.Deliver(r.Bytes())
}

// OnClose runs the sign_out handler if the connection was signed in
// (itself cascading a farm detach when needed). Idempotent, and never
// fails fatally - store errors during teardown are logged and swallowed
// by the handler itself.
func (s *Session) OnClose(ctx context.Context) {
	if !s.state.SignedIn() {
		return
	}
	r := handlers.SignOut(ctx, s.deps, s.state, s, &command.Command{Verb: "sign_out"})
	s.deps.Log.Info("session closed", "remote", s.socket.RemoteAddr(), "teardown", r.String())
}
