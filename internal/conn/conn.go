// Package conn implements the per-socket connection-state manager: an
// optional user/session/farmSession triple tracking whether a socket is
// anonymous, signed in, or signed in with a farm attached.
//
// No internal locking: the transport guarantees callbacks for a given
// socket are serialized, so a State is only ever touched by the single
// goroutine owning its socket.
package conn

import "fmt"

// State is the in-memory record for one socket.
type State struct {
	user        *int64
	session     *int64
	farmSession *int64
}

// New returns an empty, anonymous State.
func New() *State {
	return &State{}
}

// SignedIn reports whether a user is bound to this connection.
func (s *State) SignedIn() bool {
	return s.user != nil
}

// FarmAttached reports whether a farm session is attached.
func (s *State) FarmAttached() bool {
	return s.farmSession != nil
}

// User returns the bound user id and whether one is bound.
func (s *State) User() (int64, bool) {
	if s.user == nil {
		return 0, false
	}
	return *s.user, true
}

// Session returns the bound session id and whether one is bound.
func (s *State) Session() (int64, bool) {
	if s.session == nil {
		return 0, false
	}
	return *s.session, true
}

// FarmSession returns the attached farm session id and whether one is
// attached.
func (s *State) FarmSession() (int64, bool) {
	if s.farmSession == nil {
		return 0, false
	}
	return *s.farmSession, true
}

// Bind records a successful sign-in. It is an idempotency error to call
// Bind on an already signed-in connection.
func (s *State) Bind(user, session int64) error {
	if s.user != nil || s.session != nil {
		return fmt.Errorf("conn: bind on already signed-in connection")
	}
	s.user = &user
	s.session = &session
	return nil
}

// AttachFarm records a successful farm attachment. Requires the
// connection to be signed in and not already farm-attached.
func (s *State) AttachFarm(farmSession int64) error {
	if s.user == nil {
		return fmt.Errorf("conn: attach-farm while not signed in")
	}
	if s.farmSession != nil {
		return fmt.Errorf("conn: attach-farm while already attached")
	}
	s.farmSession = &farmSession
	return nil
}

// DetachFarm clears the farm attachment, if any.
func (s *State) DetachFarm() {
	s.farmSession = nil
}

// Unbind clears the signed-in identity. Callers must detach any farm
// first (handlers.SignOut does this).
func (s *State) Unbind() {
	s.user = nil
	s.session = nil
}
