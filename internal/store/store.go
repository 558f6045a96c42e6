// Package store defines the Adapter interface consumed by the
// session-and-routing core, and the error taxonomy every implementation
// must surface. Identity, group membership, sessions and farm ownership
// all live behind this single interface; the concrete SQLite-backed
// implementation is in the sqlite subpackage.
package store

import (
	"context"
	"errors"

	"github.com/rapidcontrol/server/internal/types"
)

// Sentinel errors every Adapter implementation must return so handlers can
// branch on outcome without depending on a specific backing store's error
// types.
var (
	// ErrAlreadyExists is returned by CreateUser when the requested name
	// is taken.
	ErrAlreadyExists = errors.New("store: already exists")
	// ErrNotFound is returned when a lookup finds no matching row, and by
	// CheckPassword for a password mismatch.
	ErrNotFound = errors.New("store: not found")
)

// Adapter is the interface the session-and-routing core requires of its
// identity store. Every method may additionally fail with an
// implementation-specific error wrapping an I/O or constraint violation;
// callers should treat any non-nil, non-sentinel error as a StoreError.
type Adapter interface {
	// Open readies the adapter for use (applies migrations).
	Open(ctx context.Context) error
	// Close releases any resources held by the adapter.
	Close() error

	// FindUserByName performs a unique-index lookup by name. Returns
	// ErrNotFound if no such user exists.
	FindUserByName(ctx context.Context, name string) (*types.User, error)

	// CreateUser creates a new user with the given name and plaintext
	// password (hashed by the adapter before persisting). Returns
	// ErrAlreadyExists if name is taken.
	CreateUser(ctx context.Context, name, password string) (int64, error)

	// CheckPassword returns the User iff name exists and password matches
	// the stored hash. Returns ErrNotFound for either a missing user or a
	// mismatched password - the core does not need to distinguish the two.
	CheckPassword(ctx context.Context, name, password string) (*types.User, error)

	// CreateSession issues a new session for userId.
	CreateSession(ctx context.Context, userId int64) (int64, error)
	// DeleteSession removes a session. Deleting a session that does not
	// exist is not an error.
	DeleteSession(ctx context.Context, sessionId int64) error
	// SessionUser returns the userId bound to a session. Returns
	// ErrNotFound if the session does not exist.
	SessionUser(ctx context.Context, sessionId int64) (int64, error)

	// IsInGroup reports whether userId is a member of the named group.
	IsInGroup(ctx context.Context, userId int64, groupName string) (bool, error)
	// AddToGroup adds userId to the named group, creating the group if it
	// does not yet exist. Returns false, without error, if already a
	// member.
	AddToGroup(ctx context.Context, userId int64, groupName string) (bool, error)

	// LinkFarm records the ownership edge between a human user and a farm
	// device user.
	LinkFarm(ctx context.Context, ownerUserId, farmUserId int64) error
	// OwnedFarm returns the Farm row owned by ownerUserId, if any. Returns
	// ErrNotFound if the owner has no linked farm.
	OwnedFarm(ctx context.Context, ownerUserId int64) (*types.Farm, error)

	// NewFarm atomically creates the farm user, links it to owner, and
	// adds it to the well-known farm group - a three-row sequence that
	// must appear atomic to the core.
	NewFarm(ctx context.Context, ownerUserId int64, farmName, password string) (farmUserId int64, err error)

	// FarmOwner returns the owning user id for farmUserId, the reverse of
	// OwnedFarm. Used when routing a farm-originated frame back to its
	// owning client. Returns ErrNotFound if farmUserId owns no Farm row.
	FarmOwner(ctx context.Context, farmUserId int64) (int64, error)

	// ActiveSession returns the most recently created session for userId.
	// Routing a farm's frame to its owner addresses "client_<session>",
	// but the Farm table only records the owner's user id, not their
	// current session; ActiveSession resolves the latter so the routing
	// fabric can address the owner's live topic. Returns ErrNotFound if
	// userId has no open session.
	ActiveSession(ctx context.Context, userId int64) (int64, error)
}
