// Package types holds the core data model shared by the store and the
// session-and-routing core: users, groups, memberships, sessions and farm
// ownership edges.
package types

import "time"

// FarmGroup is the well-known group every farm device user is a member of.
const FarmGroup = "farm"

// ObjHeader carries the bookkeeping columns common to persisted rows.
type ObjHeader struct {
	CreatedAt time.Time
}

// User is a human account or, when Name has the "farm_" prefix, a farm
// device's credentials.
type User struct {
	ObjHeader
	Id       int64
	Name     string
	Password string // bcrypt hash, never plaintext
}

// IsFarmName reports whether name follows the farm device naming
// convention (farm_<external-id>).
func IsFarmName(name string) bool {
	return len(name) > farmPrefixLen && name[:farmPrefixLen] == farmPrefix
}

// FarmUserName builds the backing User.Name for a farm external id.
func FarmUserName(farmID string) string {
	return farmPrefix + farmID
}

const farmPrefix = "farm_"
const farmPrefixLen = len(farmPrefix)

// Group is a named set of users. Only one well-known group, FarmGroup,
// exists at provisioning time.
type Group struct {
	Id   int64
	Name string
}

// UserGroup is a membership edge between a User and a Group.
type UserGroup struct {
	UserId  int64
	GroupId int64
}

// Session is a live authentication token. The Id is the opaque integer
// surfaced to the client as the session token.
type Session struct {
	ObjHeader
	Id     int64
	UserId int64
}

// Farm is the ownership edge between a human user and a farm device user.
type Farm struct {
	Id     int64
	UserId int64 // owning human user
	FarmId int64 // the farm device's own user id
}
