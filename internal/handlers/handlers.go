// Package handlers implements one function per recognized verb: account
// creation and sign-in/out, farm creation and attach/detach, and the four
// device-control setters, plus the reverse path that routes a farm's
// frame back to its owning client.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/rapidcontrol/server/internal/broker"
	"github.com/rapidcontrol/server/internal/command"
	"github.com/rapidcontrol/server/internal/conn"
	"github.com/rapidcontrol/server/internal/metrics"
	"github.com/rapidcontrol/server/internal/reply"
	"github.com/rapidcontrol/server/internal/store"
	"github.com/rapidcontrol/server/internal/types"
)

// Deps bundles everything a handler needs - the store, the routing
// fabric, metrics and a logger - captured once at startup.
type Deps struct {
	Store   store.Adapter
	Broker  *broker.Broker
	Metrics *metrics.Registry
	Log     *slog.Logger
}

// Func is the shape every verb handler has. sub is the subscriber handle
// the broker should notify on topics this connection subscribes to:
// sign_in subscribes it and sign_out unsubscribes it; the farm and set_*
// verbs do not use it.
type Func func(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply

// Dispatch maps each recognized verb to its handler.
var Dispatch = map[string]Func{
	"new_user":           NewUser,
	"sign_in":            SignIn,
	"sign_out":           SignOut,
	"new_farm":           NewFarm,
	"connect_farm":       ConnectFarm,
	"disconnect_farm":    DisconnectFarm,
	"set_temperature":    SetTemperature,
	"set_humidity":       SetHumidity,
	"set_light_interval": SetLightInterval,
	"set_pump_interval":  SetPumpInterval,
}

// NewUser creates the account and, on success, falls straight through to
// sign_in so the reply the caller sees is sign_in's.
func NewUser(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if state.SignedIn() {
		return reply.Err("new_user", "Already signed in!")
	}

	login, pass := cmd.Strings[0], cmd.Strings[1]
	if _, err := deps.Store.CreateUser(ctx, login, pass); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return reply.Err("new_user", "User already exist!")
		}
		deps.Log.Error("new_user: create user", "login", login, "error", err)
		return reply.Err("new_user", "Internal error")
	}

	return SignIn(ctx, deps, state, sub, &command.Command{Verb: "sign_in", Strings: []string{login, pass}})
}

// SignIn authenticates, opens a session, and subscribes the connection
// to its topic - the client topic for a human user, the farm topic for
// a farm device.
func SignIn(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if state.SignedIn() {
		return reply.Err("sign_in", "Already signed in!")
	}

	login, pass := cmd.Strings[0], cmd.Strings[1]
	user, err := deps.Store.CheckPassword(ctx, login, pass)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reply.Err("sign_in", "Incorrect login or password")
		}
		deps.Log.Error("sign_in: check password", "login", login, "error", err)
		return reply.Err("sign_in", "Internal error")
	}

	session, err := deps.Store.CreateSession(ctx, user.Id)
	if err != nil {
		deps.Log.Error("sign_in: create session", "login", login, "error", err)
		return reply.Err("sign_in", "Internal error")
	}

	if err := state.Bind(user.Id, session); err != nil {
		// Cannot happen given the SignedIn() guard above, but don't leave
		// an orphaned session if it somehow does.
		deps.Store.DeleteSession(ctx, session)
		deps.Log.Error("sign_in: bind", "login", login, "error", err)
		return reply.Err("sign_in", "Internal error")
	}

	isFarm, err := deps.Store.IsInGroup(ctx, user.Id, types.FarmGroup)
	if err != nil {
		deps.Log.Error("sign_in: group check", "login", login, "error", err)
	}
	topic := broker.ClientTopic(session)
	if isFarm {
		topic = broker.FarmTopic(session)
	}
	deps.Broker.Subscribe(topic, sub)
	deps.Metrics.SessionOpened()

	return reply.OkWith("sign_in", strconv.FormatInt(session, 10))
}

// SignOut closes the session, cascading a farm detach first if one is
// attached, and unsubscribes sub from the topic it was given at sign_in
// so a closed connection's entry does not linger in the broker.
func SignOut(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if !state.SignedIn() {
		return reply.Err("sign_out", "Not signed in yet!")
	}

	if state.FarmAttached() {
		detachFarm(ctx, deps, state)
	}

	userId, _ := state.User()
	session, _ := state.Session()

	isFarm, err := deps.Store.IsInGroup(ctx, userId, types.FarmGroup)
	if err != nil {
		deps.Log.Error("sign_out: group check", "user", userId, "error", err)
	}
	topic := broker.ClientTopic(session)
	if isFarm {
		topic = broker.FarmTopic(session)
	}
	deps.Broker.Unsubscribe(topic, sub)

	if err := deps.Store.DeleteSession(ctx, session); err != nil {
		deps.Log.Error("sign_out: delete session", "session", session, "error", err)
	}
	state.Unbind()
	deps.Metrics.SessionClosed()

	return reply.Ok("sign_out")
}

// NewFarm creates the farm device's backing user, links and groups it
// atomically, then attaches via ConnectFarm so the reply the caller sees
// is connect_farm's.
func NewFarm(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if !state.SignedIn() {
		return reply.Err("new_farm", "Not sign in!")
	}
	if state.FarmAttached() {
		return reply.Err("new_farm", "Farm already connected!")
	}

	farmID, pass := cmd.Strings[0], cmd.Strings[1]
	owner, _ := state.User()

	_, err := deps.Store.NewFarm(ctx, owner, types.FarmUserName(farmID), pass)
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return reply.Err("new_farm", "Farm already exist!")
		}
		deps.Log.Error("new_farm: create", "farmId", farmID, "error", err)
		return reply.Err("new_farm", "Internal error")
	}

	return ConnectFarm(ctx, deps, state, sub, &command.Command{Verb: "connect_farm", Strings: []string{farmID, pass}})
}

// ConnectFarm authenticates a farm device and attaches it to the caller's
// already-signed-in connection.
func ConnectFarm(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if !state.SignedIn() {
		return reply.Err("connect_farm", "Not sign in!")
	}
	if state.FarmAttached() {
		return reply.Err("connect_farm", "Farm already connected!")
	}

	farmID, pass := cmd.Strings[0], cmd.Strings[1]
	farmUser, err := deps.Store.CheckPassword(ctx, types.FarmUserName(farmID), pass)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return reply.Err("connect_farm", "Incorrect farm login or password")
		}
		deps.Log.Error("connect_farm: check password", "farmId", farmID, "error", err)
		return reply.Err("connect_farm", "Internal error")
	}

	session, err := deps.Store.CreateSession(ctx, farmUser.Id)
	if err != nil {
		deps.Log.Error("connect_farm: create session", "farmId", farmID, "error", err)
		return reply.Err("connect_farm", "Internal error")
	}

	isFarm, err := deps.Store.IsInGroup(ctx, farmUser.Id, types.FarmGroup)
	if err != nil {
		deps.Log.Error("connect_farm: group check", "farmId", farmID, "error", err)
	}
	if !isFarm {
		deps.Store.DeleteSession(ctx, session)
		return reply.Err("connect_farm", "It is not farm!")
	}

	if err := state.AttachFarm(session); err != nil {
		deps.Store.DeleteSession(ctx, session)
		deps.Log.Error("connect_farm: attach", "farmId", farmID, "error", err)
		return reply.Err("connect_farm", "Internal error")
	}
	deps.Metrics.FarmAttached()

	return reply.OkWith("connect_farm", strconv.FormatInt(session, 10))
}

// DisconnectFarm detaches the currently attached farm.
func DisconnectFarm(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	if !state.SignedIn() {
		return reply.Err("disconnect_farm", "Not sign in!")
	}
	if !state.FarmAttached() {
		return reply.Err("disconnect_farm", "Farm not connected!")
	}

	detachFarm(ctx, deps, state)
	return reply.Ok("disconnect_farm")
}

// detachFarm is the shared teardown used directly by DisconnectFarm and
// cascaded from SignOut; it assumes the caller already verified a farm is
// attached.
func detachFarm(ctx context.Context, deps *Deps, state *conn.State) {
	session, _ := state.FarmSession()
	if err := deps.Store.DeleteSession(ctx, session); err != nil {
		deps.Log.Error("disconnect_farm: delete session", "session", session, "error", err)
	}
	state.DetachFarm()
	deps.Metrics.FarmDetached()
}

// SetTemperature forwards a temperature setpoint to the attached farm.
func SetTemperature(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	return forwardToFarm(ctx, deps, state, cmd)
}

// SetHumidity forwards a humidity setpoint to the attached farm.
func SetHumidity(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	return forwardToFarm(ctx, deps, state, cmd)
}

// SetLightInterval forwards a light-cycle setting to the attached farm.
func SetLightInterval(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	return forwardToFarm(ctx, deps, state, cmd)
}

// SetPumpInterval forwards a pump-cycle setting to the attached farm.
func SetPumpInterval(ctx context.Context, deps *Deps, state *conn.State, sub broker.Subscriber, cmd *command.Command) reply.Reply {
	return forwardToFarm(ctx, deps, state, cmd)
}

// forwardToFarm is the shared shape of the four device-control verbs:
// publish the original command text on the attached farm's topic and
// acknowledge locally without waiting for the farm to respond.
func forwardToFarm(ctx context.Context, deps *Deps, state *conn.State, cmd *command.Command) reply.Reply {
	if !state.SignedIn() {
		return reply.Err(cmd.Verb, "Not signed in yet!")
	}
	farmSession, ok := state.FarmSession()
	if !ok {
		return reply.Err(cmd.Verb, "Farm not connected!")
	}

	delivered := deps.Broker.Publish(broker.FarmTopic(farmSession), []byte(cmd.Raw()))
	deps.Metrics.Published("arduino", delivered)

	return reply.Ok(cmd.Verb)
}

// RouteFarmMessage relays a frame from a farm-device connection verbatim
// to the farm's owning client, resolved via the Farm table and the
// owner's currently active session. Callers never parse a farm's frame
// as a command.
func RouteFarmMessage(ctx context.Context, deps *Deps, farmUserId int64, message []byte) {
	ownerUserId, err := deps.Store.FarmOwner(ctx, farmUserId)
	if err != nil {
		deps.Log.Warn("farm message: no owner on record", "farmUser", farmUserId, "error", err)
		return
	}

	ownerSession, err := deps.Store.ActiveSession(ctx, ownerUserId)
	if err != nil {
		// Owner is not currently signed in: a silent drop, not an error.
		return
	}

	delivered := deps.Broker.Publish(broker.ClientTopic(ownerSession), message)
	deps.Metrics.Published("client", delivered)
}
