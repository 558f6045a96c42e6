package handlers

import (
	"context"
	"log/slog"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidcontrol/server/internal/broker"
	"github.com/rapidcontrol/server/internal/command"
	"github.com/rapidcontrol/server/internal/conn"
	"github.com/rapidcontrol/server/internal/metrics"
	"github.com/rapidcontrol/server/internal/store"
	"github.com/rapidcontrol/server/internal/types"
)

// fakeStore is an in-memory store.Adapter used only by these tests.
type fakeStore struct {
	nextID   int64
	users    map[int64]*types.User
	byName   map[string]int64
	sessions map[int64]int64 // sessionId -> userId
	groups   map[int64]map[string]bool
	farms    map[int64]int64 // ownerUserId -> farmUserId
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]*types.User),
		byName:   make(map[string]int64),
		sessions: make(map[int64]int64),
		groups:   make(map[int64]map[string]bool),
		farms:    make(map[int64]int64),
	}
}

func (f *fakeStore) id() int64 { f.nextID++; return f.nextID }

func (f *fakeStore) Open(ctx context.Context) error { return nil }
func (f *fakeStore) Close() error                   { return nil }

func (f *fakeStore) FindUserByName(ctx context.Context, name string) (*types.User, error) {
	id, ok := f.byName[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.users[id], nil
}

func (f *fakeStore) CreateUser(ctx context.Context, name, password string) (int64, error) {
	if _, ok := f.byName[name]; ok {
		return 0, store.ErrAlreadyExists
	}
	id := f.id()
	f.users[id] = &types.User{Id: id, Name: name, Password: password}
	f.byName[name] = id
	return id, nil
}

func (f *fakeStore) CheckPassword(ctx context.Context, name, password string) (*types.User, error) {
	u, err := f.FindUserByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if u.Password != password {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, userId int64) (int64, error) {
	id := f.id()
	f.sessions[id] = userId
	return id, nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, sessionId int64) error {
	delete(f.sessions, sessionId)
	return nil
}

func (f *fakeStore) SessionUser(ctx context.Context, sessionId int64) (int64, error) {
	userId, ok := f.sessions[sessionId]
	if !ok {
		return 0, store.ErrNotFound
	}
	return userId, nil
}

func (f *fakeStore) IsInGroup(ctx context.Context, userId int64, groupName string) (bool, error) {
	return f.groups[userId][groupName], nil
}

func (f *fakeStore) AddToGroup(ctx context.Context, userId int64, groupName string) (bool, error) {
	if f.groups[userId] == nil {
		f.groups[userId] = make(map[string]bool)
	}
	if f.groups[userId][groupName] {
		return false, nil
	}
	f.groups[userId][groupName] = true
	return true, nil
}

func (f *fakeStore) LinkFarm(ctx context.Context, ownerUserId, farmUserId int64) error {
	f.farms[ownerUserId] = farmUserId
	return nil
}

func (f *fakeStore) OwnedFarm(ctx context.Context, ownerUserId int64) (*types.Farm, error) {
	farmId, ok := f.farms[ownerUserId]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &types.Farm{UserId: ownerUserId, FarmId: farmId}, nil
}

func (f *fakeStore) NewFarm(ctx context.Context, ownerUserId int64, farmName, password string) (int64, error) {
	farmUserId, err := f.CreateUser(ctx, farmName, password)
	if err != nil {
		return 0, err
	}
	if err := f.LinkFarm(ctx, ownerUserId, farmUserId); err != nil {
		return 0, err
	}
	if _, err := f.AddToGroup(ctx, farmUserId, types.FarmGroup); err != nil {
		return 0, err
	}
	return farmUserId, nil
}

func (f *fakeStore) FarmOwner(ctx context.Context, farmUserId int64) (int64, error) {
	for owner, farm := range f.farms {
		if farm == farmUserId {
			return owner, nil
		}
	}
	return 0, store.ErrNotFound
}

func (f *fakeStore) ActiveSession(ctx context.Context, userId int64) (int64, error) {
	var best int64 = -1
	for sid, uid := range f.sessions {
		if uid == userId && sid > best {
			best = sid
		}
	}
	if best < 0 {
		return 0, store.ErrNotFound
	}
	return best, nil
}

var _ store.Adapter = (*fakeStore)(nil)

type recordingSubscriber struct {
	messages [][]byte
}

func (r *recordingSubscriber) Deliver(message []byte) {
	r.messages = append(r.messages, message)
}

func testDeps(t *testing.T) (*Deps, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	return &Deps{
		Store:   fs,
		Broker:  broker.New(),
		Metrics: metrics.New(prometheus.NewRegistry()),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, fs
}

func TestNewUser_ThenSignIn(t *testing.T) {
	deps, _ := testDeps(t)
	state := conn.New()
	sub := &recordingSubscriber{}

	r := NewUser(context.Background(), deps, state, sub, &command.Command{Strings: []string{"alice", "hunter2"}})
	require.True(t, r.IsOk())
	assert.True(t, state.SignedIn())

	r2 := NewUser(context.Background(), deps, state, sub, &command.Command{Strings: []string{"alice", "hunter2"}})
	assert.False(t, r2.IsOk())
}

func TestSignIn_WrongPassword(t *testing.T) {
	deps, fs := testDeps(t)
	_, err := fs.CreateUser(context.Background(), "bob", "correct")
	require.NoError(t, err)

	state := conn.New()
	r := SignIn(context.Background(), deps, state, &recordingSubscriber{}, &command.Command{Strings: []string{"bob", "wrong"}})
	assert.False(t, r.IsOk())
	assert.False(t, state.SignedIn())
}

func TestSignOut_DetachesFarmFirst(t *testing.T) {
	deps, _ := testDeps(t)
	state := conn.New()
	sub := &recordingSubscriber{}

	require.True(t, NewUser(context.Background(), deps, state, sub, &command.Command{Strings: []string{"carol", "pw"}}).IsOk())
	require.True(t, NewFarm(context.Background(), deps, state, sub, &command.Command{Strings: []string{"f1", "farmpw"}}).IsOk())
	assert.True(t, state.FarmAttached())

	r := SignOut(context.Background(), deps, state, sub, &command.Command{})
	assert.True(t, r.IsOk())
	assert.False(t, state.SignedIn())
	assert.False(t, state.FarmAttached())
}

func TestForwardToFarm_DeliversOnFarmTopic(t *testing.T) {
	deps, _ := testDeps(t)
	state := conn.New()
	clientSub := &recordingSubscriber{}
	farmSub := &recordingSubscriber{}

	require.True(t, NewUser(context.Background(), deps, state, clientSub, &command.Command{Strings: []string{"dana", "pw"}}).IsOk())
	connectReply := NewFarm(context.Background(), deps, state, clientSub, &command.Command{Strings: []string{"f2", "farmpw"}})
	require.True(t, connectReply.IsOk())

	farmSession, ok := state.FarmSession()
	require.True(t, ok)
	deps.Broker.Subscribe(broker.FarmTopic(farmSession), farmSub)

	r := SetTemperature(context.Background(), deps, state, clientSub, &command.Command{Verb: "set_temperature", Floats: []float64{22.5}})
	assert.True(t, r.IsOk())
	require.Len(t, farmSub.messages, 1)
}

func TestSignOut_UnsubscribesOwnTopic(t *testing.T) {
	deps, _ := testDeps(t)
	state := conn.New()
	sub := &recordingSubscriber{}

	require.True(t, NewUser(context.Background(), deps, state, sub, &command.Command{Strings: []string{"heidi", "pw"}}).IsOk())
	session, ok := state.Session()
	require.True(t, ok)

	topic := broker.ClientTopic(session)
	assert.True(t, deps.Broker.Publish(topic, []byte("x")), "sign_in must have subscribed the topic")

	require.True(t, SignOut(context.Background(), deps, state, sub, &command.Command{}).IsOk())
	assert.False(t, deps.Broker.Publish(topic, []byte("y")), "sign_out must unsubscribe the topic, not just clear local state")
}

func TestRouteFarmMessage_ReachesOwningClient(t *testing.T) {
	deps, fs := testDeps(t)
	ctx := context.Background()

	ownerId, err := fs.CreateUser(ctx, "erin", "pw")
	require.NoError(t, err)
	ownerSession, err := fs.CreateSession(ctx, ownerId)
	require.NoError(t, err)

	farmUserId, err := fs.NewFarm(ctx, ownerId, "f3", "farmpw")
	require.NoError(t, err)

	ownerSub := &recordingSubscriber{}
	deps.Broker.Subscribe(broker.ClientTopic(ownerSession), ownerSub)

	RouteFarmMessage(ctx, deps, farmUserId, []byte("temperature 22.1"))
	require.Len(t, ownerSub.messages, 1)
	assert.Equal(t, "temperature 22.1", string(ownerSub.messages[0]))
}
