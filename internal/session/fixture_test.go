package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"retro/internal/board"
	"retro/internal/model"
	"retro/internal/presence"
	"retro/internal/pubsub"
	"retro/internal/session"
	"retro/internal/validation"
)

type memStore struct {
	mu     sync.Mutex
	boards map[uuid.UUID]*model.Board
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boards[id].Clone(), nil
}

func (s *memStore) Save(_ context.Context, b *model.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[b.ID] = b.Clone()
	return nil
}

type memRoles struct {
	mu    sync.Mutex
	roles map[uuid.UUID]model.Role
	err   error
}

func (r *memRoles) ShareBoard(_ context.Context, _, userID uuid.UUID, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[userID] = role
	return nil
}

func (r *memRoles) RemoveShare(_ context.Context, _, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roles, userID)
	return nil
}

func (r *memRoles) GetUserRole(_ context.Context, _, userID uuid.UUID) (model.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roles[userID], r.err
}

func (r *memRoles) failWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

type memUsers map[uuid.UUID]model.User

func (u memUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	user, ok := u[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (u memUsers) Suggest(_ context.Context, _ string, limit int) ([]model.User, error) {
	var out []model.User
	for _, user := range u {
		if len(out) < limit {
			out = append(out, user)
		}
	}
	return out, nil
}

type fixture struct {
	t        *testing.T
	board    *model.Board
	owner    uuid.UUID
	roles    *memRoles
	users    memUsers
	broker   *pubsub.Broker[board.Update]
	presence *presence.Registry
	hub      *board.Hub
	manager  *session.Manager
}

func newFixture(t *testing.T, visibility model.Visibility) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	b := &model.Board{
		ID:       uuid.New(),
		Name:     "Retro",
		OwnerID:  uuid.New(),
		Settings: model.DefaultSettings(),
		Columns: []model.Column{
			{ID: uuid.New(), Title: "Went well", Position: 0},
			{ID: uuid.New(), Title: "To improve", Position: 1},
		},
	}
	b.Settings.Visibility = visibility
	f := &fixture{
		t:        t,
		board:    b,
		owner:    b.OwnerID,
		roles:    &memRoles{roles: make(map[uuid.UUID]model.Role)},
		users:    memUsers{b.OwnerID: {ID: b.OwnerID, Name: "Olivia"}},
		broker:   pubsub.NewBroker[board.Update](),
		presence: presence.NewRegistry(presence.Config{NodeID: "test", Log: logger}),
	}
	store := &memStore{boards: map[uuid.UUID]*model.Board{b.ID: b}}
	f.hub = board.NewHub(board.HubConfig{
		Store:     store,
		Roles:     f.roles,
		Validator: validation.New(),
		Publisher: f.broker,
		Log:       logger,
	})
	f.manager = session.NewManager(session.Config{
		Authorities: f.hub,
		Updates:     f.broker,
		Presence:    f.presence,
		Roles:       f.roles,
		Users:       f.users,
		Validator:   validation.New(),
		HistorySize: 5,
		Log:         logger,
	})
	t.Cleanup(func() {
		f.manager.Close()
		f.hub.Close()
	})
	return f
}

func (f *fixture) user(name string, role model.Role) uuid.UUID {
	id := uuid.New()
	f.users[id] = model.User{ID: id, Name: name}
	if role != model.RoleNone {
		f.roles.roles[id] = role
	}
	return id
}

func (f *fixture) connect(userID uuid.UUID) *session.Session {
	f.t.Helper()
	s, err := f.manager.Connect(context.Background(), f.board.ID, userID)
	require.NoError(f.t, err)
	return s
}

func do(t *testing.T, s *session.Session, event string, kv ...string) session.Reply {
	t.Helper()
	reply, err := s.Do(context.Background(), intent(event, kv...))
	require.NoError(t, err)
	return reply
}

func intent(event string, kv ...string) session.Intent {
	payload := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		payload[kv[i]] = kv[i+1]
	}
	return session.Intent{Event: event, Payload: payload}
}

func view(t *testing.T, s *session.Session) session.View {
	t.Helper()
	v, err := s.View(context.Background())
	require.NoError(t, err)
	return v
}

// eventually polls the session view until cond holds.
func eventually(t *testing.T, s *session.Session, cond func(session.View) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, err := s.View(context.Background())
		return err == nil && cond(v)
	}, 2*time.Second, 10*time.Millisecond)
}

// terminated waits for the terminated push.
func terminated(t *testing.T, s *session.Session) session.Push {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case p, ok := <-s.Pushes():
			require.True(t, ok, "pushes closed without terminated")
			if p.Kind == session.PushTerminated {
				return p
			}
		case <-timeout:
			t.Fatal("session was not terminated")
			return session.Push{}
		}
	}
}

func cardIDs(b *model.Board, column int) []uuid.UUID {
	var out []uuid.UUID
	for _, it := range b.Columns[column].Items {
		out = append(out, it.ID())
	}
	return out
}
