package board_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"retro/internal/board"
	"retro/internal/model"
	"retro/internal/pubsub"
	"retro/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	boards  map[uuid.UUID]*model.Board
	saves   int
	saveErr error
}

func newMemStore(boards ...*model.Board) *memStore {
	s := &memStore{boards: make(map[uuid.UUID]*model.Board)}
	for _, b := range boards {
		s.boards[b.ID] = b
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

func (s *memStore) Save(_ context.Context, b *model.Board) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.boards[b.ID] = b.Clone()
	return nil
}

type memRoles struct {
	mu    sync.Mutex
	roles map[uuid.UUID]model.Role
}

func newMemRoles() *memRoles { return &memRoles{roles: make(map[uuid.UUID]model.Role)} }

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

func (r *memRoles) get(userID uuid.UUID) model.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roles[userID]
}

type fixture struct {
	t      *testing.T
	store  *memStore
	roles  *memRoles
	broker *pubsub.Broker[board.Update]
	hub    *board.Hub
	board  *model.Board
	owner  uuid.UUID
}

func newBoard(columns ...string) *model.Board {
	b := &model.Board{
		ID:       uuid.New(),
		Name:     "Retro",
		OwnerID:  uuid.New(),
		Settings: model.DefaultSettings(),
	}
	for i, title := range columns {
		b.Columns = append(b.Columns, model.Column{ID: uuid.New(), Title: title, Position: i})
	}
	return b
}

func newFixture(t *testing.T, b *model.Board, historySize int) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	f := &fixture{
		t:      t,
		store:  newMemStore(b),
		roles:  newMemRoles(),
		broker: pubsub.NewBroker[board.Update](),
		board:  b,
		owner:  b.OwnerID,
	}
	f.hub = board.NewHub(board.HubConfig{
		Store:       f.store,
		Roles:       f.roles,
		Validator:   validation.New(),
		Publisher:   f.broker,
		HistorySize: historySize,
		Log:         logger,
	})
	t.Cleanup(f.hub.Close)
	return f
}

func (f *fixture) attach() *board.Lease {
	f.t.Helper()
	lease, err := f.hub.Attach(context.Background(), f.board.ID)
	require.NoError(f.t, err)
	f.t.Cleanup(lease.Release)
	return lease
}

func (f *fixture) dispatch(lease *board.Lease, op board.Operation) board.Result {
	f.t.Helper()
	res, err := lease.Dispatch(context.Background(), f.owner, op)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) addCard(lease *board.Lease, columnID uuid.UUID, content string, likes int) uuid.UUID {
	f.t.Helper()
	res := f.dispatch(lease, board.AddAndLockCard{ColumnID: columnID, UserID: f.owner})
	if content != "" {
		f.dispatch(lease, board.UpdateCardContent{CardID: res.Card.ID, Content: content})
	}
	for i := 0; i < likes; i++ {
		f.dispatch(lease, board.LikeCard{CardID: res.Card.ID, UserID: uuid.New()})
	}
	return res.Card.ID
}

func itemIDs(col model.Column) []uuid.UUID {
	out := make([]uuid.UUID, len(col.Items))
	for i, it := range col.Items {
		out[i] = it.ID()
	}
	return out
}

func nextUpdate(t *testing.T, sub *pubsub.Subscription[board.Update]) board.Update {
	t.Helper()
	select {
	case u := <-sub.C():
		return u
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
	return board.Update{}
}

func assertNoUpdate(t *testing.T, sub *pubsub.Subscription[board.Update]) {
	t.Helper()
	select {
	case u := <-sub.C():
		t.Fatalf("unexpected update seq %d", u.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

var errBoom = errors.New("boom")
