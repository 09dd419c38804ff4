package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retro/internal/model"
	"retro/internal/presence"
)

func TestSearch(t *testing.T) {
	colA, colB := uuid.New(), uuid.New()
	c1 := model.Card{ID: uuid.New(), Content: "Standups ran long"}
	c2 := model.Card{ID: uuid.New(), Content: "great pairing"}
	c3 := model.Card{ID: uuid.New(), Content: "Long builds"}
	b := &model.Board{Columns: []model.Column{
		{ID: colA, Items: []model.Item{{Card: &c1}, {Card: &c2}}},
		{ID: colB, Items: []model.Item{{Pile: &model.Pile{ID: uuid.New(), Cards: []model.Card{c3}}}}},
	}}

	tests := []struct {
		name  string
		query string
		want  []SearchHit
	}{
		{"empty query", "  ", nil},
		{"case insensitive", "LONG", []SearchHit{{colA, c1.ID}, {colB, c3.ID}}},
		{"single", "pair", []SearchHit{{colA, c2.ID}}},
		{"no match", "retro", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Search(b, tt.query))
		})
	}
}

func TestOnlineUsersAndLocks(t *testing.T) {
	ada, bob := uuid.New(), uuid.New()
	card := uuid.New()
	entries := []presence.Entry{
		{Key: presence.Key{UserID: bob, ConnID: uuid.New()}, Meta: presence.Meta{DisplayName: "Bob", LockedCardID: &card}},
		{Key: presence.Key{UserID: ada, ConnID: uuid.New()}, Meta: presence.Meta{DisplayName: "Ada", LockedCardID: &card}},
		{Key: presence.Key{UserID: ada, ConnID: uuid.New()}, Meta: presence.Meta{DisplayName: "Ada", LockedCardID: &card}},
	}

	online := OnlineUsers(entries)
	require.Len(t, online, 2)
	assert.Equal(t, "Ada", online[0].DisplayName)
	assert.Equal(t, 2, online[0].Connections)
	assert.Equal(t, "Bob", online[1].DisplayName)

	locks := LockHolders(entries)
	assert.ElementsMatch(t, []uuid.UUID{ada, bob}, locks[card])
}

func TestMask(t *testing.T) {
	viewer, other := uuid.New(), uuid.New()
	mine := model.Card{ID: uuid.New(), Content: "mine", AuthorID: viewer}
	theirs := model.Card{ID: uuid.New(), Content: "theirs", AuthorID: other}
	b := &model.Board{Columns: []model.Column{{Items: []model.Item{{Card: &mine}, {Card: &theirs}}}}}

	assert.Same(t, b, mask(b, viewer))

	b.Settings.CardsHidden = true
	masked := mask(b, viewer)

	assert.Equal(t, "mine", masked.Columns[0].Items[0].Card.Content)
	assert.True(t, masked.Columns[0].Items[1].Card.Masked)
	assert.Empty(t, masked.Columns[0].Items[1].Card.Content)
	assert.Equal(t, "theirs", b.Columns[0].Items[1].Card.Content)
}

func TestEventWindow(t *testing.T) {
	w := newEventWindow(3)
	base := time.Now()
	events := make([]model.Event, 5)
	for i := range events {
		events[i] = model.Event{ID: ulid.MustNew(ulid.Timestamp(base.Add(time.Duration(i)*time.Millisecond)), ulid.DefaultEntropy())}
	}

	assert.True(t, w.add(events[1]))
	assert.True(t, w.add(events[3]))
	assert.True(t, w.add(events[2]))
	assert.False(t, w.add(events[2]))
	assert.False(t, w.add(events[0]), "older than a full window")
	assert.True(t, w.add(events[4]))

	got := w.list()
	require.Len(t, got, 3)
	assert.Equal(t, events[4].ID, got[0].ID)
	assert.Equal(t, events[3].ID, got[1].ID)
	assert.Equal(t, events[2].ID, got[2].ID)
}

func TestEventWindow_OrdersByEpochBeforeID(t *testing.T) {
	w := newEventWindow(3)
	base := time.Now()
	mint := func(at time.Time) model.Event {
		return model.Event{ID: ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy())}
	}
	old1 := mint(base.Add(time.Second))
	old2 := mint(base.Add(2 * time.Second))
	// The replacement authority's clock runs behind the old one.
	fresh := mint(base)

	require.True(t, w.add(old1))
	require.True(t, w.add(old2))
	w.advance()
	assert.True(t, w.add(fresh))
	assert.False(t, w.add(old2), "already held")

	got := w.list()
	require.Len(t, got, 3)
	assert.Equal(t, fresh.ID, got[0].ID)
	assert.Equal(t, old2.ID, got[1].ID)
	assert.Equal(t, old1.ID, got[2].ID)
}
