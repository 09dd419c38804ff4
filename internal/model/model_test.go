package model_test

import (
	"testing"

	"retro/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBoard() *model.Board {
	card := model.Card{ID: uuid.New(), Content: "a", Likes: []uuid.UUID{uuid.New()}}
	pile := model.Pile{ID: uuid.New(), Cards: []model.Card{
		{ID: uuid.New(), Likes: []uuid.UUID{uuid.New(), uuid.New()}},
		{ID: uuid.New(), Votes: map[uuid.UUID]int{uuid.New(): 2}},
	}}
	return &model.Board{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Settings: model.DefaultSettings(),
		Columns: []model.Column{{
			ID:    uuid.New(),
			Items: []model.Item{{Card: &card}, {Pile: &pile}},
		}},
	}
}

func TestBoard_CloneIsDeep(t *testing.T) {
	// Arrange
	b := sampleBoard()

	// Act
	c := b.Clone()
	c.Columns[0].Items[0].Card.Content = "changed"
	c.Columns[0].Items[0].Card.Likes[0] = uuid.Nil
	c.Columns[0].Items[1].Pile.Cards[1].Votes[uuid.New()] = 1
	c.Columns[0].Title = "x"

	// Assert
	assert.Equal(t, "a", b.Columns[0].Items[0].Card.Content)
	assert.NotEqual(t, uuid.Nil, b.Columns[0].Items[0].Card.Likes[0])
	assert.Len(t, b.Columns[0].Items[1].Pile.Cards[1].Votes, 1)
	assert.Empty(t, b.Columns[0].Title)
}

func TestBoard_LocateCard(t *testing.T) {
	b := sampleBoard()
	pileCard := b.Columns[0].Items[1].Pile.Cards[1].ID

	loc, ok := b.LocateCard(pileCard)
	require.True(t, ok)
	assert.Equal(t, model.CardLocation{Column: 0, Item: 1, Pile: 1}, loc)

	loc, ok = b.LocateCard(b.Columns[0].Items[0].Card.ID)
	require.True(t, ok)
	assert.Equal(t, -1, loc.Pile)

	_, ok = b.LocateCard(uuid.New())
	assert.False(t, ok)
}

func TestItem_CountsSumOverPile(t *testing.T) {
	b := sampleBoard()
	items := b.Columns[0].Items

	assert.Equal(t, 1, items[0].LikeCount())
	assert.Equal(t, 2, items[1].LikeCount())
	assert.Equal(t, 2, items[1].VoteCount())
	assert.Equal(t, items[1].Pile.ID, items[1].ID())
}

func TestBoard_VotesBy(t *testing.T) {
	b := sampleBoard()
	var voter uuid.UUID
	for id := range b.Columns[0].Items[1].Pile.Cards[1].Votes {
		voter = id
	}

	assert.Equal(t, 2, b.VotesBy(voter))
	assert.Zero(t, b.VotesBy(uuid.New()))
}

func TestEffectiveRole(t *testing.T) {
	b := sampleBoard()
	stranger := uuid.New()

	tests := []struct {
		name       string
		visibility model.Visibility
		user       uuid.UUID
		bound      model.Role
		want       model.Role
	}{
		{"owner always owns", model.VisibilityPrivate, b.OwnerID, model.RoleNone, model.RoleOwner},
		{"private stranger", model.VisibilityPrivate, stranger, model.RoleNone, model.RoleNone},
		{"private observer", model.VisibilityPrivate, stranger, model.RoleObserver, model.RoleObserver},
		{"public stranger observes", model.VisibilityPublic, stranger, model.RoleNone, model.RoleObserver},
		{"public keeps editor", model.VisibilityPublic, stranger, model.RoleEditor, model.RoleEditor},
		{"open stranger edits", model.VisibilityOpen, stranger, model.RoleNone, model.RoleEditor},
		{"open raises observer", model.VisibilityOpen, stranger, model.RoleObserver, model.RoleEditor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b.Settings.Visibility = tt.visibility
			assert.Equal(t, tt.want, model.EffectiveRole(b, tt.user, tt.bound))
		})
	}
}

func TestRole_AtLeast(t *testing.T) {
	assert.True(t, model.RoleOwner.AtLeast(model.RoleEditor))
	assert.True(t, model.RoleEditor.AtLeast(model.RoleEditor))
	assert.False(t, model.RoleObserver.AtLeast(model.RoleEditor))
	assert.False(t, model.RoleNone.AtLeast(model.RoleObserver))
	assert.True(t, model.RoleNone.AtLeast(model.RoleNone))
	assert.False(t, model.RoleOwner.Grantable())
}
