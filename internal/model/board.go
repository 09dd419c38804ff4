package model

import (
	"time"

	"github.com/google/uuid"
)

// Visibility controls who gets implicit access to a board.
type Visibility string

const (
	VisibilityPrivate Visibility = "private" // only owner and shared users
	VisibilityPublic  Visibility = "public"  // every signed-in user may observe
	VisibilityOpen    Visibility = "open"    // every signed-in user may edit
)

// Settings holds the board-wide visibility mode and feature flags.
type Settings struct {
	Visibility    Visibility `json:"visibility"`
	LikesEnabled  bool       `json:"likes_enabled"`
	VotingEnabled bool       `json:"voting_enabled"`
	VotesPerUser  int        `json:"votes_per_user"`
	CardsHidden   bool       `json:"cards_hidden"`
}

func DefaultSettings() Settings {
	return Settings{
		Visibility:   VisibilityPrivate,
		LikesEnabled: true,
	}
}

// Board is one shared retrospective board. Columns are stored as a document
// alongside the board row and are kept ordered by Position.
type Board struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Settings  Settings  `gorm:"type:jsonb;serializer:json;not null" json:"settings"`
	Columns   []Column  `gorm:"type:jsonb;serializer:json;not null" json:"columns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy that can be mutated without affecting b.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	out := *b
	if b.Columns != nil {
		out.Columns = make([]Column, len(b.Columns))
		for i := range b.Columns {
			out.Columns[i] = b.Columns[i].clone()
		}
	}
	return &out
}

// ColumnIndex returns the index of the column with the given id, or -1.
func (b *Board) ColumnIndex(id uuid.UUID) int {
	for i := range b.Columns {
		if b.Columns[i].ID == id {
			return i
		}
	}
	return -1
}

// Renumber rewrites column positions to 0..N-1 in slice order.
func (b *Board) Renumber() {
	for i := range b.Columns {
		b.Columns[i].Position = i
	}
}

// CardLocation addresses a card inside a board. Pile is -1 for a card that
// sits directly in a column.
type CardLocation struct {
	Column int
	Item   int
	Pile   int
}

// LocateCard finds the card with the given id.
func (b *Board) LocateCard(id uuid.UUID) (CardLocation, bool) {
	for ci := range b.Columns {
		for ii, item := range b.Columns[ci].Items {
			if item.Card != nil && item.Card.ID == id {
				return CardLocation{Column: ci, Item: ii, Pile: -1}, true
			}
			if item.Pile != nil {
				for pi := range item.Pile.Cards {
					if item.Pile.Cards[pi].ID == id {
						return CardLocation{Column: ci, Item: ii, Pile: pi}, true
					}
				}
			}
		}
	}
	return CardLocation{}, false
}

// CardAt returns a pointer into b for a location obtained from LocateCard.
func (b *Board) CardAt(loc CardLocation) *Card {
	item := &b.Columns[loc.Column].Items[loc.Item]
	if loc.Pile < 0 {
		return item.Card
	}
	return &item.Pile.Cards[loc.Pile]
}

// FindCard is a read-only convenience around LocateCard.
func (b *Board) FindCard(id uuid.UUID) (*Card, bool) {
	loc, ok := b.LocateCard(id)
	if !ok {
		return nil, false
	}
	return b.CardAt(loc), true
}

// LocatePile returns the column and item index of a pile.
func (b *Board) LocatePile(id uuid.UUID) (col, item int, ok bool) {
	for ci := range b.Columns {
		for ii, it := range b.Columns[ci].Items {
			if it.Pile != nil && it.Pile.ID == id {
				return ci, ii, true
			}
		}
	}
	return 0, 0, false
}

// VotesBy counts every vote the user has cast on the board.
func (b *Board) VotesBy(userID uuid.UUID) int {
	total := 0
	for _, col := range b.Columns {
		for _, item := range col.Items {
			for _, card := range item.cards() {
				total += card.Votes[userID]
			}
		}
	}
	return total
}
