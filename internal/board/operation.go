package board

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"retro/internal/model"
)

// Operation is a named intent to mutate a board. Operations are only ever
// applied by the board's Authority, one at a time.
type Operation interface {
	Name() string
	apply(tx *tx) error
}

// tx is the working state of one operation. Board is a private copy; it
// replaces the canonical board only if the operation succeeds.
type tx struct {
	ctx       context.Context
	board     *model.Board
	actor     uuid.UUID
	now       time.Time
	newID     func() uuid.UUID
	newEvent  func(time.Time) ulid.ULID
	roles     RoleStore
	validator Validator

	changed bool
	event   *model.Event
	created *model.Card
}

// emit records the user-visible event and marks the board as changed.
func (t *tx) emit(kind model.EventKind, payload map[string]string) {
	t.changed = true
	t.announce(kind, payload)
}

// announce records an event without a board change.
func (t *tx) announce(kind model.EventKind, payload map[string]string) {
	t.event = &model.Event{
		ID:        t.newEvent(t.now),
		Kind:      kind,
		Payload:   payload,
		ActorID:   t.actor,
		Timestamp: t.now,
	}
}

func (t *tx) column(id uuid.UUID) (*model.Column, error) {
	i := t.board.ColumnIndex(id)
	if i < 0 {
		return nil, ErrColumnNotFound
	}
	return &t.board.Columns[i], nil
}

func (t *tx) findCard(id uuid.UUID) (*model.Card, error) {
	c, ok := t.board.FindCard(id)
	if !ok {
		return nil, ErrCardNotFound
	}
	return c, nil
}

func (t *tx) pile(id uuid.UUID) (*model.Pile, error) {
	col, item, ok := t.board.LocatePile(id)
	if !ok {
		return nil, ErrPileNotFound
	}
	return t.board.Columns[col].Items[item].Pile, nil
}

// takeCard removes a card from wherever it is and returns it. A pile left
// with a single card turns back into that card; an empty pile disappears.
func (t *tx) takeCard(id uuid.UUID) (model.Card, int, error) {
	loc, ok := t.board.LocateCard(id)
	if !ok {
		return model.Card{}, 0, ErrCardNotFound
	}
	col := &t.board.Columns[loc.Column]
	item := &col.Items[loc.Item]
	if loc.Pile < 0 {
		card := *item.Card
		col.Items = append(col.Items[:loc.Item], col.Items[loc.Item+1:]...)
		return card, loc.Column, nil
	}

	pile := item.Pile
	card := pile.Cards[loc.Pile]
	pile.Cards = append(pile.Cards[:loc.Pile], pile.Cards[loc.Pile+1:]...)
	switch len(pile.Cards) {
	case 0:
		col.Items = append(col.Items[:loc.Item], col.Items[loc.Item+1:]...)
	case 1:
		last := pile.Cards[0]
		*item = model.Item{Card: &last}
	}
	return card, loc.Column, nil
}

func payload(kv ...any) map[string]string {
	out := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case uuid.UUID:
			out[key] = v.String()
		case string:
			out[key] = v
		}
	}
	return out
}
