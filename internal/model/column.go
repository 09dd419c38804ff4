package model

import (
	"github.com/google/uuid"
)

type Column struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Position int       `json:"position"`
	Items    []Item    `json:"items"`
}

func (c Column) clone() Column {
	out := c
	if c.Items != nil {
		out.Items = make([]Item, len(c.Items))
		for i := range c.Items {
			out.Items[i] = c.Items[i].clone()
		}
	}
	return out
}

// Item is a single slot in a column: exactly one of Card or Pile is set.
type Item struct {
	Card *Card `json:"card,omitempty"`
	Pile *Pile `json:"pile,omitempty"`
}

func (it Item) ID() uuid.UUID {
	if it.Pile != nil {
		return it.Pile.ID
	}
	return it.Card.ID
}

// LikeCount sums likes across a pile.
func (it Item) LikeCount() int {
	n := 0
	for _, c := range it.cards() {
		n += len(c.Likes)
	}
	return n
}

// VoteCount sums votes across a pile.
func (it Item) VoteCount() int {
	n := 0
	for _, c := range it.cards() {
		n += c.VoteCount()
	}
	return n
}

func (it Item) cards() []Card {
	if it.Pile != nil {
		return it.Pile.Cards
	}
	if it.Card != nil {
		return []Card{*it.Card}
	}
	return nil
}

func (it Item) clone() Item {
	var out Item
	if it.Card != nil {
		c := it.Card.clone()
		out.Card = &c
	}
	if it.Pile != nil {
		p := it.Pile.clone()
		out.Pile = &p
	}
	return out
}

// Pile groups cards that were stacked onto each other. A flipped pile shows
// all of its cards instead of only the top one.
type Pile struct {
	ID      uuid.UUID `json:"id"`
	Flipped bool      `json:"flipped"`
	Cards   []Card    `json:"cards"`
}

func (p Pile) clone() Pile {
	out := p
	if p.Cards != nil {
		out.Cards = make([]Card, len(p.Cards))
		for i := range p.Cards {
			out.Cards[i] = p.Cards[i].clone()
		}
	}
	return out
}
