package model

import (
	"slices"

	"github.com/google/uuid"
)

// Card is a single note on the board. Editing locks are not stored here;
// they live in presence metadata.
type Card struct {
	ID       uuid.UUID         `json:"id"`
	Content  string            `json:"content"`
	AuthorID uuid.UUID         `json:"author_id"`
	Likes    []uuid.UUID       `json:"likes,omitempty"`
	Votes    map[uuid.UUID]int `json:"votes,omitempty"`

	// Masked is set on session projections when the content belongs to
	// another author and the board hides cards. Never persisted as true.
	Masked bool `json:"masked,omitempty"`
}

func (c Card) LikedBy(userID uuid.UUID) bool {
	return slices.Contains(c.Likes, userID)
}

func (c Card) VoteCount() int {
	n := 0
	for _, v := range c.Votes {
		n += v
	}
	return n
}

func (c Card) clone() Card {
	out := c
	out.Likes = slices.Clone(c.Likes)
	if c.Votes != nil {
		out.Votes = make(map[uuid.UUID]int, len(c.Votes))
		for k, v := range c.Votes {
			out.Votes[k] = v
		}
	}
	return out
}
