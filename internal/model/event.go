package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// EventKind tags a domain event.
type EventKind string

const (
	EventCardAdded       EventKind = "card-added"
	EventCardUpdated     EventKind = "card-updated"
	EventCardDeleted     EventKind = "card-deleted"
	EventCardLiked       EventKind = "card-liked"
	EventCardUnliked     EventKind = "card-unliked"
	EventCardVoted       EventKind = "card-voted"
	EventCardUnvoted     EventKind = "card-unvoted"
	EventCardMoved       EventKind = "card-moved"
	EventCardStacked     EventKind = "card-stacked"
	EventCardUnstacked   EventKind = "card-unstacked"
	EventPileFlipped     EventKind = "pile-flipped"
	EventPileUnflipped   EventKind = "pile-unflipped"
	EventColumnAdded     EventKind = "column-added"
	EventColumnUpdated   EventKind = "column-updated"
	EventColumnDeleted   EventKind = "column-deleted"
	EventColumnMoved     EventKind = "column-moved"
	EventColumnSorted    EventKind = "column-sorted"
	EventBoardRenamed    EventKind = "board-renamed"
	EventSettingsUpdated EventKind = "settings-updated"
	EventRoleGranted     EventKind = "role-granted"
	EventRoleRevoked     EventKind = "role-revoked"
)

// Event is an immutable record of an applied operation. IDs are ULIDs, so
// comparing IDs from one board orders events by creation.
type Event struct {
	ID        ulid.ULID         `json:"id"`
	Kind      EventKind         `json:"kind"`
	Payload   map[string]string `json:"payload,omitempty"`
	ActorID   uuid.UUID         `json:"actor_id"`
	Timestamp time.Time         `json:"timestamp"`
}
