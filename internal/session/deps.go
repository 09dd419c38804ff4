package session

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"retro/internal/board"
	"retro/internal/model"
	"retro/internal/presence"
	"retro/internal/pubsub"
)

// Authorities hands out leases on board authorities.
type Authorities interface {
	Attach(ctx context.Context, boardID uuid.UUID) (*board.Lease, error)
}

// Updates is the board update topic broker.
type Updates interface {
	Subscribe(topic string) *pubsub.Subscription[board.Update]
}

type Presence interface {
	Track(ctx context.Context, topic string, userID, connID uuid.UUID, meta presence.Meta) error
	Update(topic string, userID, connID uuid.UUID, meta presence.Meta) error
	Untrack(topic string, userID, connID uuid.UUID) error
	List(topic string) []presence.Entry
	Subscribe(topic string) *pubsub.Subscription[presence.Diff]
}

// Roles looks up a user's stored share on a board. No share is RoleNone.
type Roles interface {
	GetUserRole(ctx context.Context, boardID, userID uuid.UUID) (model.Role, error)
}

// Users is the account directory.
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	Suggest(ctx context.Context, query string, limit int) ([]model.User, error)
}

// Config wires sessions to the rest of the system.
type Config struct {
	Authorities Authorities
	Updates     Updates
	Presence    Presence
	Roles       Roles
	Users       Users
	Validator   board.Validator
	HistorySize int
	Log         logrus.FieldLogger
}
