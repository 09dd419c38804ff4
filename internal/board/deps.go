package board

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"retro/internal/model"
	"retro/internal/validation"
)

// Store persists board snapshots. GetByID returns nil, nil when the board
// does not exist.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Board, error)
	Save(ctx context.Context, board *model.Board) error
}

// RoleStore holds board shares. Roles are consulted, not owned, here.
type RoleStore interface {
	ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role model.Role) error
	RemoveShare(ctx context.Context, boardID, userID uuid.UUID) error
}

// Validator is the form validation capability.
type Validator interface {
	Validate(kind validation.Kind, current, patch map[string]string) (map[string]string, error)
}

// Publisher fans board updates out to a topic.
type Publisher interface {
	Publish(topic string, msg Update) int
}

// Update is pushed to every subscriber of a board after each applied
// operation. Seq increases by one per update within an Epoch; a new
// authority instance for the same board starts a new Epoch.
type Update struct {
	BoardID uuid.UUID
	Board   *model.Board
	Event   *model.Event
	Epoch   uuid.UUID
	Seq     uint64
}

// Snapshot is the answer to a query.
type Snapshot struct {
	Board  *model.Board
	Events []model.Event
	Epoch  uuid.UUID
	Seq    uint64
}

// Topic names the update topic of a board.
func Topic(boardID uuid.UUID) string {
	return fmt.Sprintf("board:%s", boardID)
}
