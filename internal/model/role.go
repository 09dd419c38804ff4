package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is a user's access level on a board.
type Role string

const (
	RoleNone     Role = ""
	RoleObserver Role = "observer" // can only view
	RoleEditor   Role = "editor"   // can edit cards and columns
	RoleOwner    Role = "owner"    // can change settings and shares
)

func (r Role) rank() int {
	switch r {
	case RoleObserver:
		return 1
	case RoleEditor:
		return 2
	case RoleOwner:
		return 3
	}
	return 0
}

// AtLeast reports whether r grants at least min.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}

// Grantable reports whether r may be stored as a board share.
func (r Role) Grantable() bool {
	return r == RoleObserver || r == RoleEditor
}

// EffectiveRole combines the stored share role with ownership and the
// board's visibility mode.
func EffectiveRole(b *Board, userID uuid.UUID, bound Role) Role {
	if b.OwnerID == userID {
		return RoleOwner
	}
	role := bound
	switch b.Settings.Visibility {
	case VisibilityPublic:
		if !role.AtLeast(RoleObserver) {
			role = RoleObserver
		}
	case VisibilityOpen:
		if !role.AtLeast(RoleEditor) {
			role = RoleEditor
		}
	}
	return role
}

// BoardShare binds a user to a board with a role.
type BoardShare struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey"`
	BoardID   uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Role      Role      `gorm:"not null;check:role IN ('observer', 'editor')"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
