package board

import (
	"fmt"

	"github.com/google/uuid"

	"retro/internal/model"
	"retro/internal/validation"
)

// UpdateBoardSettings applies a partial settings form. Invalid input returns
// validation.Errors and leaves the board untouched.
type UpdateBoardSettings struct {
	Patch map[string]string
}

func (UpdateBoardSettings) Name() string { return "update_board_settings" }

func (op UpdateBoardSettings) apply(t *tx) error {
	values, err := t.validator.Validate(validation.KindSettings, validation.SettingsValues(t.board.Settings), op.Patch)
	if err != nil {
		return err
	}
	settings := validation.SettingsFrom(values)
	if settings == t.board.Settings {
		return nil
	}
	t.board.Settings = settings
	t.emit(model.EventSettingsUpdated, values)
	return nil
}

type UpdateBoardName struct {
	NewName string
}

func (UpdateBoardName) Name() string { return "update_board_name" }

func (op UpdateBoardName) apply(t *tx) error {
	values, err := t.validator.Validate(validation.KindBoard,
		map[string]string{"name": t.board.Name}, map[string]string{"name": op.NewName})
	if err != nil {
		return err
	}
	if values["name"] == t.board.Name {
		return nil
	}
	t.board.Name = values["name"]
	t.emit(model.EventBoardRenamed, payload("name", t.board.Name))
	return nil
}

// GrantRole stores a share for the user. The board itself does not change,
// but the resulting update makes every session re-check its access.
type GrantRole struct {
	UserID uuid.UUID
	Role   model.Role
}

func (GrantRole) Name() string { return "grant_role" }

func (op GrantRole) apply(t *tx) error {
	if !op.Role.Grantable() || op.UserID == t.board.OwnerID {
		return fmt.Errorf("%w: %q", ErrInvalidRole, op.Role)
	}
	if err := t.roles.ShareBoard(t.ctx, t.board.ID, op.UserID, op.Role); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	t.announce(model.EventRoleGranted, payload("user_id", op.UserID, "role", string(op.Role)))
	return nil
}

type RevokeRole struct {
	UserID uuid.UUID
}

func (RevokeRole) Name() string { return "revoke_role" }

func (op RevokeRole) apply(t *tx) error {
	if op.UserID == t.board.OwnerID {
		return fmt.Errorf("%w: owner access cannot be revoked", ErrInvalidRole)
	}
	if err := t.roles.RemoveShare(t.ctx, t.board.ID, op.UserID); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}
	t.announce(model.EventRoleRevoked, payload("user_id", op.UserID))
	return nil
}
