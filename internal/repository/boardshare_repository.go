package repository

import (
	"context"
	"errors"

	"retro/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BoardShareRepository struct {
	db *gorm.DB
}

func NewBoardShareRepository(db *gorm.DB) *BoardShareRepository {
	return &BoardShareRepository{db: db}
}

// ShareBoard grants the user a role on the board, replacing an existing one
func (r *BoardShareRepository) ShareBoard(ctx context.Context, boardID, userID uuid.UUID, role model.Role) error {
	share := model.BoardShare{
		BoardID: boardID,
		UserID:  userID,
		Role:    role,
	}

	// A transaction keeps concurrent grants from creating duplicates
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.BoardShare
		err := tx.Where("board_id = ? AND user_id = ?", boardID, userID).First(&existing).Error
		if err == nil {
			existing.Role = role
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&share).Error
	})
}

// RemoveShare drops the user's access to the board
func (r *BoardShareRepository) RemoveShare(ctx context.Context, boardID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("board_id = ? AND user_id = ?", boardID, userID).Delete(&model.BoardShare{}).Error
}

// GetUserRole returns the stored role, or RoleNone when the board is not
// shared with the user. Ownership and visibility are not considered here.
func (r *BoardShareRepository) GetUserRole(ctx context.Context, boardID, userID uuid.UUID) (model.Role, error) {
	var shares []model.BoardShare
	err := r.db.WithContext(ctx).
		Where("board_id = ? AND user_id = ?", boardID, userID).
		Limit(1).
		Find(&shares).Error
	if err != nil {
		return model.RoleNone, err
	}
	if len(shares) == 0 {
		return model.RoleNone, nil
	}
	return shares[0].Role, nil
}
