package repository_test

import (
	"context"
	"testing"
	"time"

	"retro/internal/model"
	"retro/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var boardColumns = []string{"id", "name", "owner_id", "settings", "columns", "created_at", "updated_at"}

func TestBoardRepository_GetByID_DecodesDocument(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBoardRepository(gormDB)

	boardID, ownerID, columnID := uuid.New(), uuid.New(), uuid.New()
	settings := `{"visibility":"private","likes_enabled":true,"votes_per_user":3}`
	columns := `[{"id":"` + columnID.String() + `","title":"Went well","position":0}]`

	mock.ExpectQuery(`SELECT \* FROM "boards" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(boardColumns).
			AddRow(boardID.String(), "Sprint 12", ownerID.String(), []byte(settings), []byte(columns), time.Now(), time.Now()))

	// Act
	board, err := repo.GetByID(context.Background(), boardID)

	// Assert
	require.NoError(t, err)
	require.NotNil(t, board)
	assert.Equal(t, "Sprint 12", board.Name)
	assert.Equal(t, ownerID, board.OwnerID)
	require.Len(t, board.Columns, 1)
	assert.Equal(t, columnID, board.Columns[0].ID)
	assert.Equal(t, "Went well", board.Columns[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepository_GetByID_NotFound(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBoardRepository(gormDB)

	mock.ExpectQuery(`SELECT \* FROM "boards" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows(boardColumns))

	// Act
	board, err := repo.GetByID(context.Background(), uuid.New())

	// Assert
	assert.NoError(t, err)
	assert.Nil(t, board)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepository_Save(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBoardRepository(gormDB)

	board := &model.Board{
		ID:       uuid.New(),
		Name:     "Sprint 12",
		OwnerID:  uuid.New(),
		Settings: model.DefaultSettings(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "boards" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Act
	err := repo.Save(context.Background(), board)

	// Assert
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepository_Save_Error(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBoardRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "boards" SET`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	// Act
	err := repo.Save(context.Background(), &model.Board{ID: uuid.New(), Name: "x", OwnerID: uuid.New()})

	// Assert
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBoardRepository_Create(t *testing.T) {
	// Arrange
	gormDB, mock := setupMockDB(t)
	repo := repository.NewBoardRepository(gormDB)
	board := &model.Board{Name: "Sprint 13", OwnerID: uuid.New(), Settings: model.DefaultSettings()}
	boardID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "boards"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(boardID.String()))
	mock.ExpectCommit()

	// Act
	err := repo.Create(context.Background(), board)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, boardID, board.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
