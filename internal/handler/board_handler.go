package handler

import (
	"context"
	"errors"
	"net/http"

	"retro/internal/board"
	"retro/internal/middleware"
	"retro/internal/model"
	"retro/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type BoardCreator interface {
	Create(ctx context.Context, board *model.Board) error
}

type BoardHandler struct {
	boards    BoardCreator
	validator board.Validator
	log       logrus.FieldLogger
}

func NewBoardHandler(boards BoardCreator, validator board.Validator, log logrus.FieldLogger) *BoardHandler {
	return &BoardHandler{
		boards:    boards,
		validator: validator,
		log:       log,
	}
}

type CreateBoardRequest struct {
	Name string `json:"name"`
}

// Create godoc
// @Summary      Create a board owned by the caller
// @Description  The board starts with default settings and no columns; open a stream to edit it
// @Tags         Boards
// @Accept       json
// @Produce      json
// @Param        board  body  CreateBoardRequest  true  "Board"
// @Success      201  {object}  model.Board
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  ValidationErrorResponse
// @Security     BearerAuth
// @Router       /boards [post]
func (h *BoardHandler) Create(c *gin.Context) {
	ownerID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	var req CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	values, err := h.validator.Validate(validation.KindBoard, nil, map[string]string{"name": req.Name})
	if err != nil {
		var fe validation.Errors
		if errors.As(err, &fe) {
			c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{Error: "Validation failed", Fields: fe})
			return
		}
		h.log.WithError(err).Error("failed to validate board")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create board"})
		return
	}

	b := &model.Board{
		Name:     values["name"],
		OwnerID:  ownerID,
		Settings: model.DefaultSettings(),
		Columns:  []model.Column{},
	}
	if err := h.boards.Create(c.Request.Context(), b); err != nil {
		h.log.WithError(err).WithField("user_id", ownerID).Error("failed to create board")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create board"})
		return
	}

	c.JSON(http.StatusCreated, b)
}
