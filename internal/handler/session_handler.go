package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"retro/internal/board"
	"retro/internal/middleware"
	"retro/internal/model"
	"retro/internal/session"
	"retro/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is the part of a session the transport talks to.
type Conn interface {
	ID() uuid.UUID
	BoardID() uuid.UUID
	UserID() uuid.UUID
	Pushes() <-chan session.Push
	Do(ctx context.Context, in session.Intent) (session.Reply, error)
	Close()
}

type Sessions interface {
	Connect(ctx context.Context, boardID, userID uuid.UUID) (Conn, error)
	Get(connID uuid.UUID) (Conn, bool)
}

type UserSuggester interface {
	Suggest(ctx context.Context, query string, limit int) ([]model.User, error)
}

// FromManager exposes a session.Manager as Sessions.
func FromManager(m *session.Manager) Sessions { return managerSessions{m} }

type managerSessions struct{ m *session.Manager }

func (ms managerSessions) Connect(ctx context.Context, boardID, userID uuid.UUID) (Conn, error) {
	s, err := ms.m.Connect(ctx, boardID, userID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (ms managerSessions) Get(connID uuid.UUID) (Conn, bool) {
	s, ok := ms.m.Get(connID)
	if !ok {
		return nil, false
	}
	return s, true
}

const (
	suggestLimit     = 10
	defaultKeepAlive = 20 * time.Second
	eventConnected   = "connected"
	eventKeepAlive   = "ping"
)

type SessionHandler struct {
	sessions  Sessions
	users     UserSuggester
	log       logrus.FieldLogger
	keepAlive time.Duration
}

func NewSessionHandler(sessions Sessions, users UserSuggester, log logrus.FieldLogger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		users:     users,
		log:       log,
		keepAlive: defaultKeepAlive,
	}
}

// WithKeepAlive sets the interval of SSE ping events.
func (h *SessionHandler) WithKeepAlive(d time.Duration) *SessionHandler {
	h.keepAlive = d
	return h
}

// ConnectedEvent is the first event of every stream.
type ConnectedEvent struct {
	ConnID string `json:"conn_id"`
}

// ValidationErrorResponse carries per-field messages of a rejected form.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields validation.Errors `json:"fields"`
}

// Stream godoc
// @Summary      Open a live board session
// @Description  Streams server-sent events: connected, view, presence, notice, terminated
// @Tags         Sessions
// @Produce      text/event-stream
// @Param        id   path  string  true  "Board ID"
// @Success      200
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Security     BearerAuth
// @Router       /boards/{id}/stream [get]
func (h *SessionHandler) Stream(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	boardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid board ID format"})
		return
	}

	ctx := c.Request.Context()
	conn, err := h.sessions.Connect(ctx, boardID, userID)
	if err != nil {
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.WithError(err).WithField("board_id", boardID).Error("failed to open session")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"board_id": boardID, "user_id": userID, "conn_id": conn.ID()})
	log.Debug("stream opened")
	defer log.Debug("stream closed")

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(eventConnected, ConnectedEvent{ConnID: conn.ID().String()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-conn.Pushes():
			if !ok {
				return false
			}
			c.SSEvent(string(p.Kind), p)
			return p.Kind != session.PushTerminated
		case <-ticker.C:
			c.SSEvent(eventKeepAlive, time.Now().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// Intent godoc
// @Summary      Run an intent in a live session
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        id      path  string          true  "Board ID"
// @Param        conn    path  string          true  "Connection ID"
// @Param        intent  body  session.Intent  true  "Intent"
// @Success      200  {object}  session.Reply
// @Failure      400  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      422  {object}  ValidationErrorResponse
// @Failure      503  {object}  map[string]string
// @Security     BearerAuth
// @Router       /boards/{id}/sessions/{conn}/intents [post]
func (h *SessionHandler) Intent(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}

	boardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid board ID format"})
		return
	}
	connID, err := uuid.Parse(c.Param("conn"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid connection ID format"})
		return
	}

	// Connections are private to the user that opened them
	conn, ok := h.sessions.Get(connID)
	if !ok || conn.BoardID() != boardID || conn.UserID() != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	var in session.Intent
	if err := c.ShouldBindJSON(&in); err != nil || in.Event == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	reply, err := conn.Do(c.Request.Context(), in)
	if err != nil {
		var fe validation.Errors
		if errors.As(err, &fe) {
			c.JSON(http.StatusUnprocessableEntity, ValidationErrorResponse{Error: "Validation failed", Fields: fe})
			return
		}
		status, msg := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.WithError(err).WithFields(logrus.Fields{"conn_id": connID, "intent": in.Event}).Error("intent failed")
		}
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// SuggestUsers godoc
// @Summary      Suggest users by name or email prefix
// @Tags         Users
// @Produce      json
// @Param        q  query  string  true  "Prefix"
// @Success      200  {array}  model.User
// @Security     BearerAuth
// @Router       /users/suggest [get]
func (h *SessionHandler) SuggestUsers(c *gin.Context) {
	users, err := h.users.Suggest(c.Request.Context(), c.Query("q"), suggestLimit)
	if err != nil {
		h.log.WithError(err).Error("failed to suggest users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suggest users"})
		return
	}
	if users == nil {
		users = []model.User{}
	}
	c.JSON(http.StatusOK, users)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, board.ErrBoardNotFound):
		return http.StatusNotFound, "Board not found"
	case board.IsNotFound(err):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, session.ErrAccessDenied), errors.Is(err, session.ErrAccessRevoked):
		return http.StatusForbidden, "You don't have access to this board"
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden, "Your role does not allow this action"
	case errors.Is(err, session.ErrUnknownIntent):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, board.ErrAuthorityUnavailable):
		return http.StatusServiceUnavailable, "Board is temporarily unavailable"
	case errors.Is(err, board.ErrFeatureDisabled),
		errors.Is(err, board.ErrVoteLimit),
		errors.Is(err, board.ErrInvalidMove),
		errors.Is(err, board.ErrInvalidRole):
		return http.StatusConflict, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "Request canceled"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
