package session

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"retro/internal/board"
	"retro/internal/model"
	"retro/internal/validation"
)

// Intent is a client action as delivered by the transport.
type Intent struct {
	Event   string            `json:"event"`
	Payload map[string]string `json:"payload"`
}

type args map[string]string

// id parses a required id field.
func (a args) id(key string) (uuid.UUID, error) {
	id, err := uuid.Parse(a[key])
	if err != nil {
		return uuid.Nil, validation.Errors{key: "must be a valid id"}
	}
	return id, nil
}

type handlerFunc func(s *Session, ctx context.Context, a args) (Reply, error)

type intent struct {
	role model.Role
	run  handlerFunc
}

const suggestLimit = 10

var intents = map[string]intent{
	"add_card":     {model.RoleEditor, addCard},
	"edit_card":    {model.RoleEditor, editCard},
	"save_card":    {model.RoleEditor, saveCard},
	"cancel_edit":  {model.RoleEditor, cancelEdit},
	"delete_card":  {model.RoleEditor, deleteCard},
	"like_card":    {model.RoleEditor, cardOp(func(card, user uuid.UUID) board.Operation { return board.LikeCard{CardID: card, UserID: user} })},
	"unlike_card":  {model.RoleEditor, cardOp(func(card, user uuid.UUID) board.Operation { return board.UnlikeCard{CardID: card, UserID: user} })},
	"vote_card":    {model.RoleEditor, cardOp(func(card, user uuid.UUID) board.Operation { return board.VoteCard{CardID: card, UserID: user} })},
	"unvote_card":  {model.RoleEditor, cardOp(func(card, user uuid.UUID) board.Operation { return board.UnvoteCard{CardID: card, UserID: user} })},
	"unstack_card": {model.RoleEditor, cardOp(func(card, _ uuid.UUID) board.Operation { return board.UnstackCard{CardID: card} })},
	"move_card": {model.RoleEditor, twoIDs("card_id", "column_id", func(card, col uuid.UUID) board.Operation {
		return board.MoveCard{CardID: card, ColumnID: col}
	})},
	"stack_card": {model.RoleEditor, twoIDs("card_id", "onto_id", func(card, onto uuid.UUID) board.Operation {
		return board.StackCard{CardID: card, OntoID: onto}
	})},
	"flip_pile":   {model.RoleEditor, oneID("pile_id", func(id uuid.UUID) board.Operation { return board.FlipPile{PileID: id} })},
	"unflip_pile": {model.RoleEditor, oneID("pile_id", func(id uuid.UUID) board.Operation { return board.UnflipPile{PileID: id} })},

	"add_column":           {model.RoleEditor, addColumn},
	"update_column":        {model.RoleEditor, updateColumn},
	"delete_column":        {model.RoleEditor, oneID("column_id", func(id uuid.UUID) board.Operation { return board.DeleteColumn{ColumnID: id} })},
	"move_column_up":       {model.RoleEditor, oneID("column_id", func(id uuid.UUID) board.Operation { return board.MoveColumnUp{ColumnID: id} })},
	"move_column_down":     {model.RoleEditor, oneID("column_id", func(id uuid.UUID) board.Operation { return board.MoveColumnDown{ColumnID: id} })},
	"sort_column_by_likes": {model.RoleEditor, oneID("column_id", func(id uuid.UUID) board.Operation { return board.SortColumnByLikes{ColumnID: id} })},
	"sort_column_by_votes": {model.RoleEditor, oneID("column_id", func(id uuid.UUID) board.Operation { return board.SortColumnByVotes{ColumnID: id} })},

	"update_board_name": {model.RoleOwner, updateBoardName},
	"update_settings":   {model.RoleOwner, updateSettings},
	"grant_role":        {model.RoleOwner, grantRole},
	"revoke_role":       {model.RoleOwner, oneID("user_id", func(id uuid.UUID) board.Operation { return board.RevokeRole{UserID: id} })},
	"suggest_users":     {model.RoleOwner, suggestUsers},

	"confirm_delete": {model.RoleEditor, confirmDelete},
	"cancel_delete":  {model.RoleObserver, uiOnly(func(ui *UIState, _ args) { ui.ConfirmDelete = nil })},
	"search":         {model.RoleObserver, search},
	"select_tab":     {model.RoleObserver, uiOnly(func(ui *UIState, a args) { ui.ActiveTab = a["tab"] })},
	"open_modal":     {model.RoleObserver, uiOnly(func(ui *UIState, _ args) { ui.ModalOpen = true })},
	"close_modal": {model.RoleObserver, uiOnly(func(ui *UIState, _ args) {
		ui.ModalOpen = false
		if ui.Form != nil && ui.Form.Kind != validation.KindCard {
			ui.Form = nil
		}
	})},
}

// Intents lists the intent names a session accepts.
func Intents() []string {
	names := make([]string, 0, len(intents))
	for name := range intents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Do runs an intent inside the session. Validation failures return
// validation.Errors and keep the form in the view; nothing is dispatched.
func (s *Session) Do(ctx context.Context, in Intent) (Reply, error) {
	h, ok := intents[in.Event]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownIntent, in.Event)
	}
	a := args(in.Payload)
	if a == nil {
		a = args{}
	}
	return s.call(ctx, func(ctx context.Context) (Reply, error) {
		if !s.role.AtLeast(h.role) {
			return Reply{}, ErrForbidden
		}
		reply, err := h.run(s, ctx, a)
		if err != nil {
			log := s.log.WithField("intent", in.Event).WithError(err)
			var fe validation.Errors
			switch {
			case errors.As(err, &fe), board.IsNotFound(err):
				log.Debug("intent rejected")
			case errors.Is(err, board.ErrAuthorityUnavailable):
				log.Warn("intent failed")
				s.notice("The board is temporarily unavailable, please retry.")
			default:
				log.Info("intent failed")
			}
		}
		return reply, err
	})
}

func oneID(key string, build func(uuid.UUID) board.Operation) handlerFunc {
	return func(s *Session, ctx context.Context, a args) (Reply, error) {
		id, err := a.id(key)
		if err != nil {
			return Reply{}, err
		}
		_, err = s.dispatch(ctx, build(id))
		return Reply{}, err
	}
}

func twoIDs(first, second string, build func(a, b uuid.UUID) board.Operation) handlerFunc {
	return func(s *Session, ctx context.Context, a args) (Reply, error) {
		x, err := a.id(first)
		if err != nil {
			return Reply{}, err
		}
		y, err := a.id(second)
		if err != nil {
			return Reply{}, err
		}
		_, err = s.dispatch(ctx, build(x, y))
		return Reply{}, err
	}
}

// cardOp builds an operation acting on a card for the session's user.
func cardOp(build func(card, user uuid.UUID) board.Operation) handlerFunc {
	return func(s *Session, ctx context.Context, a args) (Reply, error) {
		id, err := a.id("card_id")
		if err != nil {
			return Reply{}, err
		}
		_, err = s.dispatch(ctx, build(id, s.userID))
		return Reply{}, err
	}
}

func uiOnly(fn func(ui *UIState, a args)) handlerFunc {
	return func(s *Session, _ context.Context, a args) (Reply, error) {
		fn(&s.ui, a)
		s.mark(PushView)
		return Reply{}, nil
	}
}

// submit runs a form through validation before dispatching it. The form
// stays pending, with errors, until the authority accepts it.
func (s *Session) submit(ctx context.Context, kind validation.Kind, target uuid.UUID, current, patch map[string]string,
	build func(values map[string]string) board.Operation) (board.Result, error) {
	values, err := s.cfg.Validator.Validate(kind, current, patch)
	if err != nil {
		form := &Form{Kind: kind, Target: target, Values: patch}
		var fe validation.Errors
		if errors.As(err, &fe) {
			form.Errors = fe
		}
		s.ui.Form = form
		s.mark(PushView)
		return board.Result{}, err
	}
	res, err := s.dispatch(ctx, build(values))
	if err != nil {
		if s.ui.Form == nil {
			s.ui.Form = &Form{Kind: kind, Target: target, Values: patch}
		}
		var fe validation.Errors
		if errors.As(err, &fe) {
			s.ui.Form.Errors = fe
		}
		s.mark(PushView)
		return res, err
	}
	s.ui.Form = nil
	s.mark(PushView)
	return res, nil
}

func addCard(s *Session, ctx context.Context, a args) (Reply, error) {
	col, err := a.id("column_id")
	if err != nil {
		return Reply{}, err
	}
	res, err := s.dispatch(ctx, board.AddAndLockCard{ColumnID: col, UserID: s.userID})
	if err != nil {
		return Reply{}, err
	}
	s.beginEdit(res.Card.ID, "")
	return Reply{Card: res.Card}, nil
}

func editCard(s *Session, _ context.Context, a args) (Reply, error) {
	id, err := a.id("card_id")
	if err != nil {
		return Reply{}, err
	}
	card, ok := s.raw.FindCard(id)
	if !ok {
		return Reply{}, board.ErrCardNotFound
	}
	if s.raw.Settings.CardsHidden && card.AuthorID != s.userID && s.role != model.RoleOwner {
		return Reply{}, ErrForbidden
	}
	s.beginEdit(id, card.Content)
	c := *card
	return Reply{Card: &c}, nil
}

func saveCard(s *Session, ctx context.Context, a args) (Reply, error) {
	id, err := a.id("card_id")
	if err != nil {
		return Reply{}, err
	}
	card, ok := s.raw.FindCard(id)
	if !ok {
		return Reply{}, board.ErrCardNotFound
	}
	_, err = s.submit(ctx, validation.KindCard, id,
		map[string]string{"content": card.Content},
		map[string]string{"content": a["content"]},
		func(v map[string]string) board.Operation {
			return board.UpdateCardContent{CardID: id, Content: v["content"]}
		})
	if err != nil {
		return Reply{}, err
	}
	s.endEdit()
	return Reply{}, nil
}

// cancelEdit releases the lock. A card that never got content is deleted so
// abandoned cards from add_card do not pile up.
func cancelEdit(s *Session, ctx context.Context, a args) (Reply, error) {
	id, err := a.id("card_id")
	if err != nil {
		return Reply{}, err
	}
	s.endEdit()
	card, ok := s.raw.FindCard(id)
	if !ok || card.Content != "" {
		return Reply{}, nil
	}
	_, err = s.dispatch(ctx, board.DeleteCard{CardID: id})
	if board.IsNotFound(err) {
		err = nil
	}
	return Reply{}, err
}

func confirmDelete(s *Session, _ context.Context, a args) (Reply, error) {
	id, err := a.id("card_id")
	if err != nil {
		return Reply{}, err
	}
	if _, ok := s.raw.FindCard(id); !ok {
		return Reply{}, board.ErrCardNotFound
	}
	s.ui.ConfirmDelete = &id
	s.mark(PushView)
	return Reply{}, nil
}

func deleteCard(s *Session, ctx context.Context, a args) (Reply, error) {
	id, err := a.id("card_id")
	if err != nil {
		return Reply{}, err
	}
	if _, err := s.dispatch(ctx, board.DeleteCard{CardID: id}); err != nil {
		return Reply{}, err
	}
	s.ui.ConfirmDelete = nil
	s.mark(PushView)
	return Reply{}, nil
}

func addColumn(s *Session, ctx context.Context, a args) (Reply, error) {
	_, err := s.submit(ctx, validation.KindColumn, uuid.Nil, nil,
		map[string]string{"title": a["title"]},
		func(v map[string]string) board.Operation { return board.AddColumn{Title: v["title"]} })
	return Reply{}, err
}

func updateColumn(s *Session, ctx context.Context, a args) (Reply, error) {
	id, err := a.id("column_id")
	if err != nil {
		return Reply{}, err
	}
	i := s.raw.ColumnIndex(id)
	if i < 0 {
		return Reply{}, board.ErrColumnNotFound
	}
	_, err = s.submit(ctx, validation.KindColumn, id,
		map[string]string{"title": s.raw.Columns[i].Title},
		map[string]string{"title": a["title"]},
		func(v map[string]string) board.Operation { return board.UpdateColumn{ColumnID: id, Title: v["title"]} })
	return Reply{}, err
}

func updateBoardName(s *Session, ctx context.Context, a args) (Reply, error) {
	_, err := s.submit(ctx, validation.KindBoard, s.boardID,
		map[string]string{"name": s.raw.Name},
		map[string]string{"name": a["name"]},
		func(v map[string]string) board.Operation { return board.UpdateBoardName{NewName: v["name"]} })
	return Reply{}, err
}

func updateSettings(s *Session, ctx context.Context, a args) (Reply, error) {
	_, err := s.submit(ctx, validation.KindSettings, s.boardID,
		validation.SettingsValues(s.raw.Settings), a,
		func(v map[string]string) board.Operation { return board.UpdateBoardSettings{Patch: v} })
	return Reply{}, err
}

func grantRole(s *Session, ctx context.Context, a args) (Reply, error) {
	id, err := a.id("user_id")
	if err != nil {
		return Reply{}, err
	}
	role := model.Role(a["role"])
	if !role.Grantable() {
		return Reply{}, validation.Errors{"role": "must be observer or editor"}
	}
	_, err = s.dispatch(ctx, board.GrantRole{UserID: id, Role: role})
	return Reply{}, err
}

func suggestUsers(s *Session, ctx context.Context, a args) (Reply, error) {
	if s.cfg.Users == nil {
		return Reply{}, nil
	}
	users, err := s.cfg.Users.Suggest(ctx, a["query"], suggestLimit)
	if err != nil {
		return Reply{}, fmt.Errorf("suggest users: %w", err)
	}
	return Reply{Users: users}, nil
}

func search(s *Session, _ context.Context, a args) (Reply, error) {
	s.ui.Search = a["query"]
	s.results = Search(s.visible, s.ui.Search)
	s.mark(PushView)
	return Reply{}, nil
}
