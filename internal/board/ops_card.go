package board

import (
	"slices"
	"strconv"

	"github.com/google/uuid"

	"retro/internal/model"
)

// AddAndLockCard appends an empty card to a column. The created card is
// returned in Result.Card so the caller can take its editing lock.
type AddAndLockCard struct {
	ColumnID uuid.UUID
	UserID   uuid.UUID
}

func (AddAndLockCard) Name() string { return "add_and_lock_card" }

func (op AddAndLockCard) apply(t *tx) error {
	col, err := t.column(op.ColumnID)
	if err != nil {
		return err
	}
	card := model.Card{ID: t.newID(), AuthorID: op.UserID}
	col.Items = append(col.Items, model.Item{Card: &card})
	created := card
	t.created = &created
	t.emit(model.EventCardAdded, payload("column_id", col.ID, "card_id", card.ID))
	return nil
}

type UpdateCardContent struct {
	CardID  uuid.UUID
	Content string
}

func (UpdateCardContent) Name() string { return "update_card_content" }

func (op UpdateCardContent) apply(t *tx) error {
	card, err := t.findCard(op.CardID)
	if err != nil {
		return err
	}
	if card.Content == op.Content {
		return nil
	}
	card.Content = op.Content
	t.emit(model.EventCardUpdated, payload("card_id", card.ID))
	return nil
}

type DeleteCard struct {
	CardID uuid.UUID
}

func (DeleteCard) Name() string { return "delete_card" }

func (op DeleteCard) apply(t *tx) error {
	card, col, err := t.takeCard(op.CardID)
	if err != nil {
		return err
	}
	t.emit(model.EventCardDeleted, payload("card_id", card.ID, "column_id", t.board.Columns[col].ID))
	return nil
}

type LikeCard struct {
	CardID uuid.UUID
	UserID uuid.UUID
}

func (LikeCard) Name() string { return "like_card" }

func (op LikeCard) apply(t *tx) error {
	if !t.board.Settings.LikesEnabled {
		return ErrFeatureDisabled
	}
	card, err := t.findCard(op.CardID)
	if err != nil {
		return err
	}
	if card.LikedBy(op.UserID) {
		return nil
	}
	card.Likes = append(card.Likes, op.UserID)
	t.emit(model.EventCardLiked, payload("card_id", card.ID, "user_id", op.UserID))
	return nil
}

type UnlikeCard struct {
	CardID uuid.UUID
	UserID uuid.UUID
}

func (UnlikeCard) Name() string { return "unlike_card" }

func (op UnlikeCard) apply(t *tx) error {
	card, err := t.findCard(op.CardID)
	if err != nil {
		return err
	}
	i := slices.Index(card.Likes, op.UserID)
	if i < 0 {
		return nil
	}
	card.Likes = slices.Delete(card.Likes, i, i+1)
	t.emit(model.EventCardUnliked, payload("card_id", card.ID, "user_id", op.UserID))
	return nil
}

// VoteCard adds one of the user's votes to a card. VotesPerUser of zero
// means unlimited.
type VoteCard struct {
	CardID uuid.UUID
	UserID uuid.UUID
}

func (VoteCard) Name() string { return "vote_card" }

func (op VoteCard) apply(t *tx) error {
	settings := t.board.Settings
	if !settings.VotingEnabled {
		return ErrFeatureDisabled
	}
	card, err := t.findCard(op.CardID)
	if err != nil {
		return err
	}
	if settings.VotesPerUser > 0 && t.board.VotesBy(op.UserID) >= settings.VotesPerUser {
		return ErrVoteLimit
	}
	if card.Votes == nil {
		card.Votes = make(map[uuid.UUID]int)
	}
	card.Votes[op.UserID]++
	t.emit(model.EventCardVoted, payload("card_id", card.ID, "user_id", op.UserID, "votes", strconv.Itoa(card.Votes[op.UserID])))
	return nil
}

type UnvoteCard struct {
	CardID uuid.UUID
	UserID uuid.UUID
}

func (UnvoteCard) Name() string { return "unvote_card" }

func (op UnvoteCard) apply(t *tx) error {
	card, err := t.findCard(op.CardID)
	if err != nil {
		return err
	}
	if card.Votes[op.UserID] == 0 {
		return nil
	}
	card.Votes[op.UserID]--
	if card.Votes[op.UserID] == 0 {
		delete(card.Votes, op.UserID)
	}
	t.emit(model.EventCardUnvoted, payload("card_id", card.ID, "user_id", op.UserID))
	return nil
}

// MoveCard moves a card to the end of a column, pulling it out of its pile
// if needed.
type MoveCard struct {
	CardID   uuid.UUID
	ColumnID uuid.UUID
}

func (MoveCard) Name() string { return "move_card" }

func (op MoveCard) apply(t *tx) error {
	target := t.board.ColumnIndex(op.ColumnID)
	if target < 0 {
		return ErrColumnNotFound
	}
	loc, ok := t.board.LocateCard(op.CardID)
	if !ok {
		return ErrCardNotFound
	}
	if loc.Pile < 0 && loc.Column == target && loc.Item == len(t.board.Columns[target].Items)-1 {
		return nil
	}
	card, _, err := t.takeCard(op.CardID)
	if err != nil {
		return err
	}
	col := &t.board.Columns[target]
	col.Items = append(col.Items, model.Item{Card: &card})
	t.emit(model.EventCardMoved, payload("card_id", card.ID, "column_id", col.ID))
	return nil
}

// StackCard puts a card onto another card, creating a pile, or into the pile
// that already holds the other card.
type StackCard struct {
	CardID uuid.UUID
	OntoID uuid.UUID
}

func (StackCard) Name() string { return "stack_card" }

func (op StackCard) apply(t *tx) error {
	if op.CardID == op.OntoID {
		return ErrInvalidMove
	}
	src, ok := t.board.LocateCard(op.CardID)
	if !ok {
		return ErrCardNotFound
	}
	dst, ok := t.board.LocateCard(op.OntoID)
	if !ok {
		return ErrCardNotFound
	}
	if src.Pile >= 0 && dst.Pile >= 0 && src.Column == dst.Column && src.Item == dst.Item {
		return nil
	}

	card, _, err := t.takeCard(op.CardID)
	if err != nil {
		return err
	}
	// Indices may have shifted.
	dst, _ = t.board.LocateCard(op.OntoID)
	item := &t.board.Columns[dst.Column].Items[dst.Item]
	var pileID uuid.UUID
	if item.Pile != nil {
		item.Pile.Cards = append(item.Pile.Cards, card)
		pileID = item.Pile.ID
	} else {
		pile := model.Pile{ID: t.newID(), Cards: []model.Card{*item.Card, card}}
		*item = model.Item{Pile: &pile}
		pileID = pile.ID
	}
	t.emit(model.EventCardStacked, payload("card_id", card.ID, "pile_id", pileID))
	return nil
}

// UnstackCard takes a card out of its pile and appends it to the column.
type UnstackCard struct {
	CardID uuid.UUID
}

func (UnstackCard) Name() string { return "unstack_card" }

func (op UnstackCard) apply(t *tx) error {
	loc, ok := t.board.LocateCard(op.CardID)
	if !ok {
		return ErrCardNotFound
	}
	if loc.Pile < 0 {
		return nil
	}
	card, col, err := t.takeCard(op.CardID)
	if err != nil {
		return err
	}
	column := &t.board.Columns[col]
	column.Items = append(column.Items, model.Item{Card: &card})
	t.emit(model.EventCardUnstacked, payload("card_id", card.ID, "column_id", column.ID))
	return nil
}

type FlipPile struct {
	PileID uuid.UUID
}

func (FlipPile) Name() string { return "flip_pile" }

func (op FlipPile) apply(t *tx) error {
	pile, err := t.pile(op.PileID)
	if err != nil {
		return err
	}
	if pile.Flipped {
		return nil
	}
	pile.Flipped = true
	t.emit(model.EventPileFlipped, payload("pile_id", pile.ID))
	return nil
}

type UnflipPile struct {
	PileID uuid.UUID
}

func (UnflipPile) Name() string { return "unflip_pile" }

func (op UnflipPile) apply(t *tx) error {
	pile, err := t.pile(op.PileID)
	if err != nil {
		return err
	}
	if !pile.Flipped {
		return nil
	}
	pile.Flipped = false
	t.emit(model.EventPileUnflipped, payload("pile_id", pile.ID))
	return nil
}
