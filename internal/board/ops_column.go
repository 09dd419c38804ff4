package board

import (
	"slices"
	"sort"

	"github.com/google/uuid"

	"retro/internal/model"
	"retro/internal/validation"
)

type AddColumn struct {
	Title string
}

func (AddColumn) Name() string { return "add_column" }

func (op AddColumn) apply(t *tx) error {
	values, err := t.validator.Validate(validation.KindColumn, nil, map[string]string{"title": op.Title})
	if err != nil {
		return err
	}
	col := model.Column{ID: t.newID(), Title: values["title"], Position: len(t.board.Columns)}
	t.board.Columns = append(t.board.Columns, col)
	t.emit(model.EventColumnAdded, payload("column_id", col.ID, "title", col.Title))
	return nil
}

type UpdateColumn struct {
	ColumnID uuid.UUID
	Title    string
}

func (UpdateColumn) Name() string { return "update_column" }

func (op UpdateColumn) apply(t *tx) error {
	col, err := t.column(op.ColumnID)
	if err != nil {
		return err
	}
	values, err := t.validator.Validate(validation.KindColumn,
		map[string]string{"title": col.Title}, map[string]string{"title": op.Title})
	if err != nil {
		return err
	}
	if values["title"] == col.Title {
		return nil
	}
	col.Title = values["title"]
	t.emit(model.EventColumnUpdated, payload("column_id", col.ID, "title", col.Title))
	return nil
}

type DeleteColumn struct {
	ColumnID uuid.UUID
}

func (DeleteColumn) Name() string { return "delete_column" }

func (op DeleteColumn) apply(t *tx) error {
	i := t.board.ColumnIndex(op.ColumnID)
	if i < 0 {
		return ErrColumnNotFound
	}
	title := t.board.Columns[i].Title
	t.board.Columns = slices.Delete(t.board.Columns, i, i+1)
	t.board.Renumber()
	t.emit(model.EventColumnDeleted, payload("column_id", op.ColumnID, "title", title))
	return nil
}

// MoveColumnUp swaps a column with its predecessor. The first column stays.
type MoveColumnUp struct {
	ColumnID uuid.UUID
}

func (MoveColumnUp) Name() string { return "move_column_up" }

func (op MoveColumnUp) apply(t *tx) error {
	return moveColumn(t, op.ColumnID, -1)
}

// MoveColumnDown swaps a column with its successor. The last column stays.
type MoveColumnDown struct {
	ColumnID uuid.UUID
}

func (MoveColumnDown) Name() string { return "move_column_down" }

func (op MoveColumnDown) apply(t *tx) error {
	return moveColumn(t, op.ColumnID, 1)
}

func moveColumn(t *tx, id uuid.UUID, delta int) error {
	i := t.board.ColumnIndex(id)
	if i < 0 {
		return ErrColumnNotFound
	}
	j := i + delta
	if j < 0 || j >= len(t.board.Columns) {
		return nil
	}
	cols := t.board.Columns
	cols[i], cols[j] = cols[j], cols[i]
	t.board.Renumber()
	t.emit(model.EventColumnMoved, payload("column_id", id))
	return nil
}

// SortColumnByLikes orders a column's cards and piles by descending like
// count. Ties keep their current relative order.
type SortColumnByLikes struct {
	ColumnID uuid.UUID
}

func (SortColumnByLikes) Name() string { return "sort_column_by_likes" }

func (op SortColumnByLikes) apply(t *tx) error {
	return sortColumn(t, op.ColumnID, "likes", model.Item.LikeCount)
}

// SortColumnByVotes orders a column's cards and piles by descending vote
// count. Ties keep their current relative order.
type SortColumnByVotes struct {
	ColumnID uuid.UUID
}

func (SortColumnByVotes) Name() string { return "sort_column_by_votes" }

func (op SortColumnByVotes) apply(t *tx) error {
	return sortColumn(t, op.ColumnID, "votes", model.Item.VoteCount)
}

func sortColumn(t *tx, id uuid.UUID, by string, count func(model.Item) int) error {
	col, err := t.column(id)
	if err != nil {
		return err
	}
	before := make([]uuid.UUID, len(col.Items))
	for i, it := range col.Items {
		before[i] = it.ID()
	}
	sort.SliceStable(col.Items, func(a, b int) bool {
		return count(col.Items[a]) > count(col.Items[b])
	})
	for i, it := range col.Items {
		if it.ID() != before[i] {
			t.emit(model.EventColumnSorted, payload("column_id", col.ID, "by", by))
			return nil
		}
	}
	return nil
}
