package session

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"retro/internal/model"
	"retro/internal/presence"
	"retro/internal/validation"
)

// View is what a session shows its client. It is rebuilt from the current
// board snapshot and presence on every change.
type View struct {
	ConnID  uuid.UUID                 `json:"conn_id"`
	Board   *model.Board              `json:"board"`
	Role    model.Role                `json:"role"`
	Events  []model.Event             `json:"events"`
	Online  []OnlineUser              `json:"online"`
	Locks   map[uuid.UUID][]uuid.UUID `json:"locks"`
	Results []SearchHit               `json:"results,omitempty"`
	UI      UIState                   `json:"ui"`
}

// UIState is per-connection state that never leaves the session.
type UIState struct {
	ActiveTab     string     `json:"active_tab"`
	Form          *Form      `json:"form,omitempty"`
	Search        string     `json:"search"`
	ConfirmDelete *uuid.UUID `json:"confirm_delete,omitempty"`
	ModalOpen     bool       `json:"modal_open"`
	EditingCardID *uuid.UUID `json:"editing_card_id,omitempty"`
}

// Form is a pending form. Errors is set after a failed submit and kept until
// the form is submitted successfully or abandoned.
type Form struct {
	Kind   validation.Kind   `json:"kind"`
	Target uuid.UUID         `json:"target,omitempty"`
	Values map[string]string `json:"values"`
	Errors validation.Errors `json:"errors,omitempty"`
}

const DefaultTab = "board"

type OnlineUser struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Connections int       `json:"connections"`
}

type SearchHit struct {
	ColumnID uuid.UUID `json:"column_id"`
	CardID   uuid.UUID `json:"card_id"`
}

// Search lists the cards whose content contains query, ignoring case, in
// board order. An empty query matches nothing.
func Search(b *model.Board, query string) []SearchHit {
	query = strings.ToLower(strings.TrimSpace(query))
	if b == nil || query == "" {
		return nil
	}
	var hits []SearchHit
	match := func(col uuid.UUID, c model.Card) {
		if strings.Contains(strings.ToLower(c.Content), query) {
			hits = append(hits, SearchHit{ColumnID: col, CardID: c.ID})
		}
	}
	for _, col := range b.Columns {
		for _, item := range col.Items {
			if item.Card != nil {
				match(col.ID, *item.Card)
			}
			if item.Pile != nil {
				for _, c := range item.Pile.Cards {
					match(col.ID, c)
				}
			}
		}
	}
	return hits
}

// OnlineUsers collapses presence entries to one row per user, sorted by
// display name.
func OnlineUsers(entries []presence.Entry) []OnlineUser {
	byUser := make(map[uuid.UUID]*OnlineUser)
	for _, e := range entries {
		u, ok := byUser[e.Key.UserID]
		if !ok {
			u = &OnlineUser{UserID: e.Key.UserID, DisplayName: e.Meta.DisplayName}
			byUser[e.Key.UserID] = u
		}
		u.Connections++
	}
	out := make([]OnlineUser, 0, len(byUser))
	for _, u := range byUser {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].UserID.String() < out[j].UserID.String()
	})
	return out
}

// LockHolders maps each locked card to the users holding a lock on it.
// Locks are advisory, so a card may have more than one holder.
func LockHolders(entries []presence.Entry) map[uuid.UUID][]uuid.UUID {
	out := make(map[uuid.UUID][]uuid.UUID)
	for _, e := range entries {
		if e.Meta.LockedCardID == nil {
			continue
		}
		card := *e.Meta.LockedCardID
		holders := out[card]
		dup := false
		for _, h := range holders {
			if h == e.Key.UserID {
				dup = true
				break
			}
		}
		if !dup {
			out[card] = append(holders, e.Key.UserID)
		}
	}
	for _, holders := range out {
		sort.Slice(holders, func(i, j int) bool { return holders[i].String() < holders[j].String() })
	}
	return out
}

// mask hides the content of other authors' cards when the board hides cards.
// The input is never modified.
func mask(b *model.Board, viewer uuid.UUID) *model.Board {
	if b == nil || !b.Settings.CardsHidden {
		return b
	}
	out := b.Clone()
	hide := func(c *model.Card) {
		if c.AuthorID != viewer {
			c.Content = ""
			c.Masked = true
		}
	}
	for ci := range out.Columns {
		for ii := range out.Columns[ci].Items {
			item := &out.Columns[ci].Items[ii]
			if item.Card != nil {
				hide(item.Card)
			}
			if item.Pile != nil {
				for pi := range item.Pile.Cards {
					hide(&item.Pile.Cards[pi])
				}
			}
		}
	}
	return out
}

// eventWindow keeps the most recent events, newest first. Event IDs only
// order events minted by one authority, so entries are ranked by the epoch
// generation they arrived in and then by ID.
type eventWindow struct {
	size    int
	gen     uint64
	entries []windowEntry
}

type windowEntry struct {
	gen   uint64
	event model.Event
}

func newEventWindow(size int) *eventWindow {
	if size < 1 {
		size = 1
	}
	return &eventWindow{size: size}
}

// advance starts a new epoch generation. Events added afterwards rank above
// every event already held.
func (w *eventWindow) advance() {
	w.gen++
}

func (e windowEntry) before(o windowEntry) bool {
	if e.gen != o.gen {
		return e.gen < o.gen
	}
	return e.event.ID.Compare(o.event.ID) < 0
}

// add inserts e in order and drops the oldest beyond capacity. It reports
// whether the window changed; known events are ignored.
func (w *eventWindow) add(e model.Event) bool {
	for _, have := range w.entries {
		if have.event.ID == e.ID {
			return false
		}
	}
	in := windowEntry{gen: w.gen, event: e}
	i := sort.Search(len(w.entries), func(i int) bool {
		return w.entries[i].before(in)
	})
	if i >= w.size {
		return false
	}
	w.entries = append(w.entries, windowEntry{})
	copy(w.entries[i+1:], w.entries[i:])
	w.entries[i] = in
	if len(w.entries) > w.size {
		w.entries = w.entries[:w.size]
	}
	return true
}

func (w *eventWindow) list() []model.Event {
	out := make([]model.Event, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.event
	}
	return out
}
