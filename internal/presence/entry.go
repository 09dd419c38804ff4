package presence

import (
	"sort"

	"github.com/google/uuid"
)

// Key identifies one tracked connection. Keys never collide across
// connections, so writes on different keys never conflict.
type Key struct {
	Topic  string    `json:"topic"`
	UserID uuid.UUID `json:"user_id"`
	ConnID uuid.UUID `json:"conn_id"`
}

// Meta is the metadata a connection publishes about itself.
type Meta struct {
	ConnRef      string     `json:"conn_ref"`
	DisplayName  string     `json:"display_name"`
	LockedCardID *uuid.UUID `json:"locked_card_id,omitempty"`
}

// Field names accepted by Registry.GetField.
const (
	FieldConnRef      = "conn_ref"
	FieldDisplayName  = "display_name"
	FieldLockedCardID = "locked_card_id"
)

func (m Meta) field(name string) (string, bool) {
	switch name {
	case FieldConnRef:
		return m.ConnRef, true
	case FieldDisplayName:
		return m.DisplayName, true
	case FieldLockedCardID:
		if m.LockedCardID == nil {
			return "", true
		}
		return m.LockedCardID.String(), true
	}
	return "", false
}

func (m Meta) equal(o Meta) bool {
	if m.ConnRef != o.ConnRef || m.DisplayName != o.DisplayName {
		return false
	}
	if m.LockedCardID == nil || o.LockedCardID == nil {
		return m.LockedCardID == o.LockedCardID
	}
	return *m.LockedCardID == *o.LockedCardID
}

// Entry is a replicated presence record. NodeID names the node that owns the
// connection; Clock orders writes to the same key.
type Entry struct {
	Key    Key    `json:"key"`
	Meta   Meta   `json:"meta"`
	NodeID string `json:"node_id"`
	Clock  int64  `json:"clock"`
}

// Diff describes presence changes on one topic. An updated entry appears as
// a leave of its old value and a join of the new one.
type Diff struct {
	Topic  string
	Joins  []Entry
	Leaves []Entry
}

func (d Diff) empty() bool { return len(d.Joins) == 0 && len(d.Leaves) == 0 }

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Key, entries[j].Key
		if a.UserID != b.UserID {
			return a.UserID.String() < b.UserID.String()
		}
		return a.ConnID.String() < b.ConnID.String()
	})
}
