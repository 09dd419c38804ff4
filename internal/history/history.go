// Package history keeps the bounded log of recent board events.
package history

import "retro/internal/model"

// History is a fixed-capacity FIFO of events. It is owned by a single
// board authority and is not safe for concurrent use.
type History struct {
	buf   []model.Event
	start int
	n     int
}

// New returns a history that retains the capacity most recent events.
// A capacity below one is raised to one.
func New(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]model.Event, capacity)}
}

// Append adds e, evicting the oldest event once full.
func (h *History) Append(e model.Event) {
	c := len(h.buf)
	if h.n < c {
		h.buf[(h.start+h.n)%c] = e
		h.n++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % c
}

// Snapshot returns the retained events, most recent first.
func (h *History) Snapshot() []model.Event {
	out := make([]model.Event, h.n)
	c := len(h.buf)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+h.n-1-i)%c]
	}
	return out
}

func (h *History) Len() int { return h.n }

func (h *History) Cap() int { return len(h.buf) }
