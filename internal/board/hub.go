package board

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

)

const (
	DefaultHistorySize = 25
	defaultQueueSize   = 64
)

// HubConfig wires a Hub to its collaborators.
type HubConfig struct {
	Store       Store
	Roles       RoleStore
	Validator   Validator
	Publisher   Publisher
	HistorySize int
	QueueSize   int
	Log         logrus.FieldLogger
	Now         func() time.Time
}

// Hub keeps exactly one live Authority per attached board. An authority is
// created on first Attach and stopped when its last Lease is released. A
// stopping authority keeps its slot until it has drained its mailbox, so the
// next Attach loads a board that includes every queued operation.
type Hub struct {
	cfg authorityConfig
	log logrus.FieldLogger

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
	closed  bool
}

// entry is a board slot: loading while auth is nil, then live, then
// draining until auth.Done is closed.
type entry struct {
	auth     *Authority
	loaded   chan struct{}
	refs     int
	draining bool
}

func NewHub(cfg HubConfig) *Hub {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	return &Hub{
		cfg: authorityConfig{
			store:       cfg.Store,
			roles:       cfg.Roles,
			validator:   cfg.Validator,
			publisher:   cfg.Publisher,
			historySize: cfg.HistorySize,
			queueSize:   cfg.QueueSize,
			log:         log,
			now:         cfg.Now,
		},
		log:     log,
		entries: make(map[uuid.UUID]*entry),
	}
}

// Lease is one reference to a board's authority.
type Lease struct {
	*Authority
	hub      *Hub
	entry    *entry
	released atomic.Bool
}

// Release drops the reference. The last release stops the authority.
func (l *Lease) Release() {
	if !l.released.CAS(false, true) {
		return
	}
	l.hub.release(l)
}

// Attach returns a lease on the board's authority, loading the board from
// the store if no authority is running. It waits for a loading or draining
// authority of the same board first. Unknown boards yield ErrBoardNotFound;
// a closed hub yields ErrAuthorityUnavailable.
func (h *Hub) Attach(ctx context.Context, boardID uuid.UUID) (*Lease, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return nil, ErrAuthorityUnavailable
		}

		var wait <-chan struct{}
		e, ok := h.entries[boardID]
		switch {
		case !ok:
			e = &entry{loaded: make(chan struct{})}
			h.entries[boardID] = e
			h.mu.Unlock()
			return h.load(ctx, boardID, e)
		case e.auth == nil:
			wait = e.loaded
		case exited(e.auth):
			delete(h.entries, boardID)
			h.mu.Unlock()
			continue
		case e.draining:
			wait = e.auth.Done()
		default:
			e.refs++
			h.mu.Unlock()
			return &Lease{Authority: e.auth, hub: h, entry: e}, nil
		}
		h.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// load fills the slot e reserved by Attach. Other attaches of the board
// wait on e.loaded meanwhile.
func (h *Hub) load(ctx context.Context, boardID uuid.UUID, e *entry) (*Lease, error) {
	b, err := h.cfg.store.GetByID(ctx, boardID)

	h.mu.Lock()
	defer h.mu.Unlock()
	defer close(e.loaded)

	abandon := func() {
		if h.entries[boardID] == e {
			delete(h.entries, boardID)
		}
	}
	switch {
	case err != nil:
		abandon()
		return nil, fmt.Errorf("load board: %w", err)
	case b == nil:
		abandon()
		return nil, ErrBoardNotFound
	case h.closed:
		abandon()
		return nil, ErrAuthorityUnavailable
	}

	e.auth = newAuthority(b, h.cfg)
	e.refs = 1
	go h.watch(boardID, e)
	h.log.WithField("board_id", boardID).Info("board authority started")
	return &Lease{Authority: e.auth, hub: h, entry: e}, nil
}

func exited(a *Authority) bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

// watch frees the slot once the authority exits, whether it drained after
// the last release or crashed while still referenced.
func (h *Hub) watch(boardID uuid.UUID, e *entry) {
	<-e.auth.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.entries[boardID] == e {
		delete(h.entries, boardID)
	}
	log := h.log.WithField("board_id", boardID)
	if e.auth.Crashed() {
		log.Warn("board authority crashed")
		return
	}
	log.Info("board authority stopped")
}

func (h *Hub) release(l *Lease) {
	h.mu.Lock()
	defer h.mu.Unlock()
	l.entry.refs--
	if l.entry.refs > 0 {
		return
	}
	l.entry.draining = true
	l.entry.auth.Stop()
}

// Live reports whether an authority is serving leases for the board.
// Draining authorities are not live.
func (h *Hub) Live(boardID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[boardID]
	return ok && e.live()
}

// Len returns the number of live authorities.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.entries {
		if e.live() {
			n++
		}
	}
	return n
}

func (e *entry) live() bool {
	return e.auth != nil && !e.draining && !exited(e.auth)
}

// Close stops every authority regardless of outstanding leases. Later
// attaches fail.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, e := range h.entries {
		if e.auth != nil {
			e.auth.Stop()
		}
		delete(h.entries, id)
	}
}
