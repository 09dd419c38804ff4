// Package session runs one actor per connected client. A session keeps a
// read-only projection of its board, turns client intents into board
// operations and ends as soon as its user loses access.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"retro/internal/board"
	"retro/internal/model"
	"retro/internal/presence"
	"retro/internal/pubsub"
	"retro/internal/validation"
)

type PushKind string

const (
	PushView       PushKind = "view"
	PushPresence   PushKind = "presence"
	PushNotice     PushKind = "notice"
	PushTerminated PushKind = "terminated"
)

// Push is an asynchronous message for the client.
type Push struct {
	Kind   PushKind `json:"kind"`
	View   *View    `json:"view,omitempty"`
	Notice string   `json:"notice,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// Reply is the direct answer to an intent.
type Reply struct {
	Card  *model.Card  `json:"card,omitempty"`
	Users []model.User `json:"users,omitempty"`
}

type call struct {
	ctx   context.Context
	fn    func(ctx context.Context) (Reply, error)
	reply chan callResult
}

type callResult struct {
	reply Reply
	err   error
}

// Session is the actor behind one client connection.
type Session struct {
	id      uuid.UUID
	boardID uuid.UUID
	userID  uuid.UUID
	topic   string
	name    string
	cfg     Config
	log     logrus.FieldLogger

	ctx     context.Context
	cancel  context.CancelFunc
	calls   chan call
	pushes  *pubsub.Mailbox[Push]
	done    chan struct{}
	started atomic.Bool
	err     error
	onClose func(*Session)

	// owned by the run goroutine once started
	lease   *board.Lease
	updates *pubsub.Subscription[board.Update]
	diffs   *pubsub.Subscription[presence.Diff]
	epoch   uuid.UUID
	seq     uint64
	retired map[uuid.UUID]struct{}
	raw     *model.Board
	visible *model.Board
	role    model.Role
	window  *eventWindow
	entries []presence.Entry
	results []SearchHit
	ui      UIState
	lock    *uuid.UUID
	pending PushKind
	fatal   error
}

// connect checks access and prepares a session. The session lives until ctx
// ends or Close is called, once started.
func connect(ctx context.Context, cfg Config, boardID, userID uuid.UUID) (*Session, error) {
	lease, err := cfg.Authorities.Attach(ctx, boardID)
	if err != nil {
		return nil, err
	}
	connID := uuid.New()
	s := &Session{
		id:      connID,
		boardID: boardID,
		userID:  userID,
		topic:   board.Topic(boardID),
		cfg:     cfg,
		log: cfg.Log.WithFields(logrus.Fields{
			"board_id": boardID,
			"user_id":  userID,
			"conn_id":  connID,
		}),
		calls:   make(chan call),
		pushes:  pubsub.NewMailbox[Push](),
		done:    make(chan struct{}),
		lease:   lease,
		retired: make(map[uuid.UUID]struct{}),
		window:  newEventWindow(cfg.HistorySize),
		ui:      UIState{ActiveTab: DefaultTab},
	}

	// Access is checked before subscribing to anything.
	snap, err := lease.Query(ctx)
	if err != nil {
		lease.Release()
		return nil, err
	}
	role, err := s.resolveRole(ctx, snap.Board)
	if err != nil {
		lease.Release()
		return nil, fmt.Errorf("resolve role: %w", err)
	}
	if !role.AtLeast(model.RoleObserver) {
		lease.Release()
		return nil, ErrAccessDenied
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.updates = cfg.Updates.Subscribe(s.topic)
	s.diffs = cfg.Presence.Subscribe(s.topic)
	fail := func(err error) (*Session, error) {
		s.cancel()
		s.updates.Unsubscribe()
		s.diffs.Unsubscribe()
		lease.Release()
		return nil, err
	}

	// Query again now that no update can be missed.
	snap, err = lease.Query(ctx)
	if err != nil {
		return fail(err)
	}
	for _, e := range snap.Events {
		s.window.add(e)
	}
	if err := s.apply(snap.Board, nil, snap.Epoch, snap.Seq); err != nil {
		return fail(ErrAccessDenied)
	}

	s.name = s.displayName(ctx)
	if err := cfg.Presence.Track(s.ctx, s.topic, userID, connID, s.meta()); err != nil {
		return fail(fmt.Errorf("track presence: %w", err))
	}
	s.entries = cfg.Presence.List(s.topic)
	return s, nil
}

func (s *Session) start(onClose func(*Session)) {
	if !s.started.CAS(false, true) {
		return
	}
	s.onClose = onClose
	s.flush()
	go s.run()
	s.log.Info("session connected")
}

func (s *Session) ID() uuid.UUID      { return s.id }
func (s *Session) BoardID() uuid.UUID { return s.boardID }
func (s *Session) UserID() uuid.UUID  { return s.userID }

// Pushes yields the session's messages in order. It is closed after the
// session ended and every queued message was delivered.
func (s *Session) Pushes() <-chan Push { return s.pushes.C() }

// Done is closed when the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended. It is nil for a plain disconnect and
// only meaningful after Done is closed.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Close disconnects the session. In-flight operations still complete.
func (s *Session) Close() { s.cancel() }

// View returns the current view.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	_, err := s.call(ctx, func(context.Context) (Reply, error) {
		v = s.view()
		return Reply{}, nil
	})
	return v, err
}

func (s *Session) call(ctx context.Context, fn func(context.Context) (Reply, error)) (Reply, error) {
	c := call{ctx: ctx, fn: fn, reply: make(chan callResult, 1)}
	select {
	case s.calls <- c:
	case <-s.done:
		return Reply{}, ErrSessionClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.reply, r.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (s *Session) run() {
	defer s.teardown()
	for {
		select {
		case <-s.ctx.Done():
			return
		case u, ok := <-s.updates.C():
			if !ok {
				return
			}
			s.onUpdate(u)
		case _, ok := <-s.diffs.C():
			if !ok {
				return
			}
			s.entries = s.cfg.Presence.List(s.topic)
			s.mark(PushPresence)
		case c := <-s.calls:
			reply, err := c.fn(c.ctx)
			c.reply <- callResult{reply: reply, err: err}
		case <-s.lease.Done():
			if err := s.reattach(s.ctx); err != nil && s.fatal == nil {
				s.fatal = err
			}
		}
		if s.fatal != nil {
			s.terminate(s.fatal)
			return
		}
		s.flush()
	}
}

func (s *Session) onUpdate(u board.Update) {
	if _, old := s.retired[u.Epoch]; old {
		return
	}
	if u.Epoch == s.epoch && u.Seq <= s.seq {
		// Already applied from a dispatch result; keep its event.
		if u.Event != nil && s.window.add(*u.Event) {
			s.mark(PushView)
		}
		return
	}
	if err := s.apply(u.Board, u.Event, u.Epoch, u.Seq); err != nil {
		s.fatal = err
	}
}

// apply makes b the current snapshot and re-checks access against it. Every
// snapshot goes through here, so a revoked user can never keep watching.
func (s *Session) apply(b *model.Board, ev *model.Event, epoch uuid.UUID, seq uint64) error {
	if epoch != s.epoch {
		if s.epoch != uuid.Nil {
			s.retired[s.epoch] = struct{}{}
		}
		s.epoch = epoch
		s.window.advance()
	}
	s.seq = seq
	s.raw = b
	if ev != nil {
		s.window.add(*ev)
	}

	role, err := s.resolveRole(s.ctx, b)
	if err != nil {
		s.log.WithError(err).Error("role lookup failed")
		return fmt.Errorf("%w: %v", ErrAccessRevoked, err)
	}
	if !role.AtLeast(model.RoleObserver) {
		return ErrAccessRevoked
	}
	s.role = role

	if s.lock != nil {
		if _, ok := b.FindCard(*s.lock); !ok {
			s.endEdit()
		}
	}
	if s.ui.ConfirmDelete != nil {
		if _, ok := b.FindCard(*s.ui.ConfirmDelete); !ok {
			s.ui.ConfirmDelete = nil
		}
	}
	s.visible = mask(b, s.userID)
	s.results = Search(s.visible, s.ui.Search)
	s.mark(PushView)
	return nil
}

func (s *Session) resolveRole(ctx context.Context, b *model.Board) (model.Role, error) {
	if b.OwnerID == s.userID {
		return model.RoleOwner, nil
	}
	bound, err := s.cfg.Roles.GetUserRole(ctx, s.boardID, s.userID)
	if err != nil {
		return model.RoleNone, err
	}
	return model.EffectiveRole(b, s.userID, bound), nil
}

// dispatch sends op to the authority, re-attaching and retrying once if the
// authority went away. The result is applied right away; the matching
// broadcast is recognized by its sequence number and skipped.
func (s *Session) dispatch(ctx context.Context, op board.Operation) (board.Result, error) {
	res, err := s.lease.Dispatch(ctx, s.userID, op)
	if errors.Is(err, board.ErrAuthorityUnavailable) {
		s.log.WithField("op", op.Name()).Warn("board authority unavailable, reattaching")
		if rerr := s.reattach(ctx); rerr != nil {
			if s.fatal == nil && errors.Is(rerr, ErrAccessRevoked) {
				s.fatal = rerr
			}
			return board.Result{}, err
		}
		res, err = s.lease.Dispatch(ctx, s.userID, op)
	}
	if err != nil {
		return res, err
	}
	if res.Epoch != s.epoch || res.Seq > s.seq {
		if aerr := s.apply(res.Board, res.Event, res.Epoch, res.Seq); aerr != nil {
			s.fatal = aerr
		}
	} else if res.Event != nil {
		s.window.add(*res.Event)
	}
	return res, nil
}

// reattach swaps the lease for one on a fresh authority.
func (s *Session) reattach(ctx context.Context) error {
	lease, err := s.cfg.Authorities.Attach(ctx, s.boardID)
	if err != nil {
		return err
	}
	snap, err := lease.Query(ctx)
	if err != nil {
		lease.Release()
		return err
	}
	s.lease.Release()
	s.lease = lease
	for _, e := range snap.Events {
		s.window.add(e)
	}
	s.log.WithField("epoch", snap.Epoch).Info("reattached to board authority")
	return s.apply(snap.Board, nil, snap.Epoch, snap.Seq)
}

func (s *Session) displayName(ctx context.Context) string {
	if s.cfg.Users != nil {
		u, err := s.cfg.Users.GetByID(ctx, s.userID)
		if err != nil {
			s.log.WithError(err).Warn("failed to load user")
		}
		if u != nil && u.Name != "" {
			return u.Name
		}
	}
	return s.userID.String()[:8]
}

func (s *Session) meta() presence.Meta {
	m := presence.Meta{ConnRef: s.id.String(), DisplayName: s.name}
	if s.lock != nil {
		id := *s.lock
		m.LockedCardID = &id
	}
	return m
}

func (s *Session) publishMeta() {
	if err := s.cfg.Presence.Update(s.topic, s.userID, s.id, s.meta()); err != nil {
		s.log.WithError(err).Warn("failed to update presence")
	}
}

// beginEdit takes the soft lock on a card. Locks are advisory: another
// session may hold the same card.
func (s *Session) beginEdit(card uuid.UUID, content string) {
	s.lock = &card
	s.publishMeta()
	s.ui.EditingCardID = &card
	s.ui.Form = &Form{Kind: validation.KindCard, Target: card, Values: map[string]string{"content": content}}
	s.mark(PushView)
}

func (s *Session) endEdit() {
	if s.lock != nil {
		s.lock = nil
		s.publishMeta()
	}
	s.ui.EditingCardID = nil
	if s.ui.Form != nil && s.ui.Form.Kind == validation.KindCard {
		s.ui.Form = nil
	}
	s.mark(PushView)
}

func (s *Session) view() View {
	ui := s.ui
	if ui.Form != nil {
		f := *ui.Form
		ui.Form = &f
	}
	return View{
		ConnID:  s.id,
		Board:   s.visible,
		Role:    s.role,
		Events:  s.window.list(),
		Online:  OnlineUsers(s.entries),
		Locks:   LockHolders(s.entries),
		Results: s.results,
		UI:      ui,
	}
}

// mark schedules a push; a view push covers a presence push.
func (s *Session) mark(kind PushKind) {
	if s.pending != PushView {
		s.pending = kind
	}
}

func (s *Session) flush() {
	if s.pending == "" {
		return
	}
	v := s.view()
	s.pushes.Put(Push{Kind: s.pending, View: &v})
	s.pending = ""
}

func (s *Session) notice(msg string) {
	s.pushes.Put(Push{Kind: PushNotice, Notice: msg})
}

func (s *Session) terminate(err error) {
	s.err = err
	s.log.WithError(err).Warn("session terminated")
	s.pushes.Put(Push{Kind: PushTerminated, Reason: err.Error()})
}

func (s *Session) teardown() {
	s.cancel()
	if err := s.cfg.Presence.Untrack(s.topic, s.userID, s.id); err != nil && !errors.Is(err, presence.ErrNotTracked) {
		s.log.WithError(err).Warn("failed to untrack presence")
	}
	s.updates.Unsubscribe()
	s.diffs.Unsubscribe()
	s.lease.Release()
	s.pushes.Close()
	if s.onClose != nil {
		s.onClose(s)
	}
	close(s.done)
	s.log.Info("session closed")
}
