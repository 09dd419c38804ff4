// Package board owns canonical board state. Each board is served by a single
// Authority goroutine that applies operations one at a time and publishes
// the resulting snapshots.
package board

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"

	"retro/internal/history"
	"retro/internal/model"
)

var tracer = otel.Tracer("retro/internal/board")

// Result describes an applied operation. Changed is false for operations
// that found their target state already satisfied.
type Result struct {
	Board   *model.Board
	Event   *model.Event
	Card    *model.Card
	Changed bool
	Epoch   uuid.UUID
	Seq     uint64
}

type request struct {
	ctx   context.Context
	actor uuid.UUID
	op    Operation // nil for queries
	reply chan response
}

type response struct {
	result   Result
	snapshot Snapshot
	err      error
}

// Authority serializes every operation on one board.
type Authority struct {
	id    uuid.UUID
	epoch uuid.UUID
	log   logrus.FieldLogger

	// owned by the run goroutine
	board   *model.Board
	history *history.History
	seq     uint64
	entropy io.Reader

	store     Store
	roles     RoleStore
	validator Validator
	publisher Publisher
	now       func() time.Time

	mailbox  chan request
	stop     chan struct{}
	done     chan struct{}
	stopping atomic.Bool
	crashed  atomic.Bool
}

type authorityConfig struct {
	store       Store
	roles       RoleStore
	validator   Validator
	publisher   Publisher
	historySize int
	queueSize   int
	log         logrus.FieldLogger
	now         func() time.Time
}

func newAuthority(b *model.Board, cfg authorityConfig) *Authority {
	now := cfg.now
	if now == nil {
		now = time.Now
	}
	a := &Authority{
		id:        b.ID,
		epoch:     uuid.New(),
		board:     b,
		history:   history.New(cfg.historySize),
		entropy:   ulid.Monotonic(rand.Reader, 0),
		store:     cfg.store,
		roles:     cfg.roles,
		validator: cfg.validator,
		publisher: cfg.publisher,
		now:       now,
		mailbox:   make(chan request, cfg.queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	a.log = cfg.log.WithField("board_id", b.ID)
	go a.run()
	return a
}

func (a *Authority) ID() uuid.UUID { return a.id }

// Done is closed once the authority stopped serving requests.
func (a *Authority) Done() <-chan struct{} { return a.done }

// Crashed reports whether the authority stopped because an operation
// panicked.
func (a *Authority) Crashed() bool { return a.crashed.Load() }

// Dispatch applies op on behalf of actor and waits for the outcome. If ctx
// ends first Dispatch returns ctx.Err(), but an operation that was already
// queued still runs and is broadcast.
func (a *Authority) Dispatch(ctx context.Context, actor uuid.UUID, op Operation) (Result, error) {
	ctx, span := tracer.Start(ctx, "board.dispatch", trace.WithAttributes(
		attribute.String("board_id", a.id.String()),
		attribute.String("op", op.Name()),
	))
	defer span.End()

	resp, err := a.call(ctx, request{ctx: ctx, actor: actor, op: op})
	if err == nil {
		err = resp.err
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	return resp.result, nil
}

// Query returns the current board and history. It is served in mailbox
// order, so it reflects every operation queued before it.
func (a *Authority) Query(ctx context.Context) (Snapshot, error) {
	resp, err := a.call(ctx, request{ctx: ctx})
	if err != nil {
		return Snapshot{}, err
	}
	return resp.snapshot, resp.err
}

func (a *Authority) call(ctx context.Context, req request) (response, error) {
	req.reply = make(chan response, 1)
	select {
	case <-a.done:
		return response{}, ErrAuthorityUnavailable
	default:
	}

	select {
	case a.mailbox <- req:
	case <-a.done:
		return response{}, ErrAuthorityUnavailable
	case <-ctx.Done():
		return response{}, ctx.Err()
	}

	select {
	case resp := <-req.reply:
		return resp, nil
	case <-a.done:
		select {
		case resp := <-req.reply:
			return resp, nil
		default:
			return response{}, ErrAuthorityUnavailable
		}
	case <-ctx.Done():
		return response{}, ctx.Err()
	}
}

// Stop asks the authority to finish queued requests and exit.
func (a *Authority) Stop() {
	if a.stopping.CAS(false, true) {
		close(a.stop)
	}
}

func (a *Authority) run() {
	defer close(a.done)
	a.log.Debug("authority started")
	for {
		select {
		case req := <-a.mailbox:
			if !a.serve(req) {
				return
			}
		case <-a.stop:
			for {
				select {
				case req := <-a.mailbox:
					if !a.serve(req) {
						return
					}
				default:
					a.log.Debug("authority stopped")
					return
				}
			}
		}
	}
}

// serve handles one request and reports whether the authority may go on.
func (a *Authority) serve(req request) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.crashed.Store(true)
			a.log.WithField("panic", r).Error("authority crashed")
			req.reply <- response{err: ErrAuthorityUnavailable}
			ok = false
		}
	}()

	if req.op == nil {
		req.reply <- response{snapshot: Snapshot{
			Board:  a.board,
			Events: a.history.Snapshot(),
			Epoch:  a.epoch,
			Seq:    a.seq,
		}}
		return true
	}

	result, err := a.apply(req)
	req.reply <- response{result: result, err: err}
	return true
}

func (a *Authority) apply(req request) (Result, error) {
	// The caller may give up waiting; the operation still completes.
	ctx := context.WithoutCancel(req.ctx)
	log := a.log.WithFields(logrus.Fields{"op": req.op.Name(), "user_id": req.actor})

	t := &tx{
		ctx:       ctx,
		board:     a.board.Clone(),
		actor:     req.actor,
		now:       a.now(),
		newID:     uuid.New,
		newEvent:  func(ts time.Time) ulid.ULID { return ulid.MustNew(ulid.Timestamp(ts), a.entropy) },
		roles:     a.roles,
		validator: a.validator,
	}
	if err := req.op.apply(t); err != nil {
		log.WithError(err).Debug("operation rejected")
		return Result{}, err
	}
	if !t.changed && t.event == nil {
		return Result{Board: a.board, Epoch: a.epoch, Seq: a.seq}, nil
	}

	if t.changed {
		t.board.UpdatedAt = t.now
		if err := a.store.Save(ctx, t.board); err != nil {
			log.WithError(err).Error("failed to persist board")
			return Result{}, fmt.Errorf("save board: %w", err)
		}
		a.board = t.board
	}
	if t.event != nil {
		a.history.Append(*t.event)
	}
	a.seq++
	a.publisher.Publish(Topic(a.id), Update{
		BoardID: a.id,
		Board:   a.board,
		Event:   t.event,
		Epoch:   a.epoch,
		Seq:     a.seq,
	})
	log.WithField("seq", a.seq).Debug("operation applied")

	return Result{
		Board:   a.board,
		Event:   t.event,
		Card:    t.created,
		Changed: t.changed,
		Epoch:   a.epoch,
		Seq:     a.seq,
	}, nil
}
