// Package presence tracks live connections per topic and replicates them
// between nodes. Every node owns the entries of its own connections and
// broadcasts them; other nodes merge what they hear and forget a node that
// stops sending heartbeats.
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"retro/internal/pubsub"
)

var (
	ErrAlreadyTracked = errors.New("presence: connection already tracked")
	ErrNotTracked     = errors.New("presence: connection not tracked")
	ErrUnknownField   = errors.New("presence: unknown field")
)

const (
	DefaultHeartbeat = 5 * time.Second
	DefaultTimeout   = 15 * time.Second
)

type Config struct {
	NodeID    string
	Transport Transport // nil keeps presence local to this node
	Heartbeat time.Duration
	Timeout   time.Duration
	Log       logrus.FieldLogger
	Now       func() time.Time
}

type partition struct {
	entries  map[Key]Entry
	lastSeen time.Time
}

type tracking struct {
	stop chan struct{}
}

// Registry is one node's view of the replicated presence set.
type Registry struct {
	node      string
	transport Transport
	heartbeat time.Duration
	timeout   time.Duration
	log       logrus.FieldLogger
	now       func() time.Time

	diffs  *pubsub.Broker[Diff]
	outbox *pubsub.Mailbox[Message]

	mu     sync.Mutex
	clock  int64
	nodes  map[string]*partition
	tracks map[Key]*tracking
}

func NewRegistry(cfg Config) *Registry {
	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = DefaultHeartbeat
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Registry{
		node:      cfg.NodeID,
		transport: cfg.Transport,
		heartbeat: cfg.Heartbeat,
		timeout:   cfg.Timeout,
		log:       log.WithField("node_id", cfg.NodeID),
		now:       cfg.Now,
		diffs:     pubsub.NewBroker[Diff](),
		outbox:    pubsub.NewMailbox[Message](),
		nodes:     make(map[string]*partition),
		tracks:    make(map[Key]*tracking),
	}
	r.nodes[r.node] = &partition{entries: make(map[Key]Entry)}
	return r
}

func (r *Registry) NodeID() string { return r.node }

// Track adds a connection to topic. The entry is removed again when ctx
// ends, unless it was untracked before.
func (r *Registry) Track(ctx context.Context, topic string, userID, connID uuid.UUID, meta Meta) error {
	key := Key{Topic: topic, UserID: userID, ConnID: connID}
	r.mu.Lock()
	if _, ok := r.tracks[key]; ok {
		r.mu.Unlock()
		return ErrAlreadyTracked
	}
	tr := &tracking{stop: make(chan struct{})}
	r.tracks[key] = tr
	r.putLocal(key, meta)
	r.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = r.untrack(key, tr)
		case <-tr.stop:
		}
	}()
	return nil
}

// Update replaces the metadata of a tracked connection.
func (r *Registry) Update(topic string, userID, connID uuid.UUID, meta Meta) error {
	key := Key{Topic: topic, UserID: userID, ConnID: connID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracks[key]; !ok {
		return ErrNotTracked
	}
	r.putLocal(key, meta)
	return nil
}

func (r *Registry) Untrack(topic string, userID, connID uuid.UUID) error {
	return r.untrack(Key{Topic: topic, UserID: userID, ConnID: connID}, nil)
}

// untrack removes key. With a non-nil tr it only removes the tracking that
// tr belongs to.
func (r *Registry) untrack(key Key, tr *tracking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.tracks[key]
	if !ok || (tr != nil && cur != tr) {
		return ErrNotTracked
	}
	delete(r.tracks, key)
	close(cur.stop)

	local := r.nodes[r.node]
	old := local.entries[key]
	delete(local.entries, key)
	r.publish(diffSet{}.leave(old))
	r.send(Message{Type: MessageDelta, Leaves: []Entry{{Key: key, NodeID: r.node, Clock: r.tick()}}})
	return nil
}

// List returns the entries of topic from every node. When two nodes report
// the same key the newer write wins.
func (r *Registry) List(topic string) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := make(map[Key]Entry)
	for _, p := range r.nodes {
		for k, e := range p.entries {
			if k.Topic != topic {
				continue
			}
			if cur, ok := merged[k]; !ok || e.Clock > cur.Clock {
				merged[k] = e
			}
		}
	}
	out := make([]Entry, 0, len(merged))
	for _, e := range merged {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func (r *Registry) Get(topic string, userID, connID uuid.UUID) (Entry, bool) {
	key := Key{Topic: topic, UserID: userID, ConnID: connID}
	for _, e := range r.List(topic) {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// GetField reads one metadata field of an entry. A missing entry yields
// "", false. It is the query surface for callers outside a session, which
// reads whole entries through List and Subscribe instead.
func (r *Registry) GetField(topic string, userID, connID uuid.UUID, field string) (string, bool, error) {
	e, ok := r.Get(topic, userID, connID)
	if !ok {
		return "", false, nil
	}
	v, known := e.Meta.field(field)
	if !known {
		return "", false, ErrUnknownField
	}
	return v, true, nil
}

// Subscribe delivers the diffs of topic in the order they were applied.
func (r *Registry) Subscribe(topic string) *pubsub.Subscription[Diff] {
	return r.diffs.Subscribe(topic)
}

// Run replicates presence until ctx ends. Without a transport it only
// waits.
func (r *Registry) Run(ctx context.Context) error {
	if r.transport == nil {
		<-ctx.Done()
		return nil
	}
	in, err := r.transport.Receive(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.send(r.heartbeatMessage())
	r.mu.Unlock()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	r.log.Info("presence replication started")
	for {
		select {
		case <-ctx.Done():
			r.leave()
			return nil
		case msg, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					r.leave()
					return nil
				}
				return errors.New("presence transport closed")
			}
			r.handle(msg)
		case msg := <-r.outbox.C():
			if err := r.transport.Broadcast(ctx, msg); err != nil {
				r.log.WithError(err).Warn("presence broadcast failed")
			}
		case <-ticker.C:
			r.mu.Lock()
			r.send(r.heartbeatMessage())
			r.sweep(r.now())
			r.mu.Unlock()
		}
	}
}

func (r *Registry) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.transport.Broadcast(ctx, Message{Type: MessageLeaveNode, NodeID: r.node}); err != nil {
		r.log.WithError(err).Warn("failed to announce node leave")
	}
	r.log.Info("presence replication stopped")
}

// handle merges a message from another node.
func (r *Registry) handle(msg Message) {
	if msg.NodeID == r.node {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.Type == MessageLeaveNode {
		r.dropNode(msg.NodeID)
		return
	}
	p, known := r.nodes[msg.NodeID]
	if !known {
		p = &partition{entries: make(map[Key]Entry)}
		r.nodes[msg.NodeID] = p
		// Introduce ourselves so the new node does not wait a full interval.
		r.send(r.heartbeatMessage())
	}
	p.lastSeen = r.now()

	diffs := diffSet{}
	for _, e := range msg.Joins {
		merge(p, e, diffs)
	}
	switch msg.Type {
	case MessageHeartbeat:
		present := make(map[Key]struct{}, len(msg.Joins))
		for _, e := range msg.Joins {
			present[e.Key] = struct{}{}
		}
		for k, e := range p.entries {
			if _, ok := present[k]; !ok && e.Clock < msg.Clock {
				delete(p.entries, k)
				diffs.leave(e)
			}
		}
	case MessageDelta:
		for _, l := range msg.Leaves {
			if cur, ok := p.entries[l.Key]; ok && cur.Clock <= l.Clock {
				delete(p.entries, l.Key)
				diffs.leave(cur)
			}
		}
	}
	r.publish(diffs)
}

// merge applies e to p if it is newer than what p holds.
func merge(p *partition, e Entry, diffs diffSet) {
	cur, ok := p.entries[e.Key]
	if ok && cur.Clock >= e.Clock {
		return
	}
	p.entries[e.Key] = e
	if ok {
		if cur.Meta.equal(e.Meta) {
			return
		}
		diffs.leave(cur)
	}
	diffs.join(e)
}

// sweep forgets nodes that have been silent for longer than the timeout.
func (r *Registry) sweep(now time.Time) {
	for id, p := range r.nodes {
		if id != r.node && now.Sub(p.lastSeen) > r.timeout {
			r.log.WithField("peer", id).Warn("presence peer timed out")
			r.dropNode(id)
		}
	}
}

func (r *Registry) dropNode(id string) {
	p, ok := r.nodes[id]
	if !ok || id == r.node {
		return
	}
	delete(r.nodes, id)
	diffs := diffSet{}
	for _, e := range p.entries {
		diffs.leave(e)
	}
	r.publish(diffs)
}

// putLocal writes a local entry. Callers hold r.mu.
func (r *Registry) putLocal(key Key, meta Meta) {
	local := r.nodes[r.node]
	e := Entry{Key: key, Meta: meta, NodeID: r.node, Clock: r.tick()}
	diffs := diffSet{}
	merge(local, e, diffs)
	r.publish(diffs)
	r.send(Message{Type: MessageDelta, Joins: []Entry{e}})
}

func (r *Registry) heartbeatMessage() Message {
	local := r.nodes[r.node]
	joins := make([]Entry, 0, len(local.entries))
	for _, e := range local.entries {
		joins = append(joins, e)
	}
	return Message{Type: MessageHeartbeat, Clock: r.tick(), Joins: joins}
}

// tick advances the node clock. It follows wall time but never repeats or
// goes backwards.
func (r *Registry) tick() int64 {
	c := r.now().UnixNano()
	if c <= r.clock {
		c = r.clock + 1
	}
	r.clock = c
	return c
}

func (r *Registry) send(msg Message) {
	if r.transport == nil {
		return
	}
	msg.NodeID = r.node
	r.outbox.Put(msg)
}

func (r *Registry) publish(diffs diffSet) {
	for topic, d := range diffs {
		if !d.empty() {
			r.diffs.Publish(topic, *d)
		}
	}
}

type diffSet map[string]*Diff

func (s diffSet) get(topic string) *Diff {
	d, ok := s[topic]
	if !ok {
		d = &Diff{Topic: topic}
		s[topic] = d
	}
	return d
}

func (s diffSet) join(e Entry) diffSet {
	d := s.get(e.Key.Topic)
	d.Joins = append(d.Joins, e)
	return s
}

func (s diffSet) leave(e Entry) diffSet {
	d := s.get(e.Key.Topic)
	d.Leaves = append(d.Leaves, e)
	return s
}
