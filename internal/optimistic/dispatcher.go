package optimistic

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"one-plate/internal/errs"
)

// Outcome is reported to the Observer each time a mutation resolves.
type Outcome struct {
	Store   string
	Op      string
	State   State
	Kind    errs.Kind
	Latency time.Duration
	Err     error
}

// Observer receives mutation outcomes. It is called from the worker
// goroutine and must not block.
type Observer func(Outcome)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	observer Observer
	logger   *slog.Logger
}

// WithObserver installs a callback for resolved mutations.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// Dispatcher runs the optimistic-update protocol for one Collection.
//
// Forward deltas are applied synchronously by Submit. Network calls are
// executed one at a time, in submission order, by a single worker goroutine.
// This serializes every store-mutating operation, including Sync, so a
// mutation never races another mutation or a refresh of the same store.
//
// When a mutation fails, it is rolled back together with every later queued
// mutation that touches one of its keys; those are never sent. Other queued
// mutations keep their effect.
type Dispatcher[T any] struct {
	name string
	coll *Collection[T]
	opts options

	mu     sync.Mutex
	queue  []*Pending[T]
	nextID uint64
	closed bool
	signal chan struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewDispatcher starts a dispatcher for coll. Close must be called to stop its worker.
func NewDispatcher[T any](name string, coll *Collection[T], opts ...Option) *Dispatcher[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher[T]{
		name:    name,
		coll:    coll,
		opts:    o,
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	go d.run()
	return d
}

// Collection returns the store this dispatcher writes to.
func (d *Dispatcher[T]) Collection() *Collection[T] {
	return d.coll
}

// Submit applies m's forward deltas and queues its network call. An error is
// returned, and nothing is queued, when the deltas do not apply (for example
// the target entity is gone) or the dispatcher is closed.
func (d *Dispatcher[T]) Submit(m Mutation[T]) (*Pending[T], error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errs.E(errs.Network, m.Op, "session closed")
	}

	inverse, err := d.coll.Apply(m.Forward...)
	if err != nil {
		return nil, err
	}

	d.nextID++
	p := newPending(d.nextID, m, inverse)
	d.queue = append(d.queue, p)

	select {
	case d.signal <- struct{}{}:
	default:
	}
	return p, nil
}

// Barrier waits until every mutation submitted before it has resolved.
func (d *Dispatcher[T]) Barrier(ctx context.Context) error {
	p, err := d.Submit(Mutation[T]{Op: "barrier"})
	if err != nil {
		return err
	}
	return p.Wait(ctx)
}

// Queued returns the number of local changes waiting for the worker, not
// counting the one in flight.
func (d *Dispatcher[T]) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, q := range d.queue {
		if q.hasEffect() {
			n++
		}
	}
	return n
}

// Close stops the worker. The in-flight call is cancelled and queued
// mutations are rolled back with a Network error.
func (d *Dispatcher[T]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.stopped
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	<-d.stopped
}

func (d *Dispatcher[T]) run() {
	defer close(d.stopped)

	for {
		p, ok := d.next()
		if !ok {
			select {
			case <-d.ctx.Done():
				d.drain()
				return
			case <-d.signal:
				continue
			}
		}
		d.execute(p)
	}
}

func (d *Dispatcher[T]) next() (*Pending[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil || len(d.queue) == 0 {
		return nil, false
	}
	p := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return p, true
}

func (d *Dispatcher[T]) execute(p *Pending[T]) {
	var (
		merge []Delta[T]
		err   error
	)
	if p.call != nil {
		merge, err = p.call(d.ctx)
	}
	if err != nil {
		d.rollback(p, err)
		return
	}
	d.confirm(p, merge)
}

func (d *Dispatcher[T]) confirm(p *Pending[T], merge []Delta[T]) {
	var dropped []droppedMutation[T]

	d.mu.Lock()
	err := d.coll.Update(func(tx *Tx[T]) error {
		if len(merge) == 0 {
			return nil
		}
		if d.superseded(tx, p) {
			merge = soften(tx, merge)
		}
		if _, err := tx.Apply(merge...); err != nil {
			// A later local mutation already superseded the entity.
			d.opts.logger.Debug("merge skipped",
				"store", d.name, "op", p.Op, "id", p.ID, "error", err)
			return nil
		}
		if hasReplace(merge) {
			_, dropped = d.rebase(tx, nil)
		}
		return nil
	})
	d.mu.Unlock()
	if err != nil {
		d.opts.logger.Warn("merge failed", "store", d.name, "op", p.Op, "error", err)
	}

	p.resolve(StateConfirmed, nil)
	d.report(p, StateConfirmed, nil)
	for _, m := range dropped {
		m.p.resolve(StateRolledBack, m.err)
		d.report(m.p, StateRolledBack, m.err)
	}
}

// superseded reports whether a queued mutation already changed one of p's
// entities locally. Must be called with d.mu held.
func (d *Dispatcher[T]) superseded(tx *Tx[T], p *Pending[T]) bool {
	for _, q := range d.queue {
		if q.hasEffect() && overlaps(tx.Resolve, p, q) {
			return true
		}
	}
	return false
}

// soften drops field updates from a merge so that later local changes stay
// visible. Key changes are kept, carrying the current local value, or only
// recorded as an alias when the entry is already gone.
func soften[T any](tx *Tx[T], merge []Delta[T]) []Delta[T] {
	out := make([]Delta[T], 0, len(merge))
	for _, m := range merge {
		switch m.Kind {
		case Update:
			continue
		case Rekey:
			cur, ok := tx.Get(m.Key)
			if !ok {
				// Removed locally; later calls still need the server key.
				tx.alias(m.Key, tx.c.keyOf(m.Item))
				continue
			}
			m.Item = tx.c.withKey(cur, tx.c.keyOf(m.Item))
		}
		out = append(out, m)
	}
	return out
}

type droppedMutation[T any] struct {
	p   *Pending[T]
	err error
}

// rebase replays queued forward deltas on top of the transaction's state and
// recomputes their inverses. Mutations for which depends reports true are
// removed without replaying, as are those that no longer apply.
// Must be called with d.mu held.
func (d *Dispatcher[T]) rebase(tx *Tx[T], depends func(q *Pending[T]) bool) (skipped []*Pending[T], dropped []droppedMutation[T]) {
	kept := make([]*Pending[T], 0, len(d.queue))
	for _, q := range d.queue {
		if !q.hasEffect() {
			kept = append(kept, q)
			continue
		}
		if depends != nil && depends(q) {
			skipped = append(skipped, q)
			continue
		}
		inv, err := tx.replay(q.forward)
		if err != nil {
			dropped = append(dropped, droppedMutation[T]{p: q, err: err})
			continue
		}
		q.inverse = inv
		kept = append(kept, q)
	}
	d.queue = kept
	return skipped, dropped
}

// rollback undoes p alone. Queued mutations are unwound so p's inverse lands
// on the state it was computed against, then replayed, except the ones that
// touch p's entities: those are rolled back with it and never sent.
func (d *Dispatcher[T]) rollback(p *Pending[T], cause error) {
	var (
		cascaded []*Pending[T]
		dropped  []droppedMutation[T]
	)

	d.mu.Lock()
	if p.hasEffect() {
		_ = d.coll.Update(func(tx *Tx[T]) error {
			d.unwind(tx)
			if _, err := tx.Apply(p.inverse...); err != nil {
				d.opts.logger.Warn("rollback did not apply",
					"store", d.name, "op", p.Op, "id", p.ID, "error", err)
			}
			cascaded, dropped = d.rebase(tx, func(q *Pending[T]) bool {
				return overlaps(tx.Resolve, p, q)
			})
			return nil
		})
	}
	d.mu.Unlock()

	d.opts.logger.Info("mutation rolled back",
		"store", d.name, "op", p.Op, "id", p.ID, "kind", errs.KindOf(cause).String(), "cascaded", len(cascaded)+len(dropped))

	p.resolve(StateRolledBack, cause)
	d.report(p, StateRolledBack, cause)
	for _, m := range dropped {
		cascaded = append(cascaded, m.p)
	}
	for _, q := range cascaded {
		err := &errs.Error{
			Kind:    errs.KindOf(cause),
			Op:      q.Op,
			Message: "rolled back because an earlier change to the same item failed",
			Err:     cause,
		}
		q.resolve(StateRolledBack, err)
		d.report(q, StateRolledBack, err)
	}
}

// unwind applies the inverse of every queued mutation, newest first.
// Must be called with d.mu held.
func (d *Dispatcher[T]) unwind(tx *Tx[T]) {
	for i := len(d.queue) - 1; i >= 0; i-- {
		q := d.queue[i]
		if _, err := tx.Apply(q.inverse...); err != nil {
			d.opts.logger.Warn("unwind did not apply",
				"store", d.name, "op", q.Op, "id", q.ID, "error", err)
		}
	}
}

// overlaps reports whether two keyed mutations share an entity. Mutations
// over the whole collection overlap nothing: they are replayed instead.
func overlaps[T any](resolve func(string) string, p, q *Pending[T]) bool {
	if p.wholeCollection() || q.wholeCollection() {
		return false
	}
	for _, a := range p.keys {
		ra := resolve(a)
		for _, b := range q.keys {
			if a == b || ra == resolve(b) {
				return true
			}
		}
	}
	return false
}

// drain rolls back everything still queued once the dispatcher is closed.
func (d *Dispatcher[T]) drain() {
	d.mu.Lock()
	queued := d.queue
	d.queue = nil
	_ = d.coll.Update(func(tx *Tx[T]) error {
		for i := len(queued) - 1; i >= 0; i-- {
			if _, err := tx.Apply(queued[i].inverse...); err != nil {
				d.opts.logger.Warn("rollback on close did not apply",
					"store", d.name, "op", queued[i].Op, "error", err)
			}
		}
		return nil
	})
	d.mu.Unlock()

	for _, q := range queued {
		err := errs.E(errs.Network, q.Op, "session closed")
		q.resolve(StateRolledBack, err)
		d.report(q, StateRolledBack, err)
	}
}

func (d *Dispatcher[T]) report(p *Pending[T], state State, err error) {
	if d.opts.observer == nil || p.Op == "barrier" {
		return
	}
	d.opts.observer(Outcome{
		Store:   d.name,
		Op:      p.Op,
		State:   state,
		Kind:    errs.KindOf(err),
		Latency: time.Since(p.Submitted),
		Err:     err,
	})
}

func hasReplace[T any](deltas []Delta[T]) bool {
	for _, d := range deltas {
		if d.Kind == Replace {
			return true
		}
	}
	return false
}
