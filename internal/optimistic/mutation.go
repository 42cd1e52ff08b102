package optimistic

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle position of a dispatched mutation.
type State int

const (
	// StatePending means the forward deltas are applied and the network call has not resolved.
	StatePending State = iota
	// StateConfirmed means the backend accepted the change.
	StateConfirmed
	// StateRolledBack means the inverse deltas were applied.
	StateRolledBack
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// CallFunc performs the network side of a mutation. On success it returns
// the deltas that merge authoritative server fields into the collection.
type CallFunc[T any] func(ctx context.Context) ([]Delta[T], error)

// Mutation describes one logical change.
type Mutation[T any] struct {
	// Op names the change for logs and metrics.
	Op string
	// Keys are the entities touched. Empty means the whole collection.
	Keys []string
	// Forward is applied synchronously by Submit.
	Forward []Delta[T]
	// Call runs on the dispatcher's worker goroutine.
	Call CallFunc[T]
}

// Pending tracks a submitted mutation until it is confirmed or rolled back.
type Pending[T any] struct {
	ID        uint64
	Op        string
	Submitted time.Time

	keys    []string
	forward []Delta[T]
	inverse []Delta[T]
	call    CallFunc[T]

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newPending[T any](id uint64, m Mutation[T], inverse []Delta[T]) *Pending[T] {
	return &Pending[T]{
		ID:        id,
		Op:        m.Op,
		Submitted: time.Now(),
		keys:      m.Keys,
		forward:   m.Forward,
		inverse:   inverse,
		call:      m.Call,
		done:      make(chan struct{}),
	}
}

// Key returns the first entity key the mutation was submitted for, or "".
func (p *Pending[T]) Key() string {
	if len(p.keys) == 0 {
		return ""
	}
	return p.keys[0]
}

// State returns the current lifecycle state.
func (p *Pending[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the failure that caused a rollback, or nil.
func (p *Pending[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the mutation leaves StatePending.
func (p *Pending[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the mutation resolves and returns its error. If ctx ends
// first, ctx.Err() is returned and the mutation keeps running.
func (p *Pending[T]) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending[T]) resolve(state State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePending {
		return
	}
	p.state = state
	p.err = err
	close(p.done)
}

func (p *Pending[T]) wholeCollection() bool {
	return len(p.keys) == 0
}

func (p *Pending[T]) hasEffect() bool {
	return len(p.forward) > 0
}
