package optimistic

import (
	"sync"

	"one-plate/internal/errs"
)

// maxAliasHops bounds alias resolution in case of a malformed chain.
const maxAliasHops = 16

// Collection is the local state store: an ordered set of entries keyed by a
// string identity. Published slices are never mutated; every write builds a
// new state and swaps it in under the write lock, so readers observe either
// the whole change or none of it.
type Collection[T any] struct {
	mu  sync.RWMutex
	cur *state[T]
	seq uint64

	keyOf   func(T) string
	withKey func(T, string) T
}

type state[T any] struct {
	items   []T
	index   map[string]int
	aliases map[string]string
}

// NewCollection returns an empty collection. keyOf extracts an entry's key and
// withKey returns a copy of an entry carrying a different key.
func NewCollection[T any](keyOf func(T) string, withKey func(T, string) T) *Collection[T] {
	return &Collection[T]{
		cur:     &state[T]{index: map[string]int{}, aliases: map[string]string{}},
		keyOf:   keyOf,
		withKey: withKey,
	}
}

// Snapshot returns the current entries. The slice is shared and must not be modified.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.items
}

// Get returns the entry stored under key, following aliases.
func (c *Collection[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.cur.index[c.cur.resolve(key)]
	if !ok {
		var zero T
		return zero, false
	}
	return c.cur.items[i], true
}

// Has reports whether key (or the key it aliases) is present.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Resolve follows aliases left behind by Rekey deltas.
func (c *Collection[T]) Resolve(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cur.resolve(key)
}

// Len returns the number of entries.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cur.items)
}

// version increases by one on every committed write.
func (c *Collection[T]) version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.seq
}

// ReplaceAll overwrites the collection. Aliases are kept so ids handed out
// before the replace still resolve.
func (c *Collection[T]) ReplaceAll(items []T) error {
	_, err := c.Apply(ReplaceOf(items))
	return err
}

// Apply applies deltas atomically and returns the deltas that undo them, in
// the order they must be applied. On error nothing is committed.
func (c *Collection[T]) Apply(deltas ...Delta[T]) ([]Delta[T], error) {
	var inverse []Delta[T]
	err := c.Update(func(tx *Tx[T]) error {
		var err error
		inverse, err = tx.Apply(deltas...)
		return err
	})
	return inverse, err
}

// Update runs fn against a private copy of the state and publishes the copy
// if fn returns nil.
func (c *Collection[T]) Update(fn func(tx *Tx[T]) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &Tx[T]{c: c, s: c.cur.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.dirty {
		c.cur = tx.s
		c.seq++
	}
	return nil
}

// Tx is a write transaction opened by Collection.Update.
type Tx[T any] struct {
	c     *Collection[T]
	s     *state[T]
	dirty bool
}

// Apply applies deltas inside the transaction. If one fails, the ones already
// applied by this call are undone and the error is returned.
func (tx *Tx[T]) Apply(deltas ...Delta[T]) ([]Delta[T], error) {
	inverse := make([]Delta[T], 0, len(deltas))
	for _, d := range deltas {
		inv, err := tx.s.apply(d, tx.c.keyOf, tx.c.withKey)
		if err != nil {
			for i := len(inverse) - 1; i >= 0; i-- {
				_, _ = tx.s.apply(inverse[i], tx.c.keyOf, tx.c.withKey)
			}
			return nil, err
		}
		inverse = append(inverse, inv)
		tx.dirty = true
	}
	reverse(inverse)
	return inverse, nil
}

// Get returns the entry under key as seen by the transaction.
func (tx *Tx[T]) Get(key string) (T, bool) {
	i, ok := tx.s.index[tx.s.resolve(key)]
	if !ok {
		var zero T
		return zero, false
	}
	return tx.s.items[i], true
}

// alias makes from resolve to to without touching entries.
func (tx *Tx[T]) alias(from, to string) {
	if from == to {
		return
	}
	tx.s.aliases[from] = to
	tx.dirty = true
}

// Resolve follows aliases within the transaction.
func (tx *Tx[T]) Resolve(key string) string {
	return tx.s.resolve(key)
}

// replay applies deltas like Apply, except that removing an entry that is
// already gone is skipped.
func (tx *Tx[T]) replay(deltas []Delta[T]) ([]Delta[T], error) {
	live := make([]Delta[T], 0, len(deltas))
	for _, d := range deltas {
		if d.Kind == Remove {
			if _, ok := tx.s.index[tx.s.resolve(d.Key)]; !ok {
				continue
			}
		}
		live = append(live, d)
	}
	return tx.Apply(live...)
}

func (s *state[T]) clone() *state[T] {
	n := &state[T]{
		items:   make([]T, len(s.items)),
		index:   make(map[string]int, len(s.index)),
		aliases: make(map[string]string, len(s.aliases)),
	}
	copy(n.items, s.items)
	for k, v := range s.index {
		n.index[k] = v
	}
	for k, v := range s.aliases {
		n.aliases[k] = v
	}
	return n
}

func (s *state[T]) resolve(key string) string {
	for i := 0; i < maxAliasHops; i++ {
		next, ok := s.aliases[key]
		if !ok {
			return key
		}
		key = next
	}
	return key
}

func (s *state[T]) reindex(keyOf func(T) string, from int) {
	for i := from; i < len(s.items); i++ {
		s.index[keyOf(s.items[i])] = i
	}
}

func (s *state[T]) apply(d Delta[T], keyOf func(T) string, withKey func(T, string) T) (Delta[T], error) {
	switch d.Kind {
	case Insert:
		key := keyOf(d.Item)
		if key == "" {
			return Delta[T]{}, errs.Validationf("insert", "entry has no id")
		}
		item := d.Item
		// An entry re-inserted after its key moved comes back under the new key.
		if resolved := s.resolve(key); resolved != key {
			key = resolved
			item = withKey(item, key)
		}
		if _, ok := s.index[key]; ok {
			return Delta[T]{}, errs.Conflictf("insert", "id %q already present", key)
		}
		at := d.Index
		if d.After != "" {
			if i, ok := s.index[s.resolve(d.After)]; ok {
				at = i + 1
			}
		}
		if at < 0 || at > len(s.items) {
			at = len(s.items)
		}
		s.items = append(s.items, item)
		copy(s.items[at+1:], s.items[at:])
		s.items[at] = item
		delete(s.aliases, key)
		s.reindex(keyOf, at)
		return RemoveOf[T](key), nil

	case Remove:
		key := s.resolve(d.Key)
		at, ok := s.index[key]
		if !ok {
			return Delta[T]{}, errs.NotFoundf("remove", "id %q not found", d.Key)
		}
		old := s.items[at]
		var after string
		if at > 0 {
			after = keyOf(s.items[at-1])
		}
		s.items = append(s.items[:at], s.items[at+1:]...)
		delete(s.index, key)
		s.reindex(keyOf, at)
		return Delta[T]{Kind: Insert, Item: old, Index: at, After: after}, nil

	case Update:
		key := s.resolve(keyOf(d.Item))
		at, ok := s.index[key]
		if !ok {
			return Delta[T]{}, errs.NotFoundf("update", "id %q not found", keyOf(d.Item))
		}
		old := s.items[at]
		item := d.Item
		if keyOf(item) != key {
			item = withKey(item, key)
		}
		s.items[at] = item
		return UpdateOf(old), nil

	case Rekey:
		oldKey := s.resolve(d.Key)
		at, ok := s.index[oldKey]
		if !ok {
			return Delta[T]{}, errs.NotFoundf("rekey", "id %q not found", d.Key)
		}
		newKey := keyOf(d.Item)
		if newKey == "" {
			return Delta[T]{}, errs.Validationf("rekey", "entry has no id")
		}
		if _, taken := s.index[newKey]; taken && newKey != oldKey {
			return Delta[T]{}, errs.Conflictf("rekey", "id %q already present", newKey)
		}
		old := s.items[at]
		s.items[at] = d.Item
		delete(s.index, oldKey)
		s.index[newKey] = at
		if newKey != oldKey {
			delete(s.aliases, newKey)
			s.aliases[oldKey] = newKey
		}
		return RekeyOf(newKey, old), nil

	case Replace:
		old := s.items
		items := make([]T, 0, len(d.Items))
		index := make(map[string]int, len(d.Items))
		for _, it := range d.Items {
			key := keyOf(it)
			if _, dup := index[key]; dup {
				return Delta[T]{}, errs.Conflictf("replace", "duplicate id %q", key)
			}
			index[key] = len(items)
			items = append(items, it)
		}
		s.items = items
		s.index = index
		for key := range index {
			delete(s.aliases, key)
		}
		return ReplaceOf(old), nil
	}
	return Delta[T]{}, errs.Validationf("apply", "unknown delta kind %s", d.Kind)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
