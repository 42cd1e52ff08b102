package optimistic

import "fmt"

// DeltaKind identifies a change applied to a Collection.
type DeltaKind int

const (
	// Insert adds Item at Index (appends when Index is out of range).
	Insert DeltaKind = iota + 1
	// Remove deletes the entry stored under Key.
	Remove
	// Update replaces the entry with the same key as Item.
	Update
	// Rekey replaces the entry stored under Key with Item, which carries a new key.
	// The old key stays resolvable as an alias of the new one.
	Rekey
	// Replace swaps the whole collection for Items.
	Replace
)

func (k DeltaKind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Remove:
		return "remove"
	case Update:
		return "update"
	case Rekey:
		return "rekey"
	case Replace:
		return "replace"
	default:
		return fmt.Sprintf("delta(%d)", int(k))
	}
}

// Delta is a single change to a Collection, kept as data so it can be
// inverted, queued and replayed.
type Delta[T any] struct {
	Kind  DeltaKind
	Key   string
	Item  T
	Items []T
	Index int
	// After anchors an Insert behind the entry with this key. Index is used
	// when After is empty or no longer present.
	After string
}

// InsertOf appends item.
func InsertOf[T any](item T) Delta[T] {
	return Delta[T]{Kind: Insert, Item: item, Index: -1}
}

// RemoveOf deletes the entry stored under key.
func RemoveOf[T any](key string) Delta[T] {
	return Delta[T]{Kind: Remove, Key: key}
}

// UpdateOf replaces the entry sharing item's key.
func UpdateOf[T any](item T) Delta[T] {
	return Delta[T]{Kind: Update, Item: item}
}

// RekeyOf moves the entry under key to item's key.
func RekeyOf[T any](key string, item T) Delta[T] {
	return Delta[T]{Kind: Rekey, Key: key, Item: item}
}

// ReplaceOf swaps the whole collection.
func ReplaceOf[T any](items []T) Delta[T] {
	return Delta[T]{Kind: Replace, Items: items}
}
