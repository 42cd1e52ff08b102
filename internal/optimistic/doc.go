// Package optimistic implements optimistic mutation with local cache
// reconciliation.
//
// A Collection holds the client's current belief about a remote collection.
// A Dispatcher applies a mutation's forward deltas to it immediately, runs the
// network call on a single worker goroutine and, depending on the result,
// merges authoritative fields or applies the inverse deltas captured at
// submission time.
//
// Lifecycle of a mutation:
//
//	Submit -> Pending -> Confirmed
//	                  \-> RolledBack
//
// Refreshes go through the same queue as mutations. When a refresh replaces
// the collection, still-queued mutations are replayed on top of the new
// state, so a refresh never erases an optimistic change that has not been
// sent yet.
package optimistic
