package optimistic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"one-plate/internal/errs"
)

type entry struct {
	ID  string
	Val int
}

func newEntries(items ...entry) *Collection[entry] {
	c := NewCollection(
		func(e entry) string { return e.ID },
		func(e entry, id string) entry { e.ID = id; return e },
	)
	if len(items) > 0 {
		if err := c.ReplaceAll(items); err != nil {
			panic(err)
		}
	}
	return c
}

func ids(items []entry) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestCollection_InsertRemoveUpdate(t *testing.T) {
	c := newEntries(entry{ID: "a", Val: 1}, entry{ID: "b", Val: 2})

	_, err := c.Apply(InsertOf(entry{ID: "c", Val: 3}))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(c.Snapshot()))

	_, err = c.Apply(UpdateOf(entry{ID: "b", Val: 20}))
	require.NoError(t, err)
	got, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 20, got.Val)

	_, err = c.Apply(RemoveOf[entry]("a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(c.Snapshot()))
}

func TestCollection_InverseRestoresExactState(t *testing.T) {
	c := newEntries(entry{ID: "a", Val: 1}, entry{ID: "b", Val: 2}, entry{ID: "c", Val: 3})
	before := c.Snapshot()

	inverse, err := c.Apply(
		RemoveOf[entry]("b"),
		UpdateOf(entry{ID: "c", Val: 30}),
		InsertOf(entry{ID: "d", Val: 4}),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, ids(c.Snapshot()))

	_, err = c.Apply(inverse...)
	require.NoError(t, err)
	assert.Equal(t, before, c.Snapshot())
}

func TestCollection_ApplyIsAtomic(t *testing.T) {
	c := newEntries(entry{ID: "a", Val: 1})
	version := c.version()

	_, err := c.Apply(InsertOf(entry{ID: "b"}), RemoveOf[entry]("missing"))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotFound))
	assert.Equal(t, []string{"a"}, ids(c.Snapshot()))
	assert.Equal(t, version, c.version())
}

func TestCollection_SnapshotIsNotMutatedByLaterWrites(t *testing.T) {
	c := newEntries(entry{ID: "a", Val: 1}, entry{ID: "b", Val: 2})
	snap := c.Snapshot()

	_, err := c.Apply(RemoveOf[entry]("a"), UpdateOf(entry{ID: "b", Val: 99}))
	require.NoError(t, err)

	assert.Equal(t, []entry{{ID: "a", Val: 1}, {ID: "b", Val: 2}}, snap)
}

func TestCollection_DuplicateInsertConflicts(t *testing.T) {
	c := newEntries(entry{ID: "a"})

	_, err := c.Apply(InsertOf(entry{ID: "a"}))
	assert.True(t, errs.Is(err, errs.Conflict))
	assert.Equal(t, 1, c.Len())
}

func TestCollection_RekeyLeavesAlias(t *testing.T) {
	c := newEntries(entry{ID: "tmp-1", Val: 1})

	_, err := c.Apply(RekeyOf("tmp-1", entry{ID: "srv-1", Val: 1}))
	require.NoError(t, err)

	assert.Equal(t, "srv-1", c.Resolve("tmp-1"))
	got, ok := c.Get("tmp-1")
	require.True(t, ok)
	assert.Equal(t, "srv-1", got.ID)

	// Updates addressed to the old key land on the re-keyed entry.
	_, err = c.Apply(UpdateOf(entry{ID: "tmp-1", Val: 5}))
	require.NoError(t, err)
	assert.Equal(t, []entry{{ID: "srv-1", Val: 5}}, c.Snapshot())
}

func TestCollection_ReplaceRejectsDuplicates(t *testing.T) {
	c := newEntries(entry{ID: "a"})

	err := c.ReplaceAll([]entry{{ID: "x"}, {ID: "x"}})
	assert.True(t, errs.Is(err, errs.Conflict))
	assert.Equal(t, []string{"a"}, ids(c.Snapshot()))
}

func TestCollection_RemoveInverseFollowsNeighbour(t *testing.T) {
	c := newEntries(entry{ID: "a"}, entry{ID: "b"}, entry{ID: "c"})

	inverse, err := c.Apply(RemoveOf[entry]("b"))
	require.NoError(t, err)
	_, err = c.Apply(Delta[entry]{Kind: Insert, Item: entry{ID: "x"}, Index: 0})
	require.NoError(t, err)

	_, err = c.Apply(inverse...)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "a", "b", "c"}, ids(c.Snapshot()))
}
