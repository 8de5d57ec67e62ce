package batch

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/imgbatch/internal/model"
)

func item(id string) model.Item {
	return model.Item{ID: id, Name: id, State: model.StatePending}
}

func ids(items []model.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestAddItems_MergesByID(t *testing.T) {
	s := New(model.DefaultOptions(), 0)

	s.AddItems(item("a"), item("b"))
	updated := item("a").Start().Complete(model.Artifact{Ref: "results/a.jpg", Size: 1})
	s.AddItems(updated, item("c"))

	items := s.Items()
	assert.Equal(t, []string{"a", "b", "c"}, ids(items))
	assert.Equal(t, model.StateCompleted, items[0].State)
	assert.Equal(t, "results/a.jpg", items[0].ResultRef)
}

func TestRemoveAndClear(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.AddItems(item("a"), item("b"), item("c"))

	assert.True(t, s.RemoveItem("b"))
	assert.False(t, s.RemoveItem("missing"))
	assert.Equal(t, []string{"a", "c"}, ids(s.Items()))

	s.Clear()
	assert.Zero(t, s.Len())
}

func TestUndoRedo_NoopWhenNotPossible(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.AddItems(item("a"))

	assert.False(t, s.CanUndo())
	assert.False(t, s.CanRedo())
	assert.False(t, s.Undo())
	assert.False(t, s.Redo())
	assert.Equal(t, []string{"a"}, ids(s.Items()))
}

func TestUndoRedo_RoundTrip(t *testing.T) {
	for n := 1; n <= 6; n++ {
		t.Run(fmt.Sprintf("%d mutations", n), func(t *testing.T) {
			s := New(model.DefaultOptions(), 0)

			for i := 0; i < n; i++ {
				s.Snapshot()
				if i%3 == 2 {
					s.RemoveItem(fmt.Sprintf("item-%d", i-1))
				} else {
					s.AddItems(item(fmt.Sprintf("item-%d", i)))
				}
			}
			final := s.Items()

			for i := 0; i < n; i++ {
				require.True(t, s.Undo())
			}
			assert.False(t, s.CanUndo())
			assert.Empty(t, s.Items())

			for i := 0; i < n; i++ {
				require.True(t, s.Redo())
			}
			assert.False(t, s.CanRedo())
			assert.Equal(t, final, s.Items())
		})
	}
}

func TestUndoThenRedoRestoresLiveList(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.Snapshot()
	s.AddItems(item("a"), item("b"))
	before := s.Items()

	require.True(t, s.Undo())
	require.True(t, s.Redo())

	assert.Equal(t, before, s.Items())
}

func TestUndoRedo_KeepsResultsWrittenAfterRedo(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.Snapshot()
	s.AddItems(item("a"))
	s.Snapshot()
	s.AddItems(item("b"))

	require.True(t, s.Undo())
	require.True(t, s.Redo())

	s.AddItems(item("b").Start().Complete(model.Artifact{Ref: "results/b.jpg", Size: 1}))
	before := s.Items()

	require.True(t, s.Undo())
	assert.Equal(t, []string{"a"}, ids(s.Items()))
	require.True(t, s.Redo())

	items := s.Items()
	assert.Equal(t, before, items)
	assert.Equal(t, model.StateCompleted, items[1].State)
	assert.Equal(t, "results/b.jpg", items[1].ResultRef)
}

func TestSnapshot_TruncatesRedo(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.Snapshot()
	s.AddItems(item("a"))
	s.Snapshot()
	s.AddItems(item("b"))

	require.True(t, s.Undo())
	assert.True(t, s.CanRedo())

	s.Snapshot()
	s.AddItems(item("c"))

	assert.False(t, s.CanRedo())
	assert.Equal(t, []string{"a", "c"}, ids(s.Items()))

	require.True(t, s.Undo())
	assert.Equal(t, []string{"a"}, ids(s.Items()))
	require.True(t, s.Undo())
	assert.Empty(t, s.Items())
}

func TestUndo_DoesNotMutateSnapshots(t *testing.T) {
	s := New(model.DefaultOptions(), 0)
	s.Snapshot()
	s.AddItems(item("a"))

	require.True(t, s.Undo())
	require.True(t, s.Redo())

	// Lists handed out by Items are copies.
	out := s.Items()
	out[0].State = model.StateError
	got, ok := s.Item("a")
	require.True(t, ok)
	assert.Equal(t, model.StatePending, got.State)

	// An in-place change after Redo leaves the older snapshot alone.
	s.AddItems(item("a").Fail("boom"))
	require.True(t, s.Undo())
	assert.Empty(t, s.Items())

	require.True(t, s.Redo())
	got, ok = s.Item("a")
	require.True(t, ok)
	assert.Equal(t, model.StateError, got.State)
}

func TestHistoryIsBounded(t *testing.T) {
	s := New(model.DefaultOptions(), 3)

	for i := 0; i < 10; i++ {
		s.Snapshot()
		s.AddItems(item(fmt.Sprintf("i%d", i)))
	}

	undos := 0
	for s.Undo() {
		undos++
	}

	assert.Equal(t, 3, undos)
	assert.Equal(t, []string{"i0", "i1", "i2", "i3", "i4", "i5", "i6"}, ids(s.Items()))
}

func TestSubscribe(t *testing.T) {
	s := New(model.DefaultOptions(), 0)

	var kinds []EventKind
	var lastLen int
	unsubscribe := s.Subscribe(func(ev Event) {
		kinds = append(kinds, ev.Kind)
		lastLen = len(ev.Items)
	})

	s.Snapshot()
	s.AddItems(item("a"), item("b"))
	s.Undo()
	s.Redo()
	s.SetOptions(model.DefaultOptions())

	assert.Equal(t, []EventKind{EventSnapshot, EventAdded, EventUndone, EventRedone, EventOptions}, kinds)
	assert.Equal(t, 2, lastLen)

	unsubscribe()
	s.Clear()
	assert.Len(t, kinds, 5)
}
