package batch

import (
	"sync"

	"github.com/aliskhannn/imgbatch/internal/model"
)

// DefaultHistoryLimit is the number of snapshots kept when no limit is configured.
const DefaultHistoryLimit = 20

// EventKind names the mutation that produced an Event.
type EventKind string

const (
	EventAdded    EventKind = "added"
	EventRemoved  EventKind = "removed"
	EventCleared  EventKind = "cleared"
	EventUndone   EventKind = "undone"
	EventRedone   EventKind = "redone"
	EventOptions  EventKind = "options"
	EventSnapshot EventKind = "snapshot"
)

// Event is delivered to subscribers after every mutation.
type Event struct {
	Kind  EventKind
	Items []model.Item
}

// Store holds one session's working set of items, the active options and
// the undo/redo history.
//
// History is an ordered list of immutable snapshots plus a cursor. Snapshot
// drops everything after the cursor and appends a copy of the live list;
// Undo and Redo move the cursor and replace the live list with a copy of the
// snapshot it lands on.
type Store struct {
	mu      sync.RWMutex
	items   []model.Item
	options model.Options

	history [][]model.Item
	cursor  int
	limit   int

	subs   map[int]func(Event)
	nextID int
}

// New creates an empty Store keeping at most limit snapshots.
func New(options model.Options, limit int) *Store {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	return &Store{
		options: options,
		limit:   limit,
		subs:    make(map[int]func(Event)),
	}
}

// Subscribe registers fn for change events and returns a function removing it.
// fn runs synchronously after the store lock is released.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Items returns a copy of the live item list.
func (s *Store) Items() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.items)
}

// Item returns the live item with the given id.
func (s *Store) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i], true
	}

	return model.Item{}, false
}

// Len returns the number of live items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.items)
}

// Options returns the active processing options.
func (s *Store) Options() model.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.options
}

// SetOptions replaces the active processing options.
func (s *Store) SetOptions(o model.Options) {
	s.mu.Lock()
	s.options = o
	s.mu.Unlock()

	s.notify(EventOptions)
}

// AddItems merges items into the live list: an item whose id already exists
// replaces that entry in place, any other item is appended.
func (s *Store) AddItems(items ...model.Item) {
	if len(items) == 0 {
		return
	}

	s.mu.Lock()
	for _, it := range items {
		if i := indexOf(s.items, it.ID); i >= 0 {
			s.items[i] = it
			continue
		}
		s.items = append(s.items, it)
	}
	s.mu.Unlock()

	s.notify(EventAdded)
}

// RemoveItem drops the item with the given id. It reports whether an item was removed.
func (s *Store) RemoveItem(id string) bool {
	s.mu.Lock()
	i := indexOf(s.items, id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	s.mu.Unlock()

	s.notify(EventRemoved)

	return true
}

// Clear empties the live list. History is kept so the clear can be undone.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()

	s.notify(EventCleared)
}

// Snapshot records the live list so the next mutation can be undone.
// Callers must take it before mutating. Any redo history is discarded.
func (s *Store) Snapshot() {
	s.mu.Lock()
	s.history = append(s.history[:s.cursor], clone(s.items))
	if over := len(s.history) - s.limit; over > 0 {
		s.history = append([][]model.Item(nil), s.history[over:]...)
	}
	s.cursor = len(s.history)
	s.mu.Unlock()

	s.notify(EventSnapshot)
}

// CanUndo reports whether Undo would change anything.
func (s *Store) CanUndo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor > 0
}

// CanRedo reports whether Redo would change anything.
func (s *Store) CanRedo() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cursor+1 < len(s.history)
}

// Undo restores the previous snapshot. It is a no-op when nothing can be undone.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if s.cursor == 0 {
		s.mu.Unlock()
		return false
	}

	// Keep the live list so Redo returns to it. After a Redo the list may have
	// changed without a snapshot (processing results), so refresh that slot.
	if s.cursor == len(s.history) {
		s.history = append(s.history, clone(s.items))
	} else {
		s.history[s.cursor] = clone(s.items)
	}

	s.cursor--
	s.items = clone(s.history[s.cursor])
	s.mu.Unlock()

	s.notify(EventUndone)

	return true
}

// Redo re-applies the snapshot after the cursor. It is a no-op when nothing can be redone.
func (s *Store) Redo() bool {
	s.mu.Lock()
	if s.cursor+1 >= len(s.history) {
		s.mu.Unlock()
		return false
	}

	s.cursor++
	s.items = clone(s.history[s.cursor])
	s.mu.Unlock()

	s.notify(EventRedone)

	return true
}

func (s *Store) notify(kind EventKind) {
	s.mu.RLock()
	if len(s.subs) == 0 {
		s.mu.RUnlock()
		return
	}
	ev := Event{Kind: kind, Items: clone(s.items)}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

func clone(items []model.Item) []model.Item {
	if items == nil {
		return nil
	}
	out := make([]model.Item, len(items))
	copy(out, items)
	return out
}

func indexOf(items []model.Item, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}
