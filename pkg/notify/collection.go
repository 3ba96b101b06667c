package notify

import (
	"slices"
	"sync"
)

// Property names raised by a [Collection].
const (
	PropertyCount = "Count"
	PropertyItems = "Items"
)

// CollectionAction describes how a [Collection] changed.
type CollectionAction int

const (
	// ActionAdd indicates items were inserted at Index.
	ActionAdd CollectionAction = iota
	// ActionRemove indicates items were removed from Index.
	ActionRemove
	// ActionReplace indicates the item at Index was replaced.
	ActionReplace
	// ActionReset indicates the collection changed dramatically (e.g. cleared).
	ActionReset
)

func (a CollectionAction) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionReplace:
		return "replace"
	case ActionReset:
		return "reset"
	}

	return "unknown"
}

// CollectionChanged describes a change to a [Collection].
type CollectionChanged[T any] struct {
	Items  []T
	Action CollectionAction
	Index  int
}

// Collection is a list that notifies subscribers when items are added,
// removed, replaced, or when the whole list is reset.
//
// Every mutation raises a [CollectionChanged] event, followed by property
// notifications for [PropertyCount] (when the length changed) and
// [PropertyItems].
type Collection[T comparable] struct {
	*Notifier

	changed *Hub[CollectionChanged[T]]
	items   []T
	mu      sync.RWMutex
}

// NewCollection creates a [Collection] holding a copy of items.
func NewCollection[T comparable](items ...T) *Collection[T] {
	c := &Collection[T]{
		changed: NewHub[CollectionChanged[T]](nil),
		items:   slices.Clone(items),
	}
	c.Notifier = New(c, PropertyCount, PropertyItems)

	return c
}

// SubscribeChanges registers fn to receive [CollectionChanged] events.
func (c *Collection[T]) SubscribeChanges(fn func(CollectionChanged[T])) Subscription {
	return c.changed.Subscribe(fn)
}

// UnsubscribeChanges removes a [CollectionChanged] subscriber.
func (c *Collection[T]) UnsubscribeChanges(id Subscription) {
	c.changed.Unsubscribe(id)
}

// SetDispatcher delivers both collection and property events through d.
func (c *Collection[T]) SetDispatcher(d Dispatcher) {
	c.changed.SetDispatcher(d)
	c.Notifier.SetDispatcher(d)
}

// Len returns the number of items.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// At returns the item at index i and whether it exists.
func (c *Collection[T]) At(i int) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if i < 0 || i >= len(c.items) {
		var zero T
		return zero, false
	}

	return c.items[i], true
}

// Items returns a copy of the items.
func (c *Collection[T]) Items() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.items)
}

// IndexOf returns the index of the first item equal to item, or -1.
func (c *Collection[T]) IndexOf(item T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Index(c.items, item)
}

// Add appends items.
func (c *Collection[T]) Add(items ...T) {
	if len(items) == 0 {
		return
	}

	c.mu.Lock()
	idx := len(c.items)
	c.items = append(c.items, items...)
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionAdd, Index: idx, Items: slices.Clone(items)}, true)
}

// Insert inserts item at index i. It reports false if i is out of range.
func (c *Collection[T]) Insert(i int, item T) bool {
	c.mu.Lock()
	if i < 0 || i > len(c.items) {
		c.mu.Unlock()

		return false
	}

	c.items = slices.Insert(c.items, i, item)
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionAdd, Index: i, Items: []T{item}}, true)

	return true
}

// Remove removes the first occurrence of item and reports whether it was found.
func (c *Collection[T]) Remove(item T) bool {
	c.mu.Lock()
	i := slices.Index(c.items, item)
	if i < 0 {
		c.mu.Unlock()

		return false
	}

	c.items = slices.Delete(c.items, i, i+1)
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionRemove, Index: i, Items: []T{item}}, true)

	return true
}

// RemoveAt removes the item at index i and reports whether it existed.
func (c *Collection[T]) RemoveAt(i int) bool {
	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		c.mu.Unlock()

		return false
	}

	item := c.items[i]
	c.items = slices.Delete(c.items, i, i+1)
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionRemove, Index: i, Items: []T{item}}, true)

	return true
}

// Replace sets the item at index i and reports whether i was in range.
func (c *Collection[T]) Replace(i int, item T) bool {
	c.mu.Lock()
	if i < 0 || i >= len(c.items) {
		c.mu.Unlock()

		return false
	}

	c.items[i] = item
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionReplace, Index: i, Items: []T{item}}, false)

	return true
}

// Clear removes all items.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	hadItems := len(c.items) > 0
	c.items = nil
	c.mu.Unlock()

	c.raise(CollectionChanged[T]{Action: ActionReset}, hadItems)
}

func (c *Collection[T]) raise(evt CollectionChanged[T], countChanged bool) {
	c.changed.Publish(evt)

	if countChanged {
		c.NotifyProperty(PropertyCount)
	}

	c.NotifyProperty(PropertyItems)
}
