// Package notify provides property change notification for view-model
// objects.
//
// A [Notifier] is owned by a state object and broadcasts [PropertyChanged]
// events to its subscribers. The owner declares its observable property names
// up front, so [Notifier.NotifyAllProperties] can refresh every property
// without runtime introspection:
//
//	type Model struct {
//		*notify.Notifier
//		text string
//	}
//
//	func NewModel() *Model {
//		m := &Model{}
//		m.Notifier = notify.New(m, "Text")
//		return m
//	}
//
//	func (m *Model) SetText(s string) {
//		notify.SetProperty(m.Notifier, &m.text, s, "Text")
//	}
package notify

import (
	"slices"
)

// PropertyChanged signals that the named property of Source may have changed.
type PropertyChanged struct {
	Source any
	Name   string
}

// Notifier broadcasts [PropertyChanged] events for a single source object.
type Notifier struct {
	source     any
	hub        *Hub[PropertyChanged]
	properties []string
}

// New creates a [Notifier] for source, declaring its observable properties.
func New(source any, properties ...string) *Notifier {
	return &Notifier{
		source:     source,
		hub:        NewHub[PropertyChanged](nil),
		properties: slices.Clone(properties),
	}
}

// SetDispatcher delivers subsequent notifications through d instead of the
// notifying goroutine. A nil dispatcher restores synchronous delivery.
func (n *Notifier) SetDispatcher(d Dispatcher) {
	n.hub.SetDispatcher(d)
}

// Subscribe registers fn to receive property change events.
func (n *Notifier) Subscribe(fn func(PropertyChanged)) Subscription {
	return n.hub.Subscribe(fn)
}

// Unsubscribe removes a subscriber. It is safe to call at any time,
// including from within a notification.
func (n *Notifier) Unsubscribe(id Subscription) {
	n.hub.Unsubscribe(id)
}

// NotifyProperty notifies all current subscribers that the named property
// changed.
func (n *Notifier) NotifyProperty(name string) {
	n.hub.Publish(PropertyChanged{Source: n.source, Name: name})
}

// NotifyAllProperties calls [Notifier.NotifyProperty] once for every declared
// property, regardless of its value.
func (n *Notifier) NotifyAllProperties() {
	for _, name := range n.properties {
		n.NotifyProperty(name)
	}
}

// Properties returns a copy of the declared property names.
func (n *Notifier) Properties() []string {
	return slices.Clone(n.properties)
}

// Source returns the object the notifier reports for.
func (n *Notifier) Source() any {
	return n.source
}

// SetProperty assigns value to *field and notifies name when it changed.
// It reports whether the value changed.
func SetProperty[T comparable](n *Notifier, field *T, value T, name string) bool {
	if *field == value {
		return false
	}

	*field = value
	n.NotifyProperty(name)

	return true
}
