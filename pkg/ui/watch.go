package ui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/macropower/relay/pkg/command"
	"github.com/macropower/relay/pkg/notify"
	"github.com/macropower/relay/pkg/viewmodel"
)

// changedMsg tells the model that view-model state changed.
type changedMsg struct{}

// watcher forwards view-model notifications to a program as [changedMsg].
// At most one message is in flight at a time.
type watcher struct {
	vm       *viewmodel.Main
	send     func(tea.Msg)
	pending  atomic.Bool
	unsubs   []func()
	commands []func()
	mu       sync.Mutex
}

func newWatcher(vm *viewmodel.Main) *watcher {
	return &watcher{vm: vm}
}

// start subscribes to the view-model and sends messages with send.
func (w *watcher) start(send func(tea.Msg)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.send = send

	w.unsubs = append(w.unsubs,
		subscribe(w.vm.Notifier, w.notify),
		subscribe(w.vm.Items.Notifier, w.notify),
		subscribe(w.vm.Operations().Notifier, w.notify),
		subscribe(w.vm.Registry().Notifier, func(notify.PropertyChanged) {
			w.watchCommands()
			w.notify(notify.PropertyChanged{})
		}),
	)

	w.watchCommandsLocked()
}

// stop removes every subscription.
func (w *watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, fn := range append(w.unsubs, w.commands...) {
		fn()
	}

	w.unsubs = nil
	w.commands = nil
	w.send = nil
}

// ack is called by the model once it handled a [changedMsg].
func (w *watcher) ack() {
	w.pending.Store(false)
}

func (w *watcher) notify(notify.PropertyChanged) {
	w.mu.Lock()
	send := w.send
	w.mu.Unlock()

	if send == nil || !w.pending.CompareAndSwap(false, true) {
		return
	}

	// Send blocks until the program reads the message, so it must not hold
	// up the publisher.
	go send(changedMsg{})
}

func (w *watcher) watchCommands() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.send == nil {
		return
	}

	w.watchCommandsLocked()
}

func (w *watcher) watchCommandsLocked() {
	for _, fn := range w.commands {
		fn()
	}

	w.commands = nil

	for _, e := range w.vm.Registry().List() {
		cmd := e.Command

		id := cmd.SubscribeCanRunChanged(func(command.CanRunChanged) {
			w.notify(notify.PropertyChanged{})
		})
		w.commands = append(w.commands, func() { cmd.UnsubscribeCanRunChanged(id) })

		if ac := e.Async(); ac != nil {
			w.commands = append(w.commands, subscribe(ac, w.notify))
		}
	}
}

type subscriber interface {
	Subscribe(fn func(notify.PropertyChanged)) notify.Subscription
	Unsubscribe(id notify.Subscription)
}

func subscribe(s subscriber, fn func(notify.PropertyChanged)) func() {
	id := s.Subscribe(fn)

	return func() { s.Unsubscribe(id) }
}
