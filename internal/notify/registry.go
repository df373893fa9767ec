// Package notify delivers sync events to in-process listeners.
//
// A Registry keeps listeners in registration order and calls them
// synchronously from Notify. A listener that fails or panics does not keep the
// remaining listeners from running; every failure is reported back to the
// caller of Notify joined into one error.
package notify

import (
	"errors"
	"fmt"
	"sync"
)

// Kind identifies what happened.
type Kind string

const (
	// KindStatus is sent whenever the sync status changes.
	KindStatus Kind = "status"

	// KindImported is sent after a remote document replaced local data.
	KindImported Kind = "imported"
)

// Event is what listeners receive. Payload is Kind-specific: the sync layer
// sends its Status value for both kinds.
type Event struct {
	Kind    Kind
	Payload any
}

// Listener handles one event.
type Listener func(Event) error

type entry struct {
	id int64
	fn Listener
}

// Registry is safe for concurrent use. The zero value is ready to use.
type Registry struct {
	mu        sync.Mutex
	nextID    int64
	listeners []entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddListener registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (r *Registry) AddListener(fn Listener) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, entry{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.listeners {
		if e.id == id {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Notify calls every listener registered at the time of the call, in
// registration order. Listeners may add or remove listeners (including
// themselves) while being notified; such changes apply to the next Notify.
func (r *Registry) Notify(ev Event) error {
	r.mu.Lock()
	snapshot := make([]entry, len(r.listeners))
	copy(snapshot, r.listeners)
	r.mu.Unlock()

	var errs []error
	for _, e := range snapshot {
		if err := call(e, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func call(e entry, ev Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("listener %d panicked: %v", e.id, p)
		}
	}()
	if err := e.fn(ev); err != nil {
		return fmt.Errorf("listener %d: %w", e.id, err)
	}
	return nil
}
