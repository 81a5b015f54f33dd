package attach

import (
	"sync"

	"github.com/wippyai/bfbridge/errors"
)

// EventType distinguishes attachment transitions.
type EventType uint8

const (
	EventAttached EventType = iota // first attachment committed
	EventDetached                  // committed count dropped to 0
)

func (t EventType) String() string {
	switch t {
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Key identifies the attachments of one OS thread to one runtime. Scope
// separates runtimes that share a registry.
type Key struct {
	Scope    uint64
	ThreadID int
}

// Event describes a transition for one thread.
type Event struct {
	Scope    uint64
	ThreadID int
	Type     EventType
}

// Observer receives attachment transitions. Observers run on the goroutine
// that called Commit or Change, after the registry lock is released.
type Observer interface {
	OnAttachEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnAttachEvent(e Event) { f(e) }

// Registry maps (scope, OS thread) keys to attachment counts.
type Registry struct {
	counts    map[Key]*entry
	observers []subscription
	nextObs   uint64
	mu        sync.Mutex
	obsMu     sync.RWMutex
}

type entry struct {
	count int
	// committed is set once the native attachment exists.
	committed bool
}

type subscription struct {
	o  Observer
	id uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{counts: make(map[Key]*entry)}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Change adds delta to the count for k and returns the new count.
// It panics with a misuse error if the count would go negative; the entry is
// left unchanged in that case.
//
// A 0→1 change is not announced until Commit. Dropping back to zero announces
// EventDetached only for committed entries, so a rolled-back attachment is
// invisible to observers.
func (r *Registry) Change(k Key, delta int) int {
	r.mu.Lock()
	e := r.counts[k]
	prev := 0
	if e != nil {
		prev = e.count
	}
	next := prev + delta
	if next < 0 {
		r.mu.Unlock()
		panic(errors.Underflow(k.ThreadID, next))
	}
	detached := false
	switch {
	case next == 0:
		detached = e != nil && e.committed
		delete(r.counts, k)
	case e == nil:
		r.counts[k] = &entry{count: next}
	default:
		e.count = next
	}
	r.mu.Unlock()

	if detached {
		r.notify(Event{Scope: k.Scope, ThreadID: k.ThreadID, Type: EventDetached})
	}
	return next
}

// Commit marks the native attachment for k as made and announces
// EventAttached. It is a no-op for absent or already committed keys.
func (r *Registry) Commit(k Key) {
	r.mu.Lock()
	e := r.counts[k]
	if e == nil || e.committed {
		r.mu.Unlock()
		return
	}
	e.committed = true
	r.mu.Unlock()

	r.notify(Event{Scope: k.Scope, ThreadID: k.ThreadID, Type: EventAttached})
}

// Get returns the count for k.
func (r *Registry) Get(k Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e := r.counts[k]; e != nil {
		return e.count
	}
	return 0
}

// Count returns the number of attachments held by threadID across all
// scopes.
func (r *Registry) Count(threadID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, e := range r.counts {
		if k.ThreadID == threadID {
			n += e.count
		}
	}
	return n
}

// Len returns the number of keys with a non-zero count.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counts)
}

// Snapshot returns a copy of all non-zero counts.
func (r *Registry) Snapshot() map[Key]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Key]int, len(r.counts))
	for k, e := range r.counts {
		out[k] = e.count
	}
	return out
}
// Subscribe adds an observer for transitions and returns a function that
// removes it.
func (r *Registry) Subscribe(o Observer) (cancel func()) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, subscription{id: id, o: o})
	return func() { r.unsubscribe(id) }
}

func (r *Registry) unsubscribe(id uint64) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, sub := range r.observers {
		if sub.id == id {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, sub := range r.observers {
		sub.o.OnAttachEvent(e)
	}
}
