package resource

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("resource table closed")

type entry struct {
	value  any
	typeID TypeID
}

// Table maps handles to values with type information and observer support.
type Table struct {
	entries   map[Handle]entry
	observers []Observer
	next      Handle
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[Handle]entry, 16),
	}
}

// Insert adds a value and returns its handle, or 0 if the table is closed.
func (t *Table) Insert(typeID TypeID, value any) Handle {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0
	}
	t.next++
	h := t.next
	t.entries[h] = entry{value: value, typeID: typeID}
	t.mu.Unlock()

	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		TypeID: typeID,
		Value:  value,
	})
	return h
}

// Get retrieves a value by handle.
func (t *Table) Get(h Handle) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// GetTyped retrieves a value only if it matches the expected type.
func (t *Table) GetTyped(h Handle, typeID TypeID) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[h]
	if !ok || e.typeID != typeID {
		return nil, false
	}
	return e.value, true
}

// Remove drops a resource and returns (value, true) if found.
func (t *Table) Remove(h Handle) (any, bool) {
	t.mu.Lock()
	e, ok := t.entries[h]
	if ok {
		delete(t.entries, h)
	}
	t.mu.Unlock()
	if !ok {
		return nil, false
	}

	if d, ok := e.value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: h,
		TypeID: e.typeID,
		Value:  e.value,
	})
	return e.value, true
}

// Len returns the number of live resources.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// CountType returns the number of live resources of one type.
func (t *Table) CountType(typeID TypeID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.typeID == typeID {
			n++
		}
	}
	return n
}

// Each iterates over live resources until fn returns false.
func (t *Table) Each(fn func(Handle, TypeID, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for h, e := range t.entries {
		if !fn(h, e.typeID, e.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Close drops all resources and stops accepting inserts.
func (t *Table) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.closed = true
	entries := t.entries
	t.entries = make(map[Handle]entry)
	t.mu.Unlock()

	for _, e := range entries {
		if d, ok := e.value.(Dropper); ok {
			d.Drop()
		}
	}
	return nil
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
