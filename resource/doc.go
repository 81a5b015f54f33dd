// Package resource provides the handle table used by the pure-Go native
// backends.
//
// The C shim hands out pointers to structs; backends that run in-process
// (native/synthetic, native/wasm) hand out table handles instead so the
// runtime package sees the same opaque bfbridge.Handle either way.
//
//	table := resource.NewTable()
//
//	// Insert a value, get a handle
//	h := table.Insert(resource.TypeVM, vm)
//
//	// Type-checked retrieval
//	v, ok := table.GetTyped(h, resource.TypeVM)     // ok
//	v, ok := table.GetTyped(h, resource.TypeThread) // !ok
//
//	// Remove and get value
//	v, ok := table.Remove(h)
//
// Handles are never reused, so a stale handle kept after Remove cannot alias
// a newer resource; lookups on it simply fail.
//
// # Observers
//
//	table.Subscribe(observer) // receives EventCreated / EventDropped
//
// Values implementing Dropper have Drop called when removed or when the
// table is closed.
package resource
