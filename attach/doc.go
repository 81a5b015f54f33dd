// Package attach keeps the process-wide attachment reference counts that
// decide when an OS thread is really attached to, or detached from, the
// embedded runtime.
//
// Several independent call sites on one thread may each hold a logical
// attachment. The native attach/detach pair must still happen exactly once
// per OS thread and runtime, so every logical attachment goes through Change.
// Key.Scope keeps runtimes that share a registry apart.
//
//	k := attach.Key{Scope: scope, ThreadID: tid}
//	if reg.Change(k, +1) == 1 {
//	    // first holder on this thread: attach natively, then
//	    reg.Commit(k)
//	}
//	...
//	if reg.Change(k, -1) == 0 {
//	    // last holder released: detach natively
//	}
//
// The lock is held only for the map update, never across native calls.
//
// # Observers
//
// Observers see an attachment once it is committed, and its release when the
// count of a committed key drops to zero. An attachment rolled back before
// Commit produces no events.
//
//	cancel := reg.Subscribe(attach.ObserverFunc(func(e attach.Event) {
//	    log.Printf("thread %d %s", e.ThreadID, e.Type)
//	}))
//	defer cancel()
//
// A count below zero means a handle was released twice. Change panics with a
// misuse error in that case; it is a bug in the caller, not a runtime
// condition.
package attach
