package runtime

import (
	goruntime "runtime"
)

// Identity reports the process and OS thread the caller runs on. Handles
// record both at creation and compare them on every use.
type Identity interface {
	PID() int
	ThreadID() int
}

// pinner is implemented by identities that need the calling goroutine to
// stay on its OS thread while a Thread is attached.
type pinner interface {
	Pin()
	Unpin()
}

// approximator is implemented by identities whose ThreadID may report the
// same value on different OS threads.
type approximator interface {
	ApproximateThreadID() bool
}

func exactThreadIDs(id Identity) bool {
	a, ok := id.(approximator)
	return !ok || !a.ApproximateThreadID()
}

// OSIdentity returns the identity of the real process and OS thread.
func OSIdentity() Identity {
	return osIdentity{}
}

type osIdentity struct{}

func (osIdentity) PID() int      { return getpid() }
func (osIdentity) ThreadID() int { return gettid() }

func (osIdentity) ApproximateThreadID() bool { return !threadIDsExact }

func (osIdentity) Pin()   { goruntime.LockOSThread() }
func (osIdentity) Unpin() { goruntime.UnlockOSThread() }

func pin(id Identity) {
	if p, ok := id.(pinner); ok {
		p.Pin()
	}
}

func unpin(id Identity) {
	if p, ok := id.(pinner); ok {
		p.Unpin()
	}
}
