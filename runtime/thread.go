package runtime

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/errors"
)

// Thread is the attachment of one OS thread to the runtime. It must be closed
// on the thread that created it.
type Thread struct {
	noCopy      noCopy
	rt          *Runtime
	native      bfbridge.Handle
	ownerThread int
	sessions    atomic.Int32
	closed      atomic.Bool
}

// Attach attaches the calling OS thread to rt. Nested attachments on the same
// thread share one native attachment; the native detach happens when the last
// of them is closed.
//
// With the OS identity the calling goroutine is locked to its OS thread until
// Close. Where the platform offers no per-thread ID, a nested Attach fails
// with KindUnsupported instead of sharing a native attachment.
func Attach(rt *Runtime) (*Thread, error) {
	if rt == nil {
		return nil, errors.InvalidInput(errors.PhaseAttach, "runtime is nil")
	}
	if err := rt.checkProcess("runtime"); err != nil {
		return nil, err
	}

	id := rt.identity
	pin(id)
	tid := id.ThreadID()

	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		unpin(id)
		return nil, errors.UseAfterClose(errors.PhaseAttach, "runtime")
	}
	rt.live++
	rt.mu.Unlock()

	k := rt.key(tid)
	n := rt.registry.Change(k, +1)
	if n > 1 && !exactThreadIDs(id) {
		rt.abortAttach(k, id)
		return nil, errors.Unsupported(errors.PhaseAttach,
			"nested attachment needs per-thread IDs, which this platform does not provide")
	}
	handle, err := rt.nativeThread(tid, n)
	if err != nil {
		rt.abortAttach(k, id)
		rt.log.Warn("thread attach failed", zap.Int("tid", tid), zap.Error(err))
		return nil, err
	}
	if n == 1 {
		rt.registry.Commit(k)
	}

	rt.log.Debug("thread attached", zap.Int("tid", tid), zap.Int("count", n))
	return &Thread{
		rt:          rt,
		native:      handle,
		ownerThread: tid,
	}, nil
}

// abortAttach undoes the registry and bookkeeping changes of a failed Attach.
func (r *Runtime) abortAttach(k attach.Key, id Identity) {
	r.registry.Change(k, -1)
	r.mu.Lock()
	r.live--
	r.mu.Unlock()
	unpin(id)
}

func (r *Runtime) key(tid int) attach.Key {
	return attach.Key{Scope: r.scope, ThreadID: tid}
}

// nativeThread returns the native attachment for tid, creating it when the
// registry count just went from zero to one.
func (r *Runtime) nativeThread(tid, count int) (bfbridge.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if count > 1 {
		h, ok := r.threads[tid]
		if !ok {
			return 0, errors.New(errors.PhaseAttach, errors.KindMisuse).
				Detail("thread %d counted %d attachments but has no native attachment", tid, count).
				Build()
		}
		return h, nil
	}

	h, desc := r.native.MakeThread(r.vm)
	if err := translate(desc, errors.PhaseAttach, errors.KindNativeAttach, "make_thread"); err != nil {
		return 0, err
	}
	r.threads[tid] = h
	return h, nil
}

// Close releases this attachment. The native detach happens only when no
// other Thread on the same OS thread remains open.
func (t *Thread) Close() error {
	if err := t.checkOwner(errors.PhaseAttach, "thread"); err != nil {
		return err
	}
	if t.closed.Load() {
		return errors.UseAfterClose(errors.PhaseAttach, "thread")
	}
	if n := t.sessions.Load(); n > 0 {
		return errors.New(errors.PhaseAttach, errors.KindMisuse).
			Detail("%d sessions still open on thread %d", n, t.ownerThread).
			Build()
	}
	t.closed.Store(true)

	rt := t.rt
	n := rt.registry.Change(rt.key(t.ownerThread), -1)
	if n == 0 {
		rt.mu.Lock()
		h := rt.threads[t.ownerThread]
		delete(rt.threads, t.ownerThread)
		rt.mu.Unlock()
		rt.native.FreeThread(h)
	}

	rt.mu.Lock()
	rt.live--
	rt.mu.Unlock()
	unpin(rt.identity)

	rt.log.Debug("thread released", zap.Int("tid", t.ownerThread), zap.Int("count", n))
	return nil
}

// ThreadID returns the OS thread this handle belongs to.
func (t *Thread) ThreadID() int {
	return t.ownerThread
}

// Runtime returns the runtime the thread is attached to.
func (t *Thread) Runtime() *Runtime {
	return t.rt
}

// checkOwner verifies the caller is in the owning process and on the owning
// thread.
func (t *Thread) checkOwner(phase errors.Phase, what string) error {
	rt := t.rt
	if err := rt.checkProcess(what); err != nil {
		return err
	}
	if tid := rt.identity.ThreadID(); tid != t.ownerThread {
		return errors.WrongThread(phase, what, t.ownerThread, tid)
	}
	return nil
}
