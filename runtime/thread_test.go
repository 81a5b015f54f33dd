package runtime

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/errors"
	"github.com/wippyai/bfbridge/native/synthetic"
)

func TestAttach_NestedSharesNativeAttachment(t *testing.T) {
	id := newFakeIdentity()
	f := newFixture(t, WithIdentity(id))
	defer f.rt.Close()

	var threads []*Thread
	for i := 0; i < 3; i++ {
		th, err := Attach(f.rt)
		if err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
		threads = append(threads, th)
	}
	if n := f.reg.Count(1); n != 3 {
		t.Fatalf("registry count = %d, want 3", n)
	}
	if n := f.backend.Counters().MakeThread; n != 1 {
		t.Fatalf("native attach called %d times, want 1", n)
	}

	for i, th := range threads[:2] {
		if err := th.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
		if n := f.backend.Counters().FreeThread; n != 0 {
			t.Fatalf("native detach after %d of 3 closes", i+1)
		}
	}

	if err := threads[2].Close(); err != nil {
		t.Fatalf("close last: %v", err)
	}
	if n := f.backend.Counters().FreeThread; n != 1 {
		t.Errorf("native detach called %d times, want 1", n)
	}
	if f.reg.Len() != 0 {
		t.Errorf("registry not empty: %v", f.reg.Snapshot())
	}

	// a fresh attachment after full release attaches natively again
	th, err := Attach(f.rt)
	if err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if n := f.backend.Counters().MakeThread; n != 2 {
		t.Errorf("native attach called %d times, want 2", n)
	}
	if err := th.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestAttach_CrossProcess(t *testing.T) {
	id := newFakeIdentity()
	f := newFixture(t, WithIdentity(id))
	defer f.rt.Close()

	th, err := Attach(f.rt)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	id.pid.Store(4242)
	_, err = Attach(f.rt)
	assertKind(t, err, errors.CrossProcess)
	assertKind(t, th.Close(), errors.CrossProcess)

	if n := f.reg.Count(1); n != 1 {
		t.Errorf("registry count = %d after cross-process use, want 1", n)
	}
	if c := f.backend.Counters(); c.MakeThread != 1 || c.FreeThread != 0 {
		t.Errorf("native state touched: %+v", c)
	}

	id.pid.Store(100)
	if err := th.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestThread_CloseAffinity(t *testing.T) {
	id := newFakeIdentity()
	f := newFixture(t, WithIdentity(id))
	defer f.rt.Close()

	th, err := Attach(f.rt)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if th.ThreadID() != 1 || th.Runtime() != f.rt {
		t.Errorf("ThreadID() = %d", th.ThreadID())
	}

	id.tid.Store(2)
	err = th.Close()
	assertKind(t, err, errors.ThreadAffinity)
	if n := f.reg.Count(1); n != 1 {
		t.Errorf("registry count = %d after failed close", n)
	}

	id.tid.Store(1)
	if err := th.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	assertKind(t, th.Close(), errors.Misuse)
	if n := f.backend.Counters().FreeThread; n != 1 {
		t.Errorf("native detach called %d times, want 1", n)
	}
}

func TestAttach_NativeFailure(t *testing.T) {
	id := newFakeIdentity()
	f := newFixture(t, WithIdentity(id))
	defer f.rt.Close()

	var events []attach.Event
	cancel := f.reg.Subscribe(attach.ObserverFunc(func(e attach.Event) {
		events = append(events, e)
	}))
	defer cancel()

	f.backend.FailThread("AttachCurrentThread failed")
	_, err := Attach(f.rt)
	assertKind(t, err, errors.NativeAttach)
	if len(events) != 0 {
		t.Errorf("failed attach was announced: %v", events)
	}

	if f.reg.Len() != 0 {
		t.Errorf("registry not rolled back: %v", f.reg.Snapshot())
	}
	if f.rt.Attached() != 0 {
		t.Errorf("Attached() = %d", f.rt.Attached())
	}
	if n := f.backend.Counters().DescriptorsFreed; n != 1 {
		t.Errorf("descriptor freed %d times", n)
	}
}

func TestAttach_NilRuntime(t *testing.T) {
	_, err := Attach(nil)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAttach_ObserversSeeTransitions(t *testing.T) {
	id := newFakeIdentity()
	f := newFixture(t, WithIdentity(id))
	defer f.rt.Close()

	var events []attach.Event
	cancel := f.reg.Subscribe(attach.ObserverFunc(func(e attach.Event) {
		events = append(events, e)
	}))
	defer cancel()

	a, _ := Attach(f.rt)
	b, _ := Attach(f.rt)
	b.Close()
	a.Close()

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2: %v", len(events), events)
	}
	if events[0].Type != attach.EventAttached || events[1].Type != attach.EventDetached {
		t.Errorf("events = %v", events)
	}
}

// TestAttach_ConcurrentOSThreads runs real goroutines, each pinned to its own
// OS thread, through nested attach/detach cycles.
func TestAttach_ConcurrentOSThreads(t *testing.T) {
	f := newFixture(t)
	defer f.rt.Close()

	var attached, detached atomic.Int32
	cancel := f.reg.Subscribe(attach.ObserverFunc(func(e attach.Event) {
		if e.Type == attach.EventAttached {
			attached.Add(1)
		} else {
			detached.Add(1)
		}
	}))
	defer cancel()

	const goroutines, rounds = 8, 50
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				outer, err := Attach(f.rt)
				if err != nil {
					t.Errorf("attach: %v", err)
					return
				}
				inner, err := Attach(f.rt)
				if err != nil {
					t.Errorf("nested attach: %v", err)
					return
				}
				if inner.ThreadID() != outer.ThreadID() {
					t.Errorf("nested attach moved threads: %d != %d", inner.ThreadID(), outer.ThreadID())
				}
				s, err := NewSession(inner, WithBufferSize(64))
				if err != nil {
					t.Errorf("session: %v", err)
					return
				}
				if err := s.Close(); err != nil {
					t.Errorf("close session: %v", err)
				}
				if err := inner.Close(); err != nil {
					t.Errorf("close inner: %v", err)
				}
				if err := outer.Close(); err != nil {
					t.Errorf("close outer: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if f.reg.Len() != 0 {
		t.Errorf("registry not empty: %v", f.reg.Snapshot())
	}
	if f.rt.Attached() != 0 {
		t.Errorf("Attached() = %d", f.rt.Attached())
	}
	c := f.backend.Counters()
	if c.MakeThread != c.FreeThread {
		t.Errorf("native attach %d != detach %d", c.MakeThread, c.FreeThread)
	}
	if int(attached.Load()) != c.MakeThread || int(detached.Load()) != c.FreeThread {
		t.Errorf("events attached=%d detached=%d, native %d/%d",
			attached.Load(), detached.Load(), c.MakeThread, c.FreeThread)
	}
	if c.MakeInstance != goroutines*rounds || c.FreeInstance != c.MakeInstance {
		t.Errorf("instances made %d freed %d", c.MakeInstance, c.FreeInstance)
	}
}

func TestAttach_RuntimesShareRegistry(t *testing.T) {
	id := newFakeIdentity()
	reg := attach.NewRegistry()
	ba, bb := synthetic.New(), synthetic.New()
	a, err := New(context.Background(), Config{ResourcePath: "/a"}, WithNative(ba), WithRegistry(reg), WithIdentity(id))
	if err != nil {
		t.Fatalf("runtime a: %v", err)
	}
	b, err := New(context.Background(), Config{ResourcePath: "/b"}, WithNative(bb), WithRegistry(reg), WithIdentity(id))
	if err != nil {
		t.Fatalf("runtime b: %v", err)
	}

	ta, err := Attach(a)
	if err != nil {
		t.Fatalf("attach a: %v", err)
	}
	tb, err := Attach(b)
	if err != nil {
		t.Fatalf("attach b on the same thread: %v", err)
	}
	if n := reg.Count(1); n != 2 {
		t.Errorf("Count(1) = %d, want 2", n)
	}
	if n := reg.Len(); n != 2 {
		t.Errorf("Len() = %d, want one entry per runtime", n)
	}
	if ba.Counters().MakeThread != 1 || bb.Counters().MakeThread != 1 {
		t.Errorf("native attach a=%d b=%d, want 1 each", ba.Counters().MakeThread, bb.Counters().MakeThread)
	}

	if err := tb.Close(); err != nil {
		t.Fatalf("close b: %v", err)
	}
	if bb.Counters().FreeThread != 1 || ba.Counters().FreeThread != 0 {
		t.Errorf("detach a=%d b=%d after closing b", ba.Counters().FreeThread, bb.Counters().FreeThread)
	}
	if err := ta.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if ba.Counters().FreeThread != 1 || reg.Len() != 0 {
		t.Errorf("detach a=%d, registry %v", ba.Counters().FreeThread, reg.Snapshot())
	}
	if err := a.Close(); err != nil {
		t.Errorf("close runtime a: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("close runtime b: %v", err)
	}
}

// coarseIdentity reports the same thread ID for every OS thread.
type coarseIdentity struct {
	*fakeIdentity
}

func (coarseIdentity) ApproximateThreadID() bool { return true }

func TestAttach_CoarseThreadIDs(t *testing.T) {
	f := newFixture(t, WithIdentity(coarseIdentity{newFakeIdentity()}))
	defer f.rt.Close()

	th, err := Attach(f.rt)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	_, err = Attach(f.rt)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindUnsupported {
		t.Fatalf("second attach = %v, want unsupported", err)
	}
	if n := f.reg.Count(1); n != 1 {
		t.Errorf("registry count = %d after refused attach", n)
	}
	if f.rt.Attached() != 1 {
		t.Errorf("Attached() = %d", f.rt.Attached())
	}
	if n := f.backend.Counters().MakeThread; n != 1 {
		t.Errorf("native attach called %d times", n)
	}
	if err := th.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.backend.Counters().FreeThread != 1 {
		t.Error("native attachment not released")
	}
}
