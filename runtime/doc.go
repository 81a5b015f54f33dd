// Package runtime manages the embedded decoder runtime and the handles
// derived from it.
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.ConfigFromEnv(), runtime.WithNative(backend))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	th, err := runtime.Attach(rt)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer th.Close()
//
//	s, err := runtime.NewSession(th)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Open("/slides/a.svs"); err != nil {
//	    log.Fatal(err)
//	}
//	tile, err := s.OpenBytes(0, 0, 0, 512, 512)
//
// # Handle Hierarchy
//
//	Runtime  - one per process, never re-created after Close
//	Thread   - attachment of one OS thread, reference counted per thread
//	Session  - decoder instance with its own communication buffer
//
// A Thread and every Session created from it must be used and closed on the
// OS thread that created the Thread. Attach locks the calling goroutine to
// its OS thread until Close. Using a handle from another thread returns a
// KindThreadAffinity error; using one from a forked child returns
// KindCrossProcess. Neither touches native state.
//
// Close order is Session, Thread, Runtime. Closing a Thread with open
// sessions, or a Runtime with attached threads, fails with KindMisuse and
// leaves the handle usable.
//
// # Workers
//
// Goroutines are not OS threads. Code that cannot stay on one thread, such
// as HTTP handlers or a TUI, should go through a Worker or a Pool:
//
//	pool, err := runtime.NewPool(rt, 4)
//	err = pool.Do(ctx, func(s *runtime.Session) error {
//	    return s.Open(path)
//	})
//
// # Buffers
//
// Byte slices returned by a Session point into its communication buffer and
// are overwritten by the next call. Strings are copies.
package runtime
