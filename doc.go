// Package bfbridge provides safe Go access to an embedded, process-global
// image decoding runtime (Bio-Formats hosted in a JVM, or a WebAssembly build
// of a compatible decoder) through its narrow C-style call surface.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	bfbridge/            Root package with the Native call surface and Func IDs
//	├── runtime/         Runtime → Thread → Session handle hierarchy
//	├── attach/          Process-wide thread attachment reference counts
//	├── native/jni/      cgo JVM binding (build tag bfbridge_jni)
//	├── native/wasm/     Decoder module hosted in wazero
//	├── native/synthetic In-memory backend for tests and demos
//	├── resource/        Handle table used by the pure-Go backends
//	├── pixel/           Pixel types and buffer → image conversion
//	├── metrics/         Prometheus collectors for attachments and sessions
//	├── errors/          Structured error types
//	└── cmd/bfbridge/    Command line and interactive metadata browser
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{ResourcePath: "/opt/bfbridge/jars"},
//	    runtime.WithNative(jni.Default()))
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
//	if err := s.Open("slide.svs"); err != nil {
//	    log.Fatal(err)
//	}
//	tile, err := s.OpenBytes(0, 0, 0, 256, 256)
//
// # Thread Affinity
//
// A Thread and every Session built from it may only be used on the OS thread
// that created them. Attach locks the calling goroutine to its OS thread;
// use runtime.Worker when work arrives from arbitrary goroutines.
package bfbridge
