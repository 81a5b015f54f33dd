// Package errors provides structured error types for bfbridge.
//
// Errors are categorized by Phase (where in the handle lifecycle the error
// occurred) and Kind (error category). The Error type carries the failing
// native entry point, a detail message taken from the native error text, and
// an optional cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindDecode).
//		Op("bf_open_bytes").
//		Detail("requested tile too big").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MissingConfig("BFBRIDGE_CLASSPATH")
//	err := errors.WrongThread(errors.PhaseSession, "session", owner, tid)
//
// Kind-only sentinels match across phases:
//
//	if errors.Is(err, bferrors.ThreadAffinity) { ... }
//
// Misuse errors (double close, reference count underflow, use after close)
// signal a defect in the host program and report Fatal() == true.
package errors
