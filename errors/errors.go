package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the handle lifecycle the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // configuration validation
	PhaseInit     Phase = "init"     // runtime creation
	PhaseAttach   Phase = "attach"   // thread attach/detach
	PhaseSession  Phase = "session"  // session creation/teardown
	PhaseDecode   Phase = "decode"   // calls through an open session
	PhaseRegistry Phase = "registry" // attachment reference counting
	PhaseBackend  Phase = "backend"  // native backend internals
)

// Kind categorizes the error
type Kind string

const (
	KindConfiguration  Kind = "configuration"
	KindNativeInit     Kind = "native_init"
	KindNativeAttach   Kind = "native_attach"
	KindNativeSession  Kind = "native_session"
	KindCrossProcess   Kind = "cross_process"
	KindThreadAffinity Kind = "thread_affinity"
	KindMisuse         Kind = "misuse"
	KindDecode         Kind = "decode"
	KindNotOpen        Kind = "not_open"
	KindInvalidInput   Kind = "invalid_input"
	KindUnsupported    Kind = "unsupported"
)

// Kind-only sentinels for errors.Is. They match an *Error of the same Kind
// in any Phase.
var (
	Configuration  = &Error{Kind: KindConfiguration}
	NativeInit     = &Error{Kind: KindNativeInit}
	NativeAttach   = &Error{Kind: KindNativeAttach}
	NativeSession  = &Error{Kind: KindNativeSession}
	CrossProcess   = &Error{Kind: KindCrossProcess}
	ThreadAffinity = &Error{Kind: KindThreadAffinity}
	Misuse         = &Error{Kind: KindMisuse}
	Decode         = &Error{Kind: KindDecode}
	NotOpen        = &Error{Kind: KindNotOpen}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string // native entry point or handle operation, e.g. "bf_open"
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
}

// Fatal reports whether the error signals a programming defect in the host
// rather than a recoverable condition.
func (e *Error) Fatal() bool {
	return e.Kind == KindMisuse
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the failing operation
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// MissingConfig creates a configuration error for a required setting
func MissingConfig(setting string) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindConfiguration,
		Detail: fmt.Sprintf("%s is required", setting),
	}
}

// Native creates an error from a native error description
func Native(phase Phase, kind Kind, op, description string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Op:     op,
		Detail: description,
	}
}

// CrossProcessUse creates an error for a handle used outside its creating process
func CrossProcessUse(what string, ownerPID, pid int) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindCrossProcess,
		Detail: fmt.Sprintf("%s was created in process %d, used in process %d", what, ownerPID, pid),
		Value:  ownerPID,
	}
}

// WrongThread creates an error for a handle used off its owning thread
func WrongThread(phase Phase, what string, ownerTID, tid int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindThreadAffinity,
		Detail: fmt.Sprintf("%s belongs to thread %d, used from thread %d", what, ownerTID, tid),
		Value:  ownerTID,
	}
}

// UseAfterClose creates a misuse error for an operation on a closed handle
func UseAfterClose(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMisuse,
		Detail: fmt.Sprintf("%s already closed", what),
	}
}

// Underflow creates the misuse error raised when a reference count drops below zero
func Underflow(threadID, count int) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindMisuse,
		Detail: fmt.Sprintf("attachment count for thread %d dropped to %d (double release)", threadID, count),
		Value:  threadID,
	}
}

// DecodeFailed creates a decode error for a failed native call
func DecodeFailed(op, message string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindDecode,
		Op:     op,
		Detail: message,
	}
}

// NotOpened creates the error returned when a call needs an open file
func NotOpened(op string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindNotOpen,
		Op:     op,
		Detail: "no file is open in this session",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
