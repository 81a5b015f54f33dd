package runtime

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/errors"
)

// Hooks receives session lifecycle and call failure notifications.
// Implementations must be safe for concurrent use.
type Hooks interface {
	SessionOpened()
	SessionClosed()
	CallFailed(fn bfbridge.Func)
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithNative selects the native backend. Backends are keyed by value for the
// single-instantiation guard, so they must be comparable (pointer types).
func WithNative(n bfbridge.Native) Option {
	return func(r *Runtime) { r.native = n }
}

// WithRegistry replaces attach.Default() as the attachment registry.
func WithRegistry(reg *attach.Registry) Option {
	return func(r *Runtime) { r.registry = reg }
}

// WithIdentity replaces OSIdentity() as the source of process and thread IDs.
func WithIdentity(id Identity) Option {
	return func(r *Runtime) { r.identity = id }
}

// WithHooks installs lifecycle hooks, typically a metrics collector.
func WithHooks(h Hooks) Option {
	return func(r *Runtime) { r.hooks = h }
}

// WithLogger overrides the package logger for this runtime.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) { r.log = l }
}

// Runtime is the process-global embedded decoder runtime.
type Runtime struct {
	native   bfbridge.Native
	registry *attach.Registry
	identity Identity
	hooks    Hooks
	log      *zap.Logger
	threads  map[int]bfbridge.Handle
	cfg      Config
	vm       bfbridge.Handle
	scope    uint64
	ownerPID int
	live     int
	mu       sync.Mutex
	closed   bool
}

// backend states for the single-instantiation guard
const (
	backendLive = iota + 1
	backendClosed
)

var (
	backendsMu sync.Mutex
	backends   = make(map[bfbridge.Native]int)
	// scopes separates the registry entries of runtimes sharing a registry.
	scopes atomic.Uint64
)

// New starts the embedded runtime. At most one Runtime can ever be created
// per native backend; the runtime cannot be re-created after Close.
func New(ctx context.Context, cfg Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		cfg:     cfg,
		threads: make(map[int]bfbridge.Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = attach.Default()
	}
	if r.identity == nil {
		r.identity = OSIdentity()
	}
	if r.log == nil {
		r.log = Logger()
	}
	if r.hooks == nil {
		r.hooks = nopHooks{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if r.native == nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindConfiguration).
			Detail("no native backend configured").
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindNativeInit, err, "start runtime")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()
	switch backends[r.native] {
	case backendLive:
		return nil, errors.New(errors.PhaseInit, errors.KindMisuse).
			Detail("runtime already created in this process").
			Build()
	case backendClosed:
		return nil, errors.New(errors.PhaseInit, errors.KindMisuse).
			Detail("runtime cannot be re-created after Close").
			Build()
	}

	vm, desc := r.native.MakeVM(cfg.ResourcePath, cfg.CachePath)
	if err := translate(desc, errors.PhaseInit, errors.KindNativeInit, "make_vm"); err != nil {
		r.log.Warn("runtime start failed", zap.Error(err))
		return nil, err
	}
	r.vm = vm
	r.scope = scopes.Add(1)
	r.ownerPID = r.identity.PID()
	backends[r.native] = backendLive

	r.log.Debug("runtime started",
		zap.String("resource_path", cfg.ResourcePath),
		zap.String("cache_path", cfg.CachePath),
		zap.Int("pid", r.ownerPID))
	return r, nil
}

// Close releases the native runtime. Every Thread must be closed first.
func (r *Runtime) Close() error {
	if err := r.checkProcess("runtime"); err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.UseAfterClose(errors.PhaseInit, "runtime")
	}
	if r.live > 0 {
		n := r.live
		r.mu.Unlock()
		return errors.New(errors.PhaseInit, errors.KindMisuse).
			Detail("%d threads still attached", n).
			Build()
	}
	r.closed = true
	r.mu.Unlock()

	r.native.FreeVM(r.vm)

	backendsMu.Lock()
	backends[r.native] = backendClosed
	backendsMu.Unlock()

	r.log.Debug("runtime closed")
	return nil
}

// Config returns the configuration the runtime was started with.
func (r *Runtime) Config() Config {
	return r.cfg
}

// Registry returns the attachment registry used by this runtime.
func (r *Runtime) Registry() *attach.Registry {
	return r.registry
}

// Attached returns the number of open Thread handles.
func (r *Runtime) Attached() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// checkProcess rejects use from a forked child.
func (r *Runtime) checkProcess(what string) error {
	if pid := r.identity.PID(); pid != r.ownerPID {
		return errors.CrossProcessUse(what, r.ownerPID, pid)
	}
	return nil
}

type nopHooks struct{}

func (nopHooks) SessionOpened()           {}
func (nopHooks) SessionClosed()           {}
func (nopHooks) CallFailed(bfbridge.Func) {}
