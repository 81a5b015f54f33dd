package wasm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/resource"
)

// ModuleFile is the decoder module looked up when the resource path is a
// directory.
const ModuleFile = "bfbridge.wasm"

// Config holds backend settings.
type Config struct {
	// Logger receives compile and instantiation events. Nil disables logging.
	Logger *zap.Logger

	// Mounts maps guest paths to host directories, mounted read-only.
	// Nil mounts the host root at "/".
	Mounts map[string]string

	// MemoryLimitPages caps guest memory per instance in 64KiB pages.
	// 0 keeps the wazero default.
	MemoryLimitPages uint32
}

// Backend runs a decoder compiled to WebAssembly under wazero.
//
// The guest has no notion of thread attachment: thread handles only tie
// instances to the VM. Each instance is a separate module instantiation with
// its own linear memory, so sessions never share decoder state.
type Backend struct {
	table  *resource.Table
	log    *zap.Logger
	cfg    Config
	mu     sync.Mutex
	vmUsed bool
}

var _ bfbridge.Native = (*Backend)(nil)

// New creates a backend. cfg may be nil.
func New(cfg *Config) *Backend {
	b := &Backend{table: resource.NewTable()}
	if cfg != nil {
		b.cfg = *cfg
	}
	b.log = b.cfg.Logger
	if b.log == nil {
		b.log = zap.NewNop()
	}
	return b
}

// Subscribe reports handle creation and release to o.
func (b *Backend) Subscribe(o resource.Observer) {
	b.table.Subscribe(o)
}

type vm struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	modCfg   wazero.ModuleConfig
}

func (v *vm) Drop() {
	ctx := context.Background()
	_ = v.runtime.Close(ctx)
	if v.cache != nil {
		_ = v.cache.Close(ctx)
	}
}

// MakeVM compiles the decoder module. cachePath, when set, holds wazero's
// compilation cache so later processes skip compilation.
func (b *Backend) MakeVM(resourcePath, cachePath string) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.vmUsed {
		return 0, descriptorf("a VM was already created by this backend")
	}

	path := modulePath(resourcePath)
	code, err := os.ReadFile(path)
	if err != nil {
		return 0, descriptorf("read decoder module: %v", err)
	}

	ctx := context.Background()
	rcfg := wazero.NewRuntimeConfig()
	if b.cfg.MemoryLimitPages > 0 {
		rcfg = rcfg.WithMemoryLimitPages(b.cfg.MemoryLimitPages)
	}
	var cache wazero.CompilationCache
	if cachePath != "" {
		cache, err = wazero.NewCompilationCacheWithDir(cachePath)
		if err != nil {
			return 0, descriptorf("open compilation cache %s: %v", cachePath, err)
		}
		rcfg = rcfg.WithCompilationCache(cache)
	}

	v := &vm{runtime: wazero.NewRuntimeWithConfig(ctx, rcfg), cache: cache}
	v.compiled, err = v.runtime.CompileModule(ctx, code)
	if err != nil {
		v.Drop()
		return 0, descriptorf("compile %s: %v", path, err)
	}
	if err := checkExports(v.compiled); err != nil {
		v.Drop()
		return 0, descriptorf("%s: %v", path, err)
	}
	if importsWASI(v.compiled) {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, v.runtime); err != nil {
			v.Drop()
			return 0, descriptorf("instantiate WASI: %v", err)
		}
	}
	v.modCfg = wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_initialize").
		WithSysWalltime().
		WithSysNanotime().
		WithFSConfig(fsConfig(b.cfg.Mounts))

	h := b.table.Insert(resource.TypeVM, v)
	if h == 0 {
		v.Drop()
		return 0, descriptorf("backend is closed")
	}
	b.vmUsed = true
	b.log.Info("decoder module compiled",
		zap.String("path", path),
		zap.Bool("cached", cache != nil))
	return h, nil
}

func (b *Backend) FreeVM(h bfbridge.Handle) {
	if _, ok := b.table.GetTyped(h, resource.TypeVM); !ok {
		return
	}
	b.table.Remove(h)
}

func (b *Backend) MakeThread(h bfbridge.Handle) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	if _, ok := b.table.GetTyped(h, resource.TypeVM); !ok {
		return 0, descriptorf("invalid VM handle %d", h)
	}
	return b.table.Insert(resource.TypeThread, h), nil
}

func (b *Backend) FreeThread(h bfbridge.Handle) {
	if _, ok := b.table.GetTyped(h, resource.TypeThread); !ok {
		return
	}
	b.table.Remove(h)
}

// AllocBuffer returns host memory. Its contents are copied to and from the
// guest's buffer around each call that uses it.
func (b *Backend) AllocBuffer(capacity int) []byte {
	if capacity <= 0 {
		return nil
	}
	return make([]byte, capacity)
}

func (b *Backend) FreeBuffer([]byte) {}

func (b *Backend) MakeInstance(thread bfbridge.Handle, buf []byte) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	v, ok := b.vmFor(thread)
	if !ok {
		return 0, descriptorf("invalid thread handle %d", thread)
	}
	if len(buf) == 0 {
		return 0, descriptorf("communication buffer is empty")
	}

	ctx := context.Background()
	mod, err := v.runtime.InstantiateModule(ctx, v.compiled, v.modCfg)
	if err != nil {
		return 0, descriptorf("instantiate decoder: %v", err)
	}
	g, err := newGuest(ctx, mod, buf)
	if err != nil {
		_ = mod.Close(ctx)
		return 0, descriptorf("%v", err)
	}
	h := b.table.Insert(resource.TypeInstance, g)
	if h == 0 {
		g.Drop()
		return 0, descriptorf("backend is closed")
	}
	b.log.Debug("decoder instance created", zap.Int("buffer", len(buf)))
	return h, nil
}

func (b *Backend) FreeInstance(inst, thread bfbridge.Handle) {
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return
	}
	if _, ok := b.table.GetTyped(inst, resource.TypeInstance); !ok {
		return
	}
	b.table.Remove(inst)
}

func (b *Backend) CallInt(inst, thread bfbridge.Handle, fn bfbridge.Func, args ...int32) int32 {
	g, ok := b.guest(inst, thread)
	if !ok {
		return -1
	}
	return g.callInt(fn, args)
}

func (b *Backend) CallDouble(inst, thread bfbridge.Handle, fn bfbridge.Func, args ...int32) float64 {
	g, ok := b.guest(inst, thread)
	if !ok {
		return -1
	}
	return g.callDouble(fn, args)
}

// Close releases every live handle, including the VM.
func (b *Backend) Close() error {
	return b.table.Close()
}

func (b *Backend) vmFor(thread bfbridge.Handle) (*vm, bool) {
	tv, ok := b.table.GetTyped(thread, resource.TypeThread)
	if !ok {
		return nil, false
	}
	vv, ok := b.table.GetTyped(tv.(bfbridge.Handle), resource.TypeVM)
	if !ok {
		return nil, false
	}
	return vv.(*vm), true
}

func (b *Backend) guest(inst, thread bfbridge.Handle) (*guest, bool) {
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return nil, false
	}
	v, ok := b.table.GetTyped(inst, resource.TypeInstance)
	if !ok {
		return nil, false
	}
	return v.(*guest), true
}

func modulePath(resourcePath string) string {
	if strings.HasSuffix(resourcePath, ".wasm") {
		return resourcePath
	}
	return filepath.Join(resourcePath, ModuleFile)
}

func fsConfig(mounts map[string]string) wazero.FSConfig {
	cfg := wazero.NewFSConfig()
	if len(mounts) == 0 {
		return cfg.WithReadOnlyDirMount("/", "/")
	}
	for guest, host := range mounts {
		cfg = cfg.WithReadOnlyDirMount(host, guest)
	}
	return cfg
}

func importsWASI(compiled wazero.CompiledModule) bool {
	for _, f := range compiled.ImportedFunctions() {
		if mod, _, ok := f.Import(); ok && mod == wasi_snapshot_preview1.ModuleName {
			return true
		}
	}
	return false
}

type descriptor struct {
	msg string
}

func descriptorf(format string, args ...any) *descriptor {
	return &descriptor{msg: fmt.Sprintf(format, args...)}
}

func (d *descriptor) Description() string { return d.msg }
func (d *descriptor) Free()               {}

var (
	i32 = api.ValueTypeI32
	f64 = api.ValueTypeF64
)
