package synthetic

import (
	"fmt"
	"sync"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/resource"
)

// Counters is a snapshot of lifecycle calls made against a Backend.
type Counters struct {
	MakeVM           int
	FreeVM           int
	MakeThread       int
	FreeThread       int
	AllocBuffer      int
	FreeBuffer       int
	MakeInstance     int
	FreeInstance     int
	DescriptorsFreed int
}

// Backend is an in-memory bfbridge.Native. Like the JVM it hosts at most one
// VM for its whole lifetime.
type Backend struct {
	table    *resource.Table
	images   map[string]Image
	calls    map[bfbridge.Func]int
	onCall   func(bfbridge.Func)
	failures map[resource.TypeID]string
	resource string
	cache    string
	counters Counters
	vmUsed   bool
	mu       sync.Mutex
}

var _ bfbridge.Native = (*Backend)(nil)

// New creates an empty backend.
func New() *Backend {
	return &Backend{
		table:    resource.NewTable(),
		images:   make(map[string]Image),
		calls:    make(map[bfbridge.Func]int),
		failures: make(map[resource.TypeID]string),
	}
}

// AddImage registers img under path.
func (b *Backend) AddImage(path string, img Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.images[path] = img.normalize(path)
}

// FailVM makes the next MakeVM calls fail with msg. An empty msg clears it.
func (b *Backend) FailVM(msg string) { b.setFailure(resource.TypeVM, msg) }

// FailThread makes MakeThread fail with msg.
func (b *Backend) FailThread(msg string) { b.setFailure(resource.TypeThread, msg) }

// FailInstance makes MakeInstance fail with msg.
func (b *Backend) FailInstance(msg string) { b.setFailure(resource.TypeInstance, msg) }

func (b *Backend) setFailure(t resource.TypeID, msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if msg == "" {
		delete(b.failures, t)
		return
	}
	b.failures[t] = msg
}

// OnCall installs a hook invoked before every instance call.
func (b *Backend) OnCall(fn func(bfbridge.Func)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCall = fn
}

// Counters returns a snapshot of the lifecycle counters.
func (b *Backend) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}

// Calls returns how many times fn was invoked.
func (b *Backend) Calls(fn bfbridge.Func) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[fn]
}

// Paths returns the resource and cache paths passed to MakeVM.
func (b *Backend) Paths() (resourcePath, cachePath string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resource, b.cache
}

// Subscribe reports handle creation and release to o.
func (b *Backend) Subscribe(o resource.Observer) {
	b.table.Subscribe(o)
}

// Live returns the number of live handles of type t.
func (b *Backend) Live(t resource.TypeID) int {
	return b.table.CountType(t)
}

func (b *Backend) MakeVM(resourcePath, cachePath string) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	b.mu.Lock()
	b.counters.MakeVM++
	if msg, ok := b.failures[resource.TypeVM]; ok {
		b.mu.Unlock()
		return 0, b.descriptor(msg)
	}
	if b.vmUsed {
		b.mu.Unlock()
		return 0, b.descriptor("a VM was already created in this process")
	}
	b.vmUsed = true
	b.resource, b.cache = resourcePath, cachePath
	b.mu.Unlock()
	return b.table.Insert(resource.TypeVM, resourcePath), nil
}

func (b *Backend) FreeVM(vm bfbridge.Handle) {
	if _, ok := b.table.GetTyped(vm, resource.TypeVM); !ok {
		return
	}
	b.table.Remove(vm)
	b.count(func(c *Counters) { c.FreeVM++ })
}

func (b *Backend) MakeThread(vm bfbridge.Handle) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	b.mu.Lock()
	b.counters.MakeThread++
	msg, fail := b.failures[resource.TypeThread]
	b.mu.Unlock()
	if fail {
		return 0, b.descriptor(msg)
	}
	if _, ok := b.table.GetTyped(vm, resource.TypeVM); !ok {
		return 0, b.descriptor(fmt.Sprintf("invalid VM handle %d", vm))
	}
	return b.table.Insert(resource.TypeThread, vm), nil
}

func (b *Backend) FreeThread(thread bfbridge.Handle) {
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return
	}
	b.table.Remove(thread)
	b.count(func(c *Counters) { c.FreeThread++ })
}

func (b *Backend) AllocBuffer(capacity int) []byte {
	if capacity <= 0 {
		return nil
	}
	b.count(func(c *Counters) { c.AllocBuffer++ })
	return make([]byte, capacity)
}

func (b *Backend) FreeBuffer(buf []byte) {
	if buf == nil {
		return
	}
	b.count(func(c *Counters) { c.FreeBuffer++ })
}

func (b *Backend) MakeInstance(thread bfbridge.Handle, buf []byte) (bfbridge.Handle, bfbridge.ErrorDescriptor) {
	b.mu.Lock()
	b.counters.MakeInstance++
	msg, fail := b.failures[resource.TypeInstance]
	b.mu.Unlock()
	if fail {
		return 0, b.descriptor(msg)
	}
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return 0, b.descriptor(fmt.Sprintf("invalid thread handle %d", thread))
	}
	if len(buf) == 0 {
		return 0, b.descriptor("communication buffer is empty")
	}
	return b.table.Insert(resource.TypeInstance, &instance{backend: b, buf: buf}), nil
}

func (b *Backend) FreeInstance(inst, thread bfbridge.Handle) {
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return
	}
	if _, ok := b.table.GetTyped(inst, resource.TypeInstance); !ok {
		return
	}
	b.table.Remove(inst)
	b.count(func(c *Counters) { c.FreeInstance++ })
}

func (b *Backend) CallInt(inst, thread bfbridge.Handle, fn bfbridge.Func, args ...int32) int32 {
	in, ok := b.instance(inst, thread, fn)
	if !ok {
		return -1
	}
	return in.callInt(fn, args)
}

func (b *Backend) CallDouble(inst, thread bfbridge.Handle, fn bfbridge.Func, args ...int32) float64 {
	in, ok := b.instance(inst, thread, fn)
	if !ok {
		return -1
	}
	return in.callDouble(fn, args)
}

func (b *Backend) instance(inst, thread bfbridge.Handle, fn bfbridge.Func) (*instance, bool) {
	b.mu.Lock()
	b.calls[fn]++
	hook := b.onCall
	b.mu.Unlock()
	if hook != nil {
		hook(fn)
	}
	if _, ok := b.table.GetTyped(thread, resource.TypeThread); !ok {
		return nil, false
	}
	v, ok := b.table.GetTyped(inst, resource.TypeInstance)
	if !ok {
		return nil, false
	}
	return v.(*instance), true
}

func (b *Backend) lookup(path string) (Image, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := b.images[path]
	return img, ok
}

func (b *Backend) count(fn func(*Counters)) {
	b.mu.Lock()
	fn(&b.counters)
	b.mu.Unlock()
}

type descriptor struct {
	backend *Backend
	msg     string
	once    sync.Once
}

func (b *Backend) descriptor(msg string) *descriptor {
	return &descriptor{backend: b, msg: msg}
}

func (d *descriptor) Description() string { return d.msg }

func (d *descriptor) Free() {
	d.once.Do(func() {
		d.backend.count(func(c *Counters) { c.DescriptorsFreed++ })
	})
}
