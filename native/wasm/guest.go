package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/bfbridge"
)

// guest is one instantiated decoder module and its mirror of the host
// communication buffer.
type guest struct {
	mod  api.Module
	mem  api.Memory
	fns  map[bfbridge.Func]api.Function
	free api.Function
	buf  []byte
	ptr  uint32
	// trap holds the message of the last failed guest call until the next
	// bf_get_error_length.
	trap string
	mu   sync.Mutex
}

func newGuest(ctx context.Context, mod api.Module, buf []byte) (*guest, error) {
	g := &guest{
		mod:  mod,
		mem:  mod.Memory(),
		fns:  make(map[bfbridge.Func]api.Function),
		free: mod.ExportedFunction(exportFree),
		buf:  buf,
	}
	for _, fn := range bfbridge.Funcs() {
		if f := mod.ExportedFunction(fn.String()); f != nil {
			g.fns[fn] = f
		}
	}

	res, err := mod.ExportedFunction(exportAlloc).Call(ctx, api.EncodeI32(int32(len(buf))))
	if err != nil {
		return nil, fmt.Errorf("allocate guest buffer: %w", err)
	}
	g.ptr = uint32(api.DecodeI32(res[0]))
	if g.ptr == 0 || uint64(g.ptr)+uint64(len(buf)) > uint64(g.mem.Size()) {
		return nil, fmt.Errorf("guest could not allocate a %d byte buffer", len(buf))
	}

	res, err = mod.ExportedFunction(exportInit).Call(ctx, uint64(g.ptr), api.EncodeI32(int32(len(buf))))
	if err != nil {
		return nil, fmt.Errorf("initialize decoder: %w", err)
	}
	if n := api.DecodeI32(res[0]); n != 0 {
		msg := "initialize decoder failed"
		if n > 0 {
			if data, ok := g.mem.Read(g.ptr, uint32(min(int(n), len(buf)))); ok {
				msg = string(data)
			}
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return g, nil
}

func (g *guest) Drop() {
	ctx := context.Background()
	if g.free != nil {
		_, _ = g.free.Call(ctx, uint64(g.ptr))
	}
	_ = g.mod.Close(ctx)
}

func (g *guest) callInt(fn bfbridge.Func, args []int32) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if fn == bfbridge.FuncGetErrorLength && g.trap != "" {
		n := copy(g.buf, g.trap)
		g.trap = ""
		return int32(n)
	}
	res, ok := g.call(fn, args)
	if !ok {
		return -1
	}
	n := api.DecodeI32(res)
	if fn.WritesBuffer() && n > 0 && int(n) <= len(g.buf) {
		data, ok := g.mem.Read(g.ptr, uint32(n))
		if !ok {
			g.trap = fmt.Sprintf("%s: result of %d bytes is outside guest memory", fn, n)
			return -1
		}
		copy(g.buf, data)
	}
	return n
}

func (g *guest) callDouble(fn bfbridge.Func, args []int32) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.call(fn, args)
	if !ok {
		return -1
	}
	return api.DecodeF64(res)
}

// call runs fn in the guest, copying a path argument in first. Failures are
// recorded in g.trap.
func (g *guest) call(fn bfbridge.Func, args []int32) (uint64, bool) {
	g.trap = ""
	f := g.fns[fn]
	if f == nil {
		g.trap = fmt.Sprintf("%s is not exported by the decoder module", fn)
		return 0, false
	}
	if len(args) != fn.Arity() {
		g.trap = fmt.Sprintf("%s takes %d arguments, got %d", fn, fn.Arity(), len(args))
		return 0, false
	}
	if fn.ReadsPath() {
		n := int(args[0])
		if n < 0 || n > len(g.buf) {
			g.trap = fmt.Sprintf("%s: path length %d out of range", fn, n)
			return 0, false
		}
		if !g.mem.Write(g.ptr, g.buf[:n]) {
			g.trap = fmt.Sprintf("%s: guest buffer is outside guest memory", fn)
			return 0, false
		}
	}

	params := make([]uint64, len(args))
	for i, a := range args {
		params[i] = api.EncodeI32(a)
	}
	res, err := f.Call(context.Background(), params...)
	if err != nil {
		g.trap = fmt.Sprintf("%s: %v", fn, err)
		return 0, false
	}
	return res[0], true
}
