package wasm

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/bfbridge"
)

// A tiny hand-assembled decoder module. Global 0 holds the buffer pointer,
// global 1 the length of the last error message.

const (
	opUnreachable = 0x00
	opEnd         = 0x0b
	opLocalGet    = 0x20
	opGlobalGet   = 0x23
	opGlobalSet   = 0x24
	opI32Load8U   = 0x2d
	opI32Store    = 0x36
	opI32Const    = 0x41
	opF64Const    = 0x44
	opI32Eq       = 0x46
	opI32Mul      = 0x6c
)

type guestFunc struct {
	name string
	sig  signature
	body []byte
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func i32Const(v int32) []byte { return cat([]byte{opI32Const}, sleb(int64(v))) }

func f64Const(v float64) []byte {
	b := make([]byte, 9)
	b[0] = opF64Const
	binary.LittleEndian.PutUint64(b[1:], math.Float64bits(v))
	return b
}

// storeWord writes four ASCII bytes at the buffer start.
func storeWord(s string) []byte {
	return cat([]byte{opGlobalGet, 0}, i32Const(int32(binary.LittleEndian.Uint32([]byte(s)))), []byte{opI32Store, 2, 0})
}

func vec(items [][]byte) []byte {
	return cat(uleb(uint64(len(items))), cat(items...))
}

func name(s string) []byte { return cat(uleb(uint64(len(s))), []byte(s)) }

func valTypes(ts []api.ValueType) []byte {
	return cat(uleb(uint64(len(ts))), ts)
}

func section(id byte, payload []byte) []byte {
	return cat([]byte{id}, uleb(uint64(len(payload))), payload)
}

func buildModule(funcs []guestFunc) []byte {
	typeIdx := make(map[string]uint64)
	var types, fnSec, exports, code [][]byte
	exports = append(exports, cat(name(exportMemory), []byte{0x02, 0}))
	for i, f := range funcs {
		t := cat([]byte{0x60}, valTypes(f.sig.params), valTypes(f.sig.results))
		idx, ok := typeIdx[string(t)]
		if !ok {
			idx = uint64(len(types))
			typeIdx[string(t)] = idx
			types = append(types, t)
		}
		fnSec = append(fnSec, uleb(idx))
		exports = append(exports, cat(name(f.name), []byte{0x00}, uleb(uint64(i))))
		body := cat([]byte{0}, f.body, []byte{opEnd})
		code = append(code, cat(uleb(uint64(len(body))), body))
	}
	global := cat([]byte{byte(i32), 1}, i32Const(0), []byte{opEnd})

	return cat(
		[]byte{0x00, 'a', 's', 'm', 0x01, 0, 0, 0},
		section(1, vec(types)),
		section(3, vec(fnSec)),
		section(5, vec([][]byte{{0x00, 1}})),
		section(6, vec([][]byte{global, global})),
		section(7, vec(exports)),
		section(10, vec(code)),
	)
}

// guestFuncs returns a complete decoder module. Bodies in override replace
// the defaults, names in skip are left out.
func guestFuncs(override map[string][]byte, skip ...string) []guestFunc {
	funcs := []guestFunc{
		{exportAlloc, coreExports[exportAlloc], i32Const(1024)},
		{exportFree, coreExports[exportFree], nil},
		{exportInit, coreExports[exportInit], cat([]byte{opLocalGet, 0, opGlobalSet, 0}, i32Const(0))},
	}
	for _, fn := range bfbridge.Funcs() {
		var body []byte
		switch fn {
		case bfbridge.FuncGetErrorLength:
			body = []byte{opGlobalGet, 1}
		case bfbridge.FuncIsCompatible:
			// first path byte is '/'
			body = cat([]byte{opGlobalGet, 0, opI32Load8U, 0, 0}, i32Const('/'), []byte{opI32Eq})
		case bfbridge.FuncOpen:
			body = cat(storeWord("nope"), i32Const(4), []byte{opGlobalSet, 1}, i32Const(-1))
		case bfbridge.FuncGetFormat:
			body = cat(storeWord("Fake"), i32Const(4))
		case bfbridge.FuncGetSizeX:
			body = i32Const(640)
		case bfbridge.FuncGetSizeY:
			body = []byte{opUnreachable}
		case bfbridge.FuncGetMPPX:
			body = f64Const(0.25)
		case bfbridge.FuncOpenBytes:
			body = []byte{opLocalGet, 3, opLocalGet, 4, opI32Mul}
		default:
			if fn.ReturnsDouble() {
				body = f64Const(-1)
			} else {
				body = i32Const(-1)
			}
		}
		funcs = append(funcs, guestFunc{fn.String(), funcSignature(fn), body})
	}

	out := funcs[:0]
	for _, f := range funcs {
		if containsName(skip, f.name) {
			continue
		}
		if b, ok := override[f.name]; ok {
			f.body = b
		}
		out = append(out, f)
	}
	return out
}

func containsName(names []string, n string) bool {
	for _, s := range names {
		if s == n {
			return true
		}
	}
	return false
}

func writeModule(t *testing.T, funcs []guestFunc) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ModuleFile), buildModule(funcs), 0o600); err != nil {
		t.Fatalf("write module: %v", err)
	}
	return dir
}
