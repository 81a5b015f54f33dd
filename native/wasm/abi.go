package wasm

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/bfbridge"
)

// Exports every decoder module provides besides the bf_* entry points.
const (
	exportMemory = "memory"
	exportAlloc  = "bf_alloc" // (size i32) -> ptr i32, 0 on failure
	exportFree   = "bf_free"  // (ptr i32)
	exportInit   = "bf_init"  // (ptr i32, len i32) -> 0, or an error length
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var coreExports = map[string]signature{
	exportAlloc: {[]api.ValueType{i32}, []api.ValueType{i32}},
	exportFree:  {[]api.ValueType{i32}, nil},
	exportInit:  {[]api.ValueType{i32, i32}, []api.ValueType{i32}},
}

// funcSignature is the guest signature of an entry point: one i32 per
// argument, returning i32 or f64.
func funcSignature(fn bfbridge.Func) signature {
	params := make([]api.ValueType, fn.Arity())
	for i := range params {
		params[i] = i32
	}
	if fn.ReturnsDouble() {
		return signature{params, []api.ValueType{f64}}
	}
	return signature{params, []api.ValueType{i32}}
}

// optional reports entry points a module may leave out. Calls to them
// return -1.
func optional(fn bfbridge.Func) bool {
	return fn == bfbridge.FuncToolsShouldGenerate
}

func checkExports(compiled wazero.CompiledModule) error {
	if _, ok := compiled.ExportedMemories()[exportMemory]; !ok {
		return fmt.Errorf("module does not export %q", exportMemory)
	}
	fns := compiled.ExportedFunctions()
	for name, sig := range coreExports {
		if err := checkSignature(fns, name, sig); err != nil {
			return err
		}
	}
	for _, fn := range bfbridge.Funcs() {
		if _, ok := fns[fn.String()]; !ok && optional(fn) {
			continue
		}
		if err := checkSignature(fns, fn.String(), funcSignature(fn)); err != nil {
			return err
		}
	}
	return nil
}

func checkSignature(fns map[string]api.FunctionDefinition, name string, want signature) error {
	def, ok := fns[name]
	if !ok {
		return fmt.Errorf("module does not export %s", name)
	}
	if !slices.Equal(def.ParamTypes(), want.params) || !slices.Equal(def.ResultTypes(), want.results) {
		return fmt.Errorf("%s has signature %s -> %s, want %s -> %s", name,
			typeNames(def.ParamTypes()), typeNames(def.ResultTypes()),
			typeNames(want.params), typeNames(want.results))
	}
	return nil
}

func typeNames(ts []api.ValueType) string {
	s := "("
	for i, t := range ts {
		if i > 0 {
			s += " "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}
