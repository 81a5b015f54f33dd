package bfbridge

import "testing"

func TestFunc_String(t *testing.T) {
	tests := []struct {
		fn   Func
		want string
	}{
		{FuncGetErrorLength, "bf_get_error_length"},
		{FuncOpenBytes, "bf_open_bytes"},
		{FuncGetMPPZ, "bf_get_mpp_z"},
		{FuncToolsShouldGenerate, "bf_tools_should_generate"},
		{Func(-1), "bf_unknown"},
		{funcCount, "bf_unknown"},
	}
	for _, tt := range tests {
		if got := tt.fn.String(); got != tt.want {
			t.Errorf("Func(%d).String() = %q, want %q", int(tt.fn), got, tt.want)
		}
	}
}

func TestFuncs(t *testing.T) {
	fns := Funcs()
	if len(fns) != int(funcCount) {
		t.Fatalf("Funcs() returned %d entries, want %d", len(fns), funcCount)
	}
	seen := make(map[string]bool)
	for i, fn := range fns {
		if int(fn) != i || !fn.Valid() {
			t.Errorf("Funcs()[%d] = %d", i, fn)
		}
		name := fn.String()
		if name == "" || seen[name] {
			t.Errorf("duplicate or empty symbol %q", name)
		}
		seen[name] = true
	}
	if Func(-1).Valid() || funcCount.Valid() {
		t.Error("out of range Func reported valid")
	}
}

func TestFunc_Signature(t *testing.T) {
	tests := []struct {
		fn       Func
		arity    int
		double   bool
		readPath bool
		writes   bool
	}{
		{FuncGetErrorLength, 0, false, false, true},
		{FuncOpen, 1, false, true, false},
		{FuncIsCompatible, 1, false, true, false},
		{FuncSetCurrentSeries, 1, false, false, false},
		{FuncGetSizeX, 0, false, false, false},
		{FuncOpenBytes, 5, false, false, true},
		{FuncOpenThumbBytes, 3, false, false, true},
		{FuncGetMPPY, 1, true, false, false},
		{FuncDumpOMEXMLMetadata, 0, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.fn.String(), func(t *testing.T) {
			if got := tt.fn.Arity(); got != tt.arity {
				t.Errorf("Arity() = %d, want %d", got, tt.arity)
			}
			if got := tt.fn.ReturnsDouble(); got != tt.double {
				t.Errorf("ReturnsDouble() = %v", got)
			}
			if got := tt.fn.ReadsPath(); got != tt.readPath {
				t.Errorf("ReadsPath() = %v", got)
			}
			if got := tt.fn.WritesBuffer(); got != tt.writes {
				t.Errorf("WritesBuffer() = %v", got)
			}
		})
	}
}
