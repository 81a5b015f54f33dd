package synthetic

import (
	"strings"
	"testing"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/pixel"
	"github.com/wippyai/bfbridge/resource"
)

func setup(t *testing.T, b *Backend, capacity int) (vm, thread, inst bfbridge.Handle, buf []byte) {
	t.Helper()
	vm, desc := b.MakeVM("/opt/bfbridge", "")
	if desc != nil {
		t.Fatalf("MakeVM: %s", desc.Description())
	}
	thread, desc = b.MakeThread(vm)
	if desc != nil {
		t.Fatalf("MakeThread: %s", desc.Description())
	}
	buf = b.AllocBuffer(capacity)
	inst, desc = b.MakeInstance(thread, buf)
	if desc != nil {
		t.Fatalf("MakeInstance: %s", desc.Description())
	}
	return vm, thread, inst, buf
}

func open(t *testing.T, b *Backend, inst, thread bfbridge.Handle, buf []byte, path string) int32 {
	t.Helper()
	n := copy(buf, path)
	return b.CallInt(inst, thread, bfbridge.FuncOpen, int32(n))
}

func TestBackend_Lifecycle(t *testing.T) {
	b := New()
	vm, thread, inst, buf := setup(t, b, 1024)

	if _, desc := b.MakeVM("/opt/bfbridge", ""); desc == nil {
		t.Fatal("second MakeVM should fail")
	} else {
		desc.Free()
	}

	b.FreeInstance(inst, thread)
	b.FreeBuffer(buf)
	b.FreeThread(thread)
	b.FreeVM(vm)

	c := b.Counters()
	want := Counters{
		MakeVM: 2, FreeVM: 1,
		MakeThread: 1, FreeThread: 1,
		AllocBuffer: 1, FreeBuffer: 1,
		MakeInstance: 1, FreeInstance: 1,
		DescriptorsFreed: 1,
	}
	if c != want {
		t.Errorf("Counters = %+v, want %+v", c, want)
	}
	for _, typ := range []resource.TypeID{resource.TypeVM, resource.TypeThread, resource.TypeInstance} {
		if n := b.Live(typ); n != 0 {
			t.Errorf("%s handles still live: %d", typ, n)
		}
	}

	if _, desc := b.MakeVM("/opt/bfbridge", ""); desc == nil {
		t.Error("MakeVM after FreeVM should fail")
	}
}

func TestBackend_FailureInjection(t *testing.T) {
	b := New()
	b.FailVM("no jvm")
	_, desc := b.MakeVM("/x", "")
	if desc == nil || desc.Description() != "no jvm" {
		t.Fatalf("MakeVM descriptor = %v", desc)
	}
	desc.Free()
	desc.Free()
	if n := b.Counters().DescriptorsFreed; n != 1 {
		t.Errorf("DescriptorsFreed = %d, want 1", n)
	}

	b.FailVM("")
	vm, desc := b.MakeVM("/x", "")
	if desc != nil {
		t.Fatalf("MakeVM: %s", desc.Description())
	}

	b.FailThread("attach failed")
	if _, desc := b.MakeThread(vm); desc == nil {
		t.Fatal("MakeThread should fail")
	}
	b.FailThread("")
	th, desc := b.MakeThread(vm)
	if desc != nil {
		t.Fatalf("MakeThread: %s", desc.Description())
	}

	b.FailInstance("class not found")
	if _, desc := b.MakeInstance(th, make([]byte, 16)); desc == nil || !strings.Contains(desc.Description(), "class") {
		t.Fatalf("MakeInstance descriptor = %v", desc)
	}
}

func TestBackend_OpenAndMetadata(t *testing.T) {
	b := New()
	b.AddImage("/a.tif", Image{
		SizeX: 1000, SizeY: 500, SizeC: 3, RGBChannelCount: 3,
		PixelType: pixel.Uint16, Interleaved: true, Resolutions: 3,
		MPP: [3]float64{0.25, 0.5, 0},
	})
	_, thread, inst, buf := setup(t, b, 4096)

	if r := open(t, b, inst, thread, buf, "/missing.tif"); r != -1 {
		t.Fatalf("open missing = %d, want -1", r)
	}
	n := b.CallInt(inst, thread, bfbridge.FuncGetErrorLength)
	if n <= 0 || !strings.Contains(string(buf[:n]), "/missing.tif") {
		t.Errorf("error text = %q", buf[:max(n, 0)])
	}

	if r := open(t, b, inst, thread, buf, "/a.tif"); r != 1 {
		t.Fatalf("open = %d", r)
	}

	ints := []struct {
		fn   bfbridge.Func
		want int32
	}{
		{bfbridge.FuncIsAnyFileOpen, 1},
		{bfbridge.FuncGetSizeX, 1000},
		{bfbridge.FuncGetSizeY, 500},
		{bfbridge.FuncGetSizeC, 3},
		{bfbridge.FuncGetEffectiveSizeC, 1},
		{bfbridge.FuncGetImageCount, 1},
		{bfbridge.FuncGetResolutionCount, 3},
		{bfbridge.FuncGetPixelType, int32(pixel.Uint16)},
		{bfbridge.FuncGetBitsPerPixel, 16},
		{bfbridge.FuncGetBytesPerPixel, 2},
		{bfbridge.FuncIsRGB, 1},
		{bfbridge.FuncIsInterleaved, 1},
		{bfbridge.FuncIsLittleEndian, 0},
	}
	for _, tt := range ints {
		if got := b.CallInt(inst, thread, tt.fn); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.fn, got, tt.want)
		}
	}

	if r := b.CallInt(inst, thread, bfbridge.FuncSetCurrentResolution, 2); r != 1 {
		t.Fatalf("set resolution = %d", r)
	}
	if w := b.CallInt(inst, thread, bfbridge.FuncGetSizeX); w != 250 {
		t.Errorf("size x at resolution 2 = %d", w)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncSetCurrentResolution, 3); r != -1 {
		t.Errorf("out of range resolution = %d", r)
	}

	if mpp := b.CallDouble(inst, thread, bfbridge.FuncGetMPPX, 0); mpp != 0.25 {
		t.Errorf("mpp x = %v", mpp)
	}
	if mpp := b.CallDouble(inst, thread, bfbridge.FuncGetMPPZ, 0); mpp != 0 {
		t.Errorf("mpp z = %v, want 0 for undefined", mpp)
	}
	if mpp := b.CallDouble(inst, thread, bfbridge.FuncGetMPPX, 7); mpp != -1 {
		t.Errorf("mpp for bad series = %v", mpp)
	}

	n = b.CallInt(inst, thread, bfbridge.FuncGetUsedFiles)
	if string(buf[:n]) != "/a.tif\x00" {
		t.Errorf("used files = %q", buf[:n])
	}

	if r := b.CallInt(inst, thread, bfbridge.FuncClose); r != 1 {
		t.Fatalf("close = %d", r)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncGetSizeX); r != -1 {
		t.Errorf("size x after close = %d, want -1", r)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncGetCurrentFile); r != 0 {
		t.Errorf("current file after close = %d", r)
	}
}

func TestBackend_OpenBytes(t *testing.T) {
	b := New()
	b.AddImage("/rgb.png", Image{SizeX: 64, SizeY: 32, RGBChannelCount: 3, PixelType: pixel.Uint8, Interleaved: true})
	_, thread, inst, buf := setup(t, b, 1000)
	open(t, b, inst, thread, buf, "/rgb.png")

	n := b.CallInt(inst, thread, bfbridge.FuncOpenBytes, 0, 2, 3, 10, 5)
	if n != 10*5*3 {
		t.Fatalf("open bytes = %d, want %d", n, 10*5*3)
	}
	// first pixel at (2,3), channel 1
	if buf[1] != byte(2+3+64) {
		t.Errorf("sample = %d", buf[1])
	}

	if r := b.CallInt(inst, thread, bfbridge.FuncOpenBytes, 0, 0, 0, 64, 32); r != -2 {
		t.Errorf("oversized region = %d, want -2", r)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncOpenBytes, 0, 60, 0, 10, 1); r != -1 {
		t.Errorf("out of bounds region = %d, want -1", r)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncOpenBytes, 1, 0, 0, 1, 1); r != -1 {
		t.Errorf("bad plane = %d, want -1", r)
	}

	n = b.CallInt(inst, thread, bfbridge.FuncOpenThumbBytes, 0, 16, 8)
	if n != 16*8*3 {
		t.Errorf("thumb bytes = %d", n)
	}
	if calls := b.Calls(bfbridge.FuncOpenBytes); calls != 4 {
		t.Errorf("Calls(OpenBytes) = %d", calls)
	}
}

func TestBackend_CompatibilityClosesFile(t *testing.T) {
	b := New()
	b.AddImage("/a.svs", Image{SizeX: 8, SizeY: 8, PixelType: pixel.Uint8, MultiFile: true})
	_, thread, inst, buf := setup(t, b, 256)
	open(t, b, inst, thread, buf, "/a.svs")

	n := copy(buf, "/a.svs")
	if r := b.CallInt(inst, thread, bfbridge.FuncIsCompatible, int32(n)); r != 1 {
		t.Errorf("compatible = %d", r)
	}
	if r := b.CallInt(inst, thread, bfbridge.FuncIsAnyFileOpen); r != 0 {
		t.Errorf("file still open after compatibility check")
	}
	n = copy(buf, "/a.svs")
	if r := b.CallInt(inst, thread, bfbridge.FuncIsSingleFile, int32(n)); r != 0 {
		t.Errorf("single file = %d, want 0", r)
	}
	n = copy(buf, "/b.svs")
	if r := b.CallInt(inst, thread, bfbridge.FuncIsCompatible, int32(n)); r != 0 {
		t.Errorf("unknown file compatible = %d", r)
	}
}

func TestBackend_StaleHandles(t *testing.T) {
	b := New()
	_, thread, inst, _ := setup(t, b, 64)
	b.FreeInstance(inst, thread)
	if r := b.CallInt(inst, thread, bfbridge.FuncIsAnyFileOpen); r != -1 {
		t.Errorf("call on freed instance = %d, want -1", r)
	}
	b.FreeInstance(inst, thread)
	if c := b.Counters(); c.FreeInstance != 1 {
		t.Errorf("FreeInstance counted %d times", c.FreeInstance)
	}
}
