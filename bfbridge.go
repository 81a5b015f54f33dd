package bfbridge

// Handle is an opaque reference to a native resource (VM, attached thread,
// or reader instance). Handle 0 is reserved and always invalid.
type Handle uintptr

// ErrorDescriptor is the out-of-band error returned by native construction
// calls. The caller owns it and must call Free exactly once.
type ErrorDescriptor interface {
	Description() string
	Free()
}

// Native is the C-style call surface of the embedded decoder runtime.
//
// Construction calls return a nil ErrorDescriptor on success. Instance calls
// return either a tri-state (1 true, 0 false, anything else an error), a
// scalar, or a length into the communication buffer (negative on error).
// Functions that take a path read it from the first n bytes of the
// communication buffer, with n passed as the first argument.
type Native interface {
	// MakeVM creates the process-global runtime. A backend supports at most
	// one successful MakeVM per process.
	MakeVM(resourcePath, cachePath string) (Handle, ErrorDescriptor)
	FreeVM(vm Handle)

	// MakeThread attaches the calling OS thread. Calling it again on an
	// attached thread is a no-op returning an equivalent handle.
	MakeThread(vm Handle) (Handle, ErrorDescriptor)
	// FreeThread detaches the calling OS thread, regardless of how many
	// MakeThread calls preceded it.
	FreeThread(thread Handle)

	// AllocBuffer returns memory the runtime may retain between calls.
	AllocBuffer(capacity int) []byte
	FreeBuffer(buf []byte)

	MakeInstance(thread Handle, buf []byte) (Handle, ErrorDescriptor)
	FreeInstance(instance, thread Handle)

	CallInt(instance, thread Handle, fn Func, args ...int32) int32
	CallDouble(instance, thread Handle, fn Func, args ...int32) float64
}

// Tri-state results.
const (
	False int32 = 0
	True  int32 = 1
)

// Func identifies one decoder entry point.
type Func int

const (
	FuncGetErrorLength Func = iota
	FuncIsCompatible
	FuncIsAnyFileOpen
	FuncOpen
	FuncGetFormat
	FuncIsSingleFile
	FuncGetCurrentFile
	FuncGetUsedFiles
	FuncClose
	FuncGetSeriesCount
	FuncSetCurrentSeries
	FuncGetResolutionCount
	FuncSetCurrentResolution
	FuncGetSizeX
	FuncGetSizeY
	FuncGetSizeC
	FuncGetSizeZ
	FuncGetSizeT
	FuncGetEffectiveSizeC
	FuncGetImageCount
	FuncGetDimensionOrder
	FuncIsOrderCertain
	FuncGetOptimalTileWidth
	FuncGetOptimalTileHeight
	FuncGetPixelType
	FuncGetBitsPerPixel
	FuncGetBytesPerPixel
	FuncGetRGBChannelCount
	FuncIsRGB
	FuncIsInterleaved
	FuncIsLittleEndian
	FuncIsIndexedColor
	FuncIsFalseColor
	FuncGet8BitLookupTable
	FuncGet16BitLookupTable
	FuncOpenBytes
	FuncOpenThumbBytes
	FuncGetMPPX
	FuncGetMPPY
	FuncGetMPPZ
	FuncDumpOMEXMLMetadata
	FuncToolsShouldGenerate

	funcCount
)

var funcNames = [funcCount]string{
	FuncGetErrorLength:       "bf_get_error_length",
	FuncIsCompatible:         "bf_is_compatible",
	FuncIsAnyFileOpen:        "bf_is_any_file_open",
	FuncOpen:                 "bf_open",
	FuncGetFormat:            "bf_get_format",
	FuncIsSingleFile:         "bf_is_single_file",
	FuncGetCurrentFile:       "bf_get_current_file",
	FuncGetUsedFiles:         "bf_get_used_files",
	FuncClose:                "bf_close",
	FuncGetSeriesCount:       "bf_get_series_count",
	FuncSetCurrentSeries:     "bf_set_current_series",
	FuncGetResolutionCount:   "bf_get_resolution_count",
	FuncSetCurrentResolution: "bf_set_current_resolution",
	FuncGetSizeX:             "bf_get_size_x",
	FuncGetSizeY:             "bf_get_size_y",
	FuncGetSizeC:             "bf_get_size_c",
	FuncGetSizeZ:             "bf_get_size_z",
	FuncGetSizeT:             "bf_get_size_t",
	FuncGetEffectiveSizeC:    "bf_get_effective_size_c",
	FuncGetImageCount:        "bf_get_image_count",
	FuncGetDimensionOrder:    "bf_get_dimension_order",
	FuncIsOrderCertain:       "bf_is_order_certain",
	FuncGetOptimalTileWidth:  "bf_get_optimal_tile_width",
	FuncGetOptimalTileHeight: "bf_get_optimal_tile_height",
	FuncGetPixelType:         "bf_get_pixel_type",
	FuncGetBitsPerPixel:      "bf_get_bits_per_pixel",
	FuncGetBytesPerPixel:     "bf_get_bytes_per_pixel",
	FuncGetRGBChannelCount:   "bf_get_rgb_channel_count",
	FuncIsRGB:                "bf_is_rgb",
	FuncIsInterleaved:        "bf_is_interleaved",
	FuncIsLittleEndian:       "bf_is_little_endian",
	FuncIsIndexedColor:       "bf_is_indexed_color",
	FuncIsFalseColor:         "bf_is_false_color",
	FuncGet8BitLookupTable:   "bf_get_8_bit_lookup_table",
	FuncGet16BitLookupTable:  "bf_get_16_bit_lookup_table",
	FuncOpenBytes:            "bf_open_bytes",
	FuncOpenThumbBytes:       "bf_open_thumb_bytes",
	FuncGetMPPX:              "bf_get_mpp_x",
	FuncGetMPPY:              "bf_get_mpp_y",
	FuncGetMPPZ:              "bf_get_mpp_z",
	FuncDumpOMEXMLMetadata:   "bf_dump_ome_xml_metadata",
	FuncToolsShouldGenerate:  "bf_tools_should_generate",
}

// String returns the C symbol name, e.g. "bf_open_bytes".
func (f Func) String() string {
	if f < 0 || f >= funcCount {
		return "bf_unknown"
	}
	return funcNames[f]
}

// Valid reports whether f names a known entry point.
func (f Func) Valid() bool {
	return f >= 0 && f < funcCount
}

// Arity returns the number of int32 arguments fn takes.
func (f Func) Arity() int {
	switch f {
	case FuncIsCompatible, FuncOpen, FuncIsSingleFile,
		FuncSetCurrentSeries, FuncSetCurrentResolution,
		FuncGetMPPX, FuncGetMPPY, FuncGetMPPZ:
		return 1
	case FuncOpenThumbBytes:
		return 3
	case FuncOpenBytes:
		return 5
	default:
		return 0
	}
}

// ReturnsDouble reports whether fn must be invoked through CallDouble.
func (f Func) ReturnsDouble() bool {
	return f == FuncGetMPPX || f == FuncGetMPPY || f == FuncGetMPPZ
}

// Funcs returns every entry point in declaration order.
func Funcs() []Func {
	out := make([]Func, funcCount)
	for i := range out {
		out[i] = Func(i)
	}
	return out
}

// ReadsPath reports whether fn reads a path from the communication buffer.
func (f Func) ReadsPath() bool {
	return f == FuncIsCompatible || f == FuncOpen || f == FuncIsSingleFile
}

// WritesBuffer reports whether a non-negative result of fn is a byte count
// written to the start of the communication buffer.
func (f Func) WritesBuffer() bool {
	switch f {
	case FuncGetErrorLength, FuncGetFormat, FuncGetCurrentFile, FuncGetUsedFiles,
		FuncGetDimensionOrder, FuncGet8BitLookupTable, FuncGet16BitLookupTable,
		FuncOpenBytes, FuncOpenThumbBytes, FuncDumpOMEXMLMetadata:
		return true
	default:
		return false
	}
}
