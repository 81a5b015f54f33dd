package synthetic

import (
	"fmt"
	"sync"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/pixel"
)

// instance is the reader state behind one session.
type instance struct {
	backend    *Backend
	image      *Image
	buf        []byte
	path       string
	series     int
	resolution int
	lastError  int32
	mu         sync.Mutex
}

func arg(args []int32, i int) int {
	if i < len(args) {
		return int(args[i])
	}
	return 0
}

func (in *instance) callInt(fn bfbridge.Func, args []int32) int32 {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch fn {
	case bfbridge.FuncGetErrorLength:
		return in.lastError
	case bfbridge.FuncIsCompatible:
		path, ok := in.input(args)
		if !ok {
			return -1
		}
		in.close()
		_, found := in.backend.lookup(path)
		return boolean(found)
	case bfbridge.FuncIsAnyFileOpen:
		return boolean(in.image != nil)
	case bfbridge.FuncOpen:
		path, ok := in.input(args)
		if !ok {
			return -1
		}
		in.close()
		img, found := in.backend.lookup(path)
		if !found {
			return in.fail("%s: no reader found for file", path)
		}
		in.image, in.path = &img, path
		return 1
	case bfbridge.FuncIsSingleFile:
		path, ok := in.input(args)
		if !ok {
			return -1
		}
		in.close()
		img, found := in.backend.lookup(path)
		if !found {
			return in.fail("%s: no reader found for file", path)
		}
		return boolean(!img.MultiFile)
	case bfbridge.FuncGetCurrentFile:
		if in.image == nil {
			return 0
		}
		return in.output(in.path)
	case bfbridge.FuncClose:
		in.close()
		return 1
	case bfbridge.FuncToolsShouldGenerate:
		return 1
	}

	img := in.image
	if img == nil {
		return in.fail("%s: reader is not initialized", fn)
	}

	switch fn {
	case bfbridge.FuncGetFormat:
		return in.output(img.Format)
	case bfbridge.FuncGetUsedFiles:
		files := img.usedFiles()
		if len(files)+2 > len(in.buf) {
			in.fail("Too long")
			return -2
		}
		return in.output(files)
	case bfbridge.FuncGetSeriesCount:
		return int32(img.Series)
	case bfbridge.FuncSetCurrentSeries:
		s := arg(args, 0)
		if s < 0 || s >= img.Series {
			return in.fail("series index %d out of range [0, %d)", s, img.Series)
		}
		in.series, in.resolution = s, 0
		return 1
	case bfbridge.FuncGetResolutionCount:
		return int32(img.Resolutions)
	case bfbridge.FuncSetCurrentResolution:
		r := arg(args, 0)
		if r < 0 || r >= img.Resolutions {
			return in.fail("resolution index %d out of range [0, %d)", r, img.Resolutions)
		}
		in.resolution = r
		return 1
	case bfbridge.FuncGetSizeX:
		w, _ := img.sizeAt(in.resolution)
		return int32(w)
	case bfbridge.FuncGetSizeY:
		_, h := img.sizeAt(in.resolution)
		return int32(h)
	case bfbridge.FuncGetSizeC:
		return int32(img.SizeC)
	case bfbridge.FuncGetSizeZ:
		return int32(img.SizeZ)
	case bfbridge.FuncGetSizeT:
		return int32(img.SizeT)
	case bfbridge.FuncGetEffectiveSizeC:
		return int32(img.effectiveSizeC())
	case bfbridge.FuncGetImageCount:
		return int32(img.imageCount())
	case bfbridge.FuncGetDimensionOrder:
		return in.output(img.DimensionOrder)
	case bfbridge.FuncIsOrderCertain:
		return 1
	case bfbridge.FuncGetOptimalTileWidth:
		w, _ := img.sizeAt(in.resolution)
		if img.TileWidth > 0 {
			w = min(w, img.TileWidth)
		}
		return int32(w)
	case bfbridge.FuncGetOptimalTileHeight:
		_, h := img.sizeAt(in.resolution)
		if img.TileHeight > 0 {
			h = min(h, img.TileHeight)
		}
		return int32(h)
	case bfbridge.FuncGetPixelType:
		return int32(img.PixelType)
	case bfbridge.FuncGetBitsPerPixel:
		if img.PixelType == pixel.Bit {
			return 1
		}
		return int32(8 * img.PixelType.BytesPerSample())
	case bfbridge.FuncGetBytesPerPixel:
		return int32(img.PixelType.BytesPerSample())
	case bfbridge.FuncGetRGBChannelCount:
		return int32(img.RGBChannelCount)
	case bfbridge.FuncIsRGB:
		return boolean(img.RGBChannelCount > 1)
	case bfbridge.FuncIsInterleaved:
		return boolean(img.Interleaved)
	case bfbridge.FuncIsLittleEndian:
		return boolean(img.LittleEndian)
	case bfbridge.FuncIsIndexedColor:
		return boolean(img.Indexed)
	case bfbridge.FuncIsFalseColor:
		return boolean(img.FalseColor)
	case bfbridge.FuncGet8BitLookupTable:
		return in.lookupTable(img, 1)
	case bfbridge.FuncGet16BitLookupTable:
		return in.lookupTable(img, 2)
	case bfbridge.FuncOpenBytes:
		return in.openBytes(img, arg(args, 0), arg(args, 1), arg(args, 2), arg(args, 3), arg(args, 4))
	case bfbridge.FuncOpenThumbBytes:
		return in.openThumbBytes(img, arg(args, 0), arg(args, 1), arg(args, 2))
	case bfbridge.FuncDumpOMEXMLMetadata:
		return in.output(img.OMEXML)
	default:
		return in.fail("%s is not an integer entry point", fn)
	}
}

func (in *instance) callDouble(fn bfbridge.Func, args []int32) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	var axis int
	switch fn {
	case bfbridge.FuncGetMPPX:
		axis = 0
	case bfbridge.FuncGetMPPY:
		axis = 1
	case bfbridge.FuncGetMPPZ:
		axis = 2
	default:
		in.fail("%s is not a floating point entry point", fn)
		return -1
	}
	if in.image == nil {
		in.fail("%s: reader is not initialized", fn)
		return -1
	}
	if s := arg(args, 0); s < 0 || s >= in.image.Series {
		in.fail("series index %d out of range", s)
		return -1
	}
	return in.image.MPP[axis]
}

func (in *instance) openBytes(img *Image, plane, x, y, w, h int) int32 {
	if plane < 0 || plane >= img.imageCount() {
		return in.fail("plane %d out of range [0, %d)", plane, img.imageCount())
	}
	sx, sy := img.sizeAt(in.resolution)
	if x < 0 || y < 0 || w <= 0 || h <= 0 || x+w > sx || y+h > sy {
		return in.fail("region %d,%d %dx%d outside image %dx%d", x, y, w, h, sx, sy)
	}
	size := pixel.PlaneSize(w, h, img.RGBChannelCount, img.PixelType)
	if size > len(in.buf) {
		in.fail("region needs %d bytes but the buffer holds %d", size, len(in.buf))
		return -2
	}
	return int32(img.fill(in.buf, img.PixelType, plane, x, y, w, h))
}

func (in *instance) openThumbBytes(img *Image, plane, w, h int) int32 {
	in.resolution = img.Resolutions - 1
	if plane < 0 || plane >= img.imageCount() {
		return in.fail("plane %d out of range [0, %d)", plane, img.imageCount())
	}
	if w <= 0 || h <= 0 {
		return in.fail("thumbnail size %dx%d must be positive", w, h)
	}
	t := pixel.ThumbType(img.PixelType)
	size := pixel.PlaneSize(w, h, img.RGBChannelCount, t)
	if size > len(in.buf) {
		in.fail("thumbnail needs %d bytes but the buffer holds %d", size, len(in.buf))
		return -2
	}
	return int32(img.fill(in.buf, t, plane, 0, 0, w, h))
}

func (in *instance) lookupTable(img *Image, width int) int32 {
	if !img.Indexed {
		return in.fail("image has no lookup table")
	}
	rows := img.RGBChannelCount
	if rows == 1 {
		rows = 3
	}
	entries := 256
	if width == 2 {
		entries = 65536
	}
	size := rows * entries * width
	if size > len(in.buf) {
		in.fail("lookup table needs %d bytes", size)
		return -2
	}
	for r := 0; r < rows; r++ {
		for e := 0; e < entries; e++ {
			off := (r*entries + e) * width
			if width == 1 {
				in.buf[off] = byte(e)
				continue
			}
			// little endian, matching the decoder's buffer order
			in.buf[off] = byte(e)
			in.buf[off+1] = byte(e >> 8)
		}
	}
	return int32(size)
}

// input reads the path argument from the buffer.
func (in *instance) input(args []int32) (string, bool) {
	n := arg(args, 0)
	if n < 0 || n > len(in.buf) {
		in.fail("input length %d outside buffer", n)
		return "", false
	}
	return string(in.buf[:n]), true
}

func (in *instance) output(s string) int32 {
	if len(s) > len(in.buf) {
		return in.fail("output of %d bytes does not fit the buffer", len(s))
	}
	return int32(copy(in.buf, s))
}

// fail stores msg in the buffer, truncated to leave room for a terminator,
// and returns -1.
func (in *instance) fail(format string, args ...any) int32 {
	msg := fmt.Sprintf(format, args...)
	n := min(len(msg), max(len(in.buf)-1, 0))
	copy(in.buf, msg[:n])
	in.lastError = int32(n)
	return -1
}

func (in *instance) close() {
	in.image, in.path = nil, ""
	in.series, in.resolution = 0, 0
}

func boolean(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
