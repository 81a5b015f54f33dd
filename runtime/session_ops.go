package runtime

import (
	"image"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/errors"
	"github.com/wippyai/bfbridge/pixel"
)

func (s *Session) call(fn bfbridge.Func, args ...int32) int32 {
	return s.thread.rt.native.CallInt(s.instance, s.thread.native, fn, args...)
}

// fail builds the error for a failed call from the message the decoder left
// in the buffer.
func (s *Session) fail(fn bfbridge.Func) error {
	msg := s.lastError()
	if msg == "" {
		msg = "unknown error"
	}
	rt := s.thread.rt
	rt.hooks.CallFailed(fn)
	rt.log.Warn("native call failed", zap.Stringer("op", fn), zap.String("error", msg))
	return errors.DecodeFailed(fn.String(), msg)
}

func (s *Session) lastError() string {
	n := int(s.call(bfbridge.FuncGetErrorLength))
	if n <= 0 || n > len(s.buf) {
		return ""
	}
	return strings.ToValidUTF8(string(s.buf[:n]), "\uFFFD")
}

func (s *Session) boolCall(fn bfbridge.Func, needOpen bool, args ...int32) (bool, error) {
	if err := s.guard(fn, needOpen); err != nil {
		return false, err
	}
	switch s.call(fn, args...) {
	case bfbridge.True:
		return true, nil
	case bfbridge.False:
		return false, nil
	default:
		return false, s.fail(fn)
	}
}

func (s *Session) intCall(fn bfbridge.Func, args ...int32) (int, error) {
	if err := s.guard(fn, true); err != nil {
		return 0, err
	}
	r := s.call(fn, args...)
	if r < 0 {
		return 0, s.fail(fn)
	}
	return int(r), nil
}

// bytesCall returns a view of the first n bytes of the buffer, where n is the
// call's result.
func (s *Session) bytesCall(fn bfbridge.Func, needOpen bool, args ...int32) ([]byte, error) {
	if err := s.guard(fn, needOpen); err != nil {
		return nil, err
	}
	n := int(s.call(fn, args...))
	if n < 0 {
		return nil, s.fail(fn)
	}
	if n > len(s.buf) {
		return nil, errors.New(errors.PhaseDecode, errors.KindDecode).
			Op(fn.String()).
			Detail("result of %d bytes exceeds the %d byte buffer", n, len(s.buf)).
			Build()
	}
	return s.buf[:n:n], nil
}

func (s *Session) stringCall(fn bfbridge.Func, needOpen bool) (string, error) {
	b, err := s.bytesCall(fn, needOpen)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New(errors.PhaseDecode, errors.KindDecode).
			Op(fn.String()).
			Detail("result is not valid UTF-8").
			Build()
	}
	return string(b), nil
}

// pathCall places path in the buffer and calls fn with its length.
func (s *Session) pathCall(fn bfbridge.Func, path string) (int32, error) {
	if err := s.guard(fn, false); err != nil {
		return 0, err
	}
	if path == "" {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Op(fn.String()).
			Detail("path is empty").
			Build()
	}
	if len(path) > len(s.buf) {
		return 0, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Op(fn.String()).
			Detail("path of %d bytes exceeds the %d byte buffer", len(path), len(s.buf)).
			Build()
	}
	n := copy(s.buf, path)
	return s.call(fn, int32(n)), nil
}

func (s *Session) pathBool(fn bfbridge.Func, path string) (bool, error) {
	r, err := s.pathCall(fn, path)
	if err != nil {
		return false, err
	}
	// the decoder closes any open file before checking
	s.opened = false
	switch r {
	case bfbridge.True:
		return true, nil
	case bfbridge.False:
		return false, nil
	default:
		return false, s.fail(fn)
	}
}

// IsCompatible reports whether the decoder has a reader for path. It closes
// any file open in the session.
func (s *Session) IsCompatible(path string) (bool, error) {
	return s.pathBool(bfbridge.FuncIsCompatible, path)
}

// IsSingleFile reports whether path is a complete dataset on its own. It
// closes any file open in the session.
func (s *Session) IsSingleFile(path string) (bool, error) {
	return s.pathBool(bfbridge.FuncIsSingleFile, path)
}

// IsAnyFileOpen asks the decoder whether a file is open.
func (s *Session) IsAnyFileOpen() (bool, error) {
	return s.boolCall(bfbridge.FuncIsAnyFileOpen, false)
}

// Open opens path, closing any previously open file. On failure the session
// is left with no file open.
func (s *Session) Open(path string) error {
	r, err := s.pathCall(bfbridge.FuncOpen, path)
	if err != nil {
		return err
	}
	s.opened = false
	if r != bfbridge.True {
		return s.fail(bfbridge.FuncOpen)
	}
	s.opened = true
	return nil
}

// CloseFile closes the open file. It is a no-op when none is open.
func (s *Session) CloseFile() error {
	if err := s.guard(bfbridge.FuncClose, false); err != nil {
		return err
	}
	if s.call(bfbridge.FuncClose) != bfbridge.True {
		return s.fail(bfbridge.FuncClose)
	}
	s.opened = false
	return nil
}

// Format returns the name of the reader that opened the file.
func (s *Session) Format() (string, error) {
	return s.stringCall(bfbridge.FuncGetFormat, true)
}

// CurrentFile returns the open file's path, or "" when none is open.
func (s *Session) CurrentFile() (string, error) {
	return s.stringCall(bfbridge.FuncGetCurrentFile, false)
}

// UsedFiles lists every file that makes up the open dataset.
func (s *Session) UsedFiles() ([]string, error) {
	b, err := s.bytesCall(bfbridge.FuncGetUsedFiles, true)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return strings.Split(strings.TrimSuffix(string(b), "\x00"), "\x00"), nil
}

func (s *Session) SeriesCount() (int, error) {
	return s.intCall(bfbridge.FuncGetSeriesCount)
}

// SetSeries selects a series and resets the resolution to 0.
func (s *Session) SetSeries(series int) error {
	_, err := s.setter(bfbridge.FuncSetCurrentSeries, series)
	return err
}

func (s *Session) ResolutionCount() (int, error) {
	return s.intCall(bfbridge.FuncGetResolutionCount)
}

// SetResolution selects a resolution level; 0 is the largest.
func (s *Session) SetResolution(resolution int) error {
	_, err := s.setter(bfbridge.FuncSetCurrentResolution, resolution)
	return err
}

func (s *Session) setter(fn bfbridge.Func, v int) (bool, error) {
	if v < 0 {
		return false, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Op(fn.String()).
			Detail("index must not be negative, got %d", v).
			Build()
	}
	ok, err := s.boolCall(fn, true, int32(v))
	if err == nil && !ok {
		err = s.fail(fn)
	}
	return ok, err
}

func (s *Session) SizeX() (int, error) { return s.intCall(bfbridge.FuncGetSizeX) }
func (s *Session) SizeY() (int, error) { return s.intCall(bfbridge.FuncGetSizeY) }
func (s *Session) SizeC() (int, error) { return s.intCall(bfbridge.FuncGetSizeC) }
func (s *Session) SizeZ() (int, error) { return s.intCall(bfbridge.FuncGetSizeZ) }
func (s *Session) SizeT() (int, error) { return s.intCall(bfbridge.FuncGetSizeT) }

// EffectiveSizeC is SizeC divided by the channels stored per plane.
func (s *Session) EffectiveSizeC() (int, error) {
	return s.intCall(bfbridge.FuncGetEffectiveSizeC)
}

// ImageCount is the number of planes in the current series.
func (s *Session) ImageCount() (int, error) {
	return s.intCall(bfbridge.FuncGetImageCount)
}

// DimensionOrder returns the plane ordering, e.g. "XYCZT".
func (s *Session) DimensionOrder() (string, error) {
	return s.stringCall(bfbridge.FuncGetDimensionOrder, true)
}

func (s *Session) IsOrderCertain() (bool, error) {
	return s.boolCall(bfbridge.FuncIsOrderCertain, true)
}

func (s *Session) OptimalTileWidth() (int, error) {
	return s.intCall(bfbridge.FuncGetOptimalTileWidth)
}

func (s *Session) OptimalTileHeight() (int, error) {
	return s.intCall(bfbridge.FuncGetOptimalTileHeight)
}

// PixelType returns the sample type of the current resolution.
func (s *Session) PixelType() (pixel.Type, error) {
	v, err := s.intCall(bfbridge.FuncGetPixelType)
	if err != nil {
		return 0, err
	}
	t := pixel.Type(v)
	if !t.Valid() {
		return 0, errors.New(errors.PhaseDecode, errors.KindUnsupported).
			Op(bfbridge.FuncGetPixelType.String()).
			Detail("unknown pixel type %d", v).
			Build()
	}
	return t, nil
}

func (s *Session) BitsPerPixel() (int, error) {
	return s.intCall(bfbridge.FuncGetBitsPerPixel)
}

func (s *Session) BytesPerPixel() (int, error) {
	return s.intCall(bfbridge.FuncGetBytesPerPixel)
}

// RGBChannelCount is the number of channels stored in each plane.
func (s *Session) RGBChannelCount() (int, error) {
	return s.intCall(bfbridge.FuncGetRGBChannelCount)
}

func (s *Session) IsRGB() (bool, error) {
	return s.boolCall(bfbridge.FuncIsRGB, true)
}

// IsInterleaved reports whether channels are interleaved (RGBRGB) rather
// than planar (RRGGBB).
func (s *Session) IsInterleaved() (bool, error) {
	return s.boolCall(bfbridge.FuncIsInterleaved, true)
}

func (s *Session) IsLittleEndian() (bool, error) {
	return s.boolCall(bfbridge.FuncIsLittleEndian, true)
}

func (s *Session) IsIndexedColor() (bool, error) {
	return s.boolCall(bfbridge.FuncIsIndexedColor, true)
}

func (s *Session) IsFalseColor() (bool, error) {
	return s.boolCall(bfbridge.FuncIsFalseColor, true)
}

// LookupTable8 returns the 8-bit color table, one 256-entry row per channel.
// The slice aliases the session buffer.
func (s *Session) LookupTable8() ([]byte, error) {
	return s.bytesCall(bfbridge.FuncGet8BitLookupTable, true)
}

// LookupTable16 returns the 16-bit color table as little endian shorts, one
// 65536-entry row per channel. The slice aliases the session buffer.
func (s *Session) LookupTable16() ([]byte, error) {
	return s.bytesCall(bfbridge.FuncGet16BitLookupTable, true)
}

// OpenBytes reads a w×h region of plane at (x, y) in the current resolution.
// The result holds w*h*RGBChannelCount*BytesPerPixel bytes and aliases the
// session buffer.
func (s *Session) OpenBytes(plane, x, y, w, h int) ([]byte, error) {
	if plane < 0 || x < 0 || y < 0 || w <= 0 || h <= 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Op(bfbridge.FuncOpenBytes.String()).
			Detail("invalid region plane=%d x=%d y=%d w=%d h=%d", plane, x, y, w, h).
			Build()
	}
	return s.bytesCall(bfbridge.FuncOpenBytes, true,
		int32(plane), int32(x), int32(y), int32(w), int32(h))
}

// OpenThumbBytes renders plane as a w×h thumbnail from the lowest
// resolution, which it selects as a side effect. Use pixel.ThumbSize to pick
// w and h. Signed pixel types come back unsigned (pixel.ThumbType).
func (s *Session) OpenThumbBytes(plane, w, h int) ([]byte, error) {
	if plane < 0 || w <= 0 || h <= 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Op(bfbridge.FuncOpenThumbBytes.String()).
			Detail("invalid thumbnail plane=%d w=%d h=%d", plane, w, h).
			Build()
	}
	return s.bytesCall(bfbridge.FuncOpenThumbBytes, true, int32(plane), int32(w), int32(h))
}

// MPPX returns microns per pixel along X for series, or 0 when the file
// does not define it.
func (s *Session) MPPX(series int) (float64, error) {
	return s.mpp(bfbridge.FuncGetMPPX, series)
}

// MPPY is MPPX for the Y axis.
func (s *Session) MPPY(series int) (float64, error) {
	return s.mpp(bfbridge.FuncGetMPPY, series)
}

// MPPZ is MPPX for the Z axis.
func (s *Session) MPPZ(series int) (float64, error) {
	return s.mpp(bfbridge.FuncGetMPPZ, series)
}

func (s *Session) mpp(fn bfbridge.Func, series int) (float64, error) {
	if err := s.guard(fn, true); err != nil {
		return 0, err
	}
	rt := s.thread.rt
	v := rt.native.CallDouble(s.instance, s.thread.native, fn, int32(series))
	if v < 0 {
		return 0, s.fail(fn)
	}
	return v, nil
}

// DumpOMEXML returns the open file's metadata as OME-XML.
func (s *Session) DumpOMEXML() (string, error) {
	return s.stringCall(bfbridge.FuncDumpOMEXMLMetadata, true)
}

// ToolsShouldGenerate reports whether the decoder asks tools to generate
// derived metadata for the open file.
func (s *Session) ToolsShouldGenerate() (bool, error) {
	return s.boolCall(bfbridge.FuncToolsShouldGenerate, false)
}

// LastError returns the message of the most recent failed call, or "".
func (s *Session) LastError() string {
	if s.guard(bfbridge.FuncGetErrorLength, false) != nil {
		return ""
	}
	return s.lastError()
}

func (s *Session) layout(w, h int, thumb bool) (pixel.Layout, error) {
	t, err := s.PixelType()
	if err != nil {
		return pixel.Layout{}, err
	}
	if thumb {
		t = pixel.ThumbType(t)
	}
	channels, err := s.RGBChannelCount()
	if err != nil {
		return pixel.Layout{}, err
	}
	interleaved, err := s.IsInterleaved()
	if err != nil {
		return pixel.Layout{}, err
	}
	little, err := s.IsLittleEndian()
	if err != nil {
		return pixel.Layout{}, err
	}
	return pixel.Layout{
		Width:        w,
		Height:       h,
		Channels:     channels,
		Type:         t,
		Interleaved:  interleaved,
		LittleEndian: little,
	}, nil
}

// OpenImage reads a region like OpenBytes and converts it to an 8-bit image.
// The image does not alias the session buffer.
func (s *Session) OpenImage(plane, x, y, w, h int) (image.Image, error) {
	l, err := s.layout(w, h, false)
	if err != nil {
		return nil, err
	}
	b, err := s.OpenBytes(plane, x, y, w, h)
	if err != nil {
		return nil, err
	}
	return pixel.ToImage(b, l)
}

// OpenThumbImage renders a thumbnail of plane that fits within maxW×maxH,
// keeping the aspect ratio of the current resolution.
func (s *Session) OpenThumbImage(plane, maxW, maxH int) (image.Image, error) {
	sx, err := s.SizeX()
	if err != nil {
		return nil, err
	}
	sy, err := s.SizeY()
	if err != nil {
		return nil, err
	}
	w, h := pixel.ThumbSize(sx, sy, maxW, maxH)
	l, err := s.layout(w, h, true)
	if err != nil {
		return nil, err
	}
	b, err := s.OpenThumbBytes(plane, w, h)
	if err != nil {
		return nil, err
	}
	return pixel.ToImage(b, l)
}
