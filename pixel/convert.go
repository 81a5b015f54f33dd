package pixel

import (
	"encoding/binary"
	"image"
	"image/color"
	"math"

	"github.com/wippyai/bfbridge/errors"
)

// Layout describes a raw plane buffer.
type Layout struct {
	Width        int
	Height       int
	Channels     int
	Type         Type
	Interleaved  bool
	LittleEndian bool
}

// ToImage converts a raw plane buffer into an 8-bit image: *image.Gray for
// one channel, *image.RGBA for three, *image.NRGBA for four.
func ToImage(buf []byte, l Layout) (image.Image, error) {
	if !l.Type.Valid() {
		return nil, errors.InvalidInput(errors.PhaseDecode, "unknown pixel type "+l.Type.String())
	}
	if l.Width <= 0 || l.Height <= 0 {
		return nil, errors.InvalidInput(errors.PhaseDecode, "image dimensions must be positive")
	}
	if l.Type == Bit && l.Channels != 1 {
		return nil, errors.Unsupported(errors.PhaseDecode, "bit pixel type is only supported for single-channel images")
	}
	if l.Channels != 1 && l.Channels != 3 && l.Channels != 4 {
		return nil, errors.Unsupported(errors.PhaseDecode, "only 1, 3 or 4 channels are supported")
	}
	want := PlaneSize(l.Width, l.Height, l.Channels, l.Type)
	if len(buf) != want {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			Detail("expected %d*%d*%d*%d = %d bytes, got %d",
				l.Width, l.Height, l.Channels, l.Type.BytesPerSample(), want, len(buf)).
			Build()
	}

	samples := to8Bit(buf, l)
	pixels := l.Width * l.Height
	rect := image.Rect(0, 0, l.Width, l.Height)

	at := func(p, c int) uint8 {
		if l.Interleaved {
			return samples[p*l.Channels+c]
		}
		return samples[c*pixels+p]
	}

	switch l.Channels {
	case 1:
		img := image.NewGray(rect)
		for p := 0; p < pixels; p++ {
			img.Pix[p] = at(p, 0)
		}
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for p := 0; p < pixels; p++ {
			img.Pix[4*p+0] = at(p, 0)
			img.Pix[4*p+1] = at(p, 1)
			img.Pix[4*p+2] = at(p, 2)
			img.Pix[4*p+3] = 0xff
		}
		return img, nil
	default:
		img := image.NewNRGBA(rect)
		for p := 0; p < pixels; p++ {
			img.SetNRGBA(p%l.Width, p/l.Width, color.NRGBA{
				R: at(p, 0), G: at(p, 1), B: at(p, 2), A: at(p, 3),
			})
		}
		return img, nil
	}
}

// to8Bit reduces every sample to 8 bits in buffer order.
func to8Bit(buf []byte, l Layout) []uint8 {
	bps := l.Type.BytesPerSample()
	n := len(buf) / bps
	out := make([]uint8, n)

	var order binary.ByteOrder = binary.BigEndian
	if l.LittleEndian {
		order = binary.LittleEndian
	}

	switch l.Type {
	case Bit:
		for i, b := range buf {
			if b != 0 {
				out[i] = 0xff
			}
		}
	case Int8:
		for i, b := range buf {
			out[i] = b ^ 0x80
		}
	case Uint8:
		copy(out, buf)
	case Int16, Uint16:
		for i := 0; i < n; i++ {
			v := order.Uint16(buf[2*i:])
			if l.Type == Int16 {
				v += 1 << 15
			}
			out[i] = clamp8(math.RoundToEven(float64(v) / 256))
		}
	case Int32, Uint32:
		for i := 0; i < n; i++ {
			v := order.Uint32(buf[4*i:])
			if l.Type == Int32 {
				v += 1 << 31
			}
			out[i] = clamp8(math.RoundToEven(float64(v) / 65536 / 256))
		}
	case Float, Double:
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			if l.Type == Float {
				vals[i] = float64(math.Float32frombits(order.Uint32(buf[4*i:])))
			} else {
				vals[i] = math.Float64frombits(order.Uint64(buf[8*i:]))
			}
		}
		normalize(vals)
		for i, v := range vals {
			out[i] = clamp8(math.RoundToEven(v * 255.4999))
		}
	}
	return out
}

// normalize rescales vals into [0, 1] unless they already lie within it.
func normalize(vals []float64) {
	if len(vals) == 0 {
		return
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo >= 0 && hi <= 1 {
		return
	}
	span := hi - lo
	for i := range vals {
		if span == 0 {
			vals[i] = 0
			continue
		}
		vals[i] = (vals[i] - lo) / span
	}
}

func clamp8(v float64) uint8 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func roundInt(v float64) int {
	return int(math.RoundToEven(v))
}
