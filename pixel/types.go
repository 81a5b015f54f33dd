package pixel

import "fmt"

// Type is a decoder pixel type. Values match the decoder's numbering.
type Type int32

const (
	Int8 Type = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Float
	Double
	Bit
)

var typeNames = [...]string{
	Int8:   "int8",
	Uint8:  "uint8",
	Int16:  "int16",
	Uint16: "uint16",
	Int32:  "int32",
	Uint32: "uint32",
	Float:  "float",
	Double: "double",
	Bit:    "bit",
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("pixel.Type(%d)", int32(t))
	}
	return typeNames[t]
}

// Valid reports whether t is a known pixel type.
func (t Type) Valid() bool {
	return t >= Int8 && t <= Bit
}

// BytesPerSample returns the storage size of one channel sample. Bit samples
// occupy one byte each.
func (t Type) BytesPerSample() int {
	switch t {
	case Int8, Uint8, Bit:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

// Signed reports whether samples are two's complement integers.
func (t Type) Signed() bool {
	return t == Int8 || t == Int16 || t == Int32
}

// IsFloat reports whether samples are IEEE 754.
func (t Type) IsFloat() bool {
	return t == Float || t == Double
}

// ThumbType returns the pixel type of thumbnails generated for t. The decoder
// never produces signed thumbnails.
func ThumbType(t Type) Type {
	if t.Signed() {
		return t + 1
	}
	return t
}

// ThumbSize fits an image of imgW×imgH into maxW×maxH preserving aspect
// ratio. It never upscales beyond the image's own size.
func ThumbSize(imgW, imgH, maxW, maxH int) (w, h int) {
	if imgW <= 0 || imgH <= 0 {
		return 0, 0
	}
	yOverX := float64(imgH) / float64(imgW)
	xOverY := 1 / yOverX
	w = min(maxW, roundInt(float64(maxH)*xOverY))
	h = min(maxH, roundInt(float64(maxW)*yOverX))
	if h > imgH || w > imgW {
		return imgW, imgH
	}
	return w, h
}

// PlaneSize returns the byte length of a w×h region with the given channel
// count.
func PlaneSize(w, h, channels int, t Type) int {
	return w * h * channels * t.BytesPerSample()
}
