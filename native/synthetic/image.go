package synthetic

import (
	"fmt"
	"strings"

	"github.com/wippyai/bfbridge/pixel"
)

// Image describes a generated image served by the backend. Zero fields take
// the defaults applied by normalize.
type Image struct {
	Format         string
	DimensionOrder string
	OMEXML         string
	UsedFiles      []string
	SizeX, SizeY   int
	SizeZ, SizeT   int
	// SizeC is the total channel count. RGBChannelCount channels are stored
	// per plane.
	SizeC           int
	RGBChannelCount int
	PixelType       pixel.Type
	Series          int
	Resolutions     int
	TileWidth       int
	TileHeight      int
	// MPP holds microns per pixel for X, Y and Z. Zero means undefined.
	MPP          [3]float64
	Interleaved  bool
	LittleEndian bool
	Indexed      bool
	FalseColor   bool
	MultiFile    bool
}

func (img Image) normalize(path string) Image {
	if img.Format == "" {
		img.Format = "Synthetic"
	}
	if img.DimensionOrder == "" {
		img.DimensionOrder = "XYCZT"
	}
	if img.SizeZ <= 0 {
		img.SizeZ = 1
	}
	if img.SizeT <= 0 {
		img.SizeT = 1
	}
	if img.RGBChannelCount <= 0 {
		img.RGBChannelCount = 1
	}
	if img.SizeC < img.RGBChannelCount {
		img.SizeC = img.RGBChannelCount
	}
	if img.Series <= 0 {
		img.Series = 1
	}
	if img.Resolutions <= 0 {
		img.Resolutions = 1
	}
	if len(img.UsedFiles) == 0 {
		img.UsedFiles = []string{path}
	}
	if img.OMEXML == "" {
		img.OMEXML = fmt.Sprintf(
			`<OME><Image ID="Image:0"><Pixels DimensionOrder=%q Type=%q SizeX="%d" SizeY="%d" SizeZ="%d" SizeC="%d" SizeT="%d"/></Image></OME>`,
			img.DimensionOrder, img.PixelType, img.SizeX, img.SizeY, img.SizeZ, img.SizeC, img.SizeT)
	}
	return img
}

func (img *Image) sizeAt(resolution int) (w, h int) {
	w, h = img.SizeX>>resolution, img.SizeY>>resolution
	return max(w, 1), max(h, 1)
}

func (img *Image) effectiveSizeC() int {
	return img.SizeC / img.RGBChannelCount
}

func (img *Image) imageCount() int {
	return img.SizeZ * img.SizeT * img.effectiveSizeC()
}

func (img *Image) usedFiles() string {
	var b strings.Builder
	for _, f := range img.UsedFiles {
		b.WriteString(f)
		b.WriteByte(0)
	}
	return b.String()
}

// fill writes a deterministic w×h region of plane into dst and returns the
// number of bytes written. Sample values depend on absolute coordinates so
// tiles of the same plane agree where they overlap.
func (img *Image) fill(dst []byte, t pixel.Type, plane, x, y, w, h int) int {
	bps := t.BytesPerSample()
	channels := img.RGBChannelCount
	n := 0
	put := func(px, py, c int) {
		v := byte(px + py + 64*c + plane)
		for k := 0; k < bps; k++ {
			dst[n] = v
			n++
		}
	}
	if img.Interleaved {
		for py := y; py < y+h; py++ {
			for px := x; px < x+w; px++ {
				for c := 0; c < channels; c++ {
					put(px, py, c)
				}
			}
		}
		return n
	}
	for c := 0; c < channels; c++ {
		for py := y; py < y+h; py++ {
			for px := x; px < x+w; px++ {
				put(px, py, c)
			}
		}
	}
	return n
}
