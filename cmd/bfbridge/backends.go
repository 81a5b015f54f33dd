package main

import (
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/native/synthetic"
	"github.com/wippyai/bfbridge/native/wasm"
	"github.com/wippyai/bfbridge/pixel"
	"github.com/wippyai/bfbridge/resource"
)

type backend struct {
	new func(o options, log *zap.Logger) bfbridge.Native
	// builtin backends run without a resource path.
	builtin bool
}

var backends = map[string]backend{
	"wasm": {new: func(_ options, log *zap.Logger) bfbridge.Native {
		return wasm.New(&wasm.Config{Logger: log})
	}},
	"synthetic": {new: newSynthetic, builtin: true},
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// newSynthetic serves a generated slide under the requested file name.
func newSynthetic(o options, _ *zap.Logger) bfbridge.Native {
	b := synthetic.New()
	b.AddImage(o.file, synthetic.Image{
		Format:          "Synthetic pyramid",
		SizeX:           4096,
		SizeY:           3072,
		RGBChannelCount: 3,
		Interleaved:     true,
		LittleEndian:    true,
		PixelType:       pixel.Uint8,
		Resolutions:     4,
		TileWidth:       512,
		TileHeight:      512,
		MPP:             [3]float64{0.25, 0.25, 0},
	})
	return b
}

// observable backends report native handle activity to metrics.
type observable interface {
	Subscribe(resource.Observer)
}
