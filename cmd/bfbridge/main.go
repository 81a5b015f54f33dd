package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/wippyai/bfbridge/runtime"
)

func main() {
	var o options
	flag.StringVar(&o.file, "file", "", "Image file to read")
	flag.StringVar(&o.backend, "backend", "wasm", "Decoder backend ("+strings.Join(backendNames(), ", ")+")")
	flag.StringVar(&o.resources, "resources", "", "Decoder resource path (overrides "+runtime.EnvResourcePath+")")
	flag.StringVar(&o.cache, "cache", "", "Cache directory (overrides "+runtime.EnvCachePath+")")
	flag.StringVar(&o.configFile, "config", "", "YAML config file")
	flag.IntVar(&o.buffer, "buffer", 0, "Communication buffer size in bytes")
	flag.IntVar(&o.series, "series", 0, "Series to read")
	flag.IntVar(&o.resolution, "resolution", 0, "Resolution level to read")
	flag.BoolVar(&o.info, "info", false, "Print metadata as YAML (default action)")
	flag.BoolVar(&o.xml, "xml", false, "Print OME-XML metadata")
	flag.StringVar(&o.tile, "tile", "", "Read region x,y,w,h into -out (PNG)")
	flag.StringVar(&o.thumb, "thumb", "", "Read a thumbnail fitting WxH into -out (PNG)")
	flag.IntVar(&o.tiles, "tiles", 0, "Export every SIZE x SIZE tile of the level into the -out directory")
	flag.StringVar(&o.out, "out", "", "Output file or directory")
	flag.IntVar(&o.workers, "workers", 1, "Decoder sessions to run in parallel")
	flag.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&o.verbose, "v", false, "Verbose logging")
	flag.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	flag.Parse()

	if o.file == "" {
		fmt.Fprintln(os.Stderr, "Usage: bfbridge -file <image> [-backend wasm|jni|synthetic] [-info|-xml]")
		fmt.Fprintln(os.Stderr, "       bfbridge -file <image> -tile x,y,w,h -out tile.png")
		fmt.Fprintln(os.Stderr, "       bfbridge -file <image> -thumb 256x256 -out thumb.png")
		fmt.Fprintln(os.Stderr, "       bfbridge -file <image> -tiles 512 -workers 4 -out tiles/")
		fmt.Fprintln(os.Stderr, "       bfbridge -file <image> -i  (interactive mode)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
