package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/metrics"
	"github.com/wippyai/bfbridge/runtime"
)

type options struct {
	file        string
	backend     string
	resources   string
	cache       string
	configFile  string
	tile        string
	thumb       string
	out         string
	metricsAddr string
	buffer      int
	series      int
	resolution  int
	tiles       int
	workers     int
	info        bool
	xml         bool
	interactive bool
	verbose     bool
}

func run(ctx context.Context, o options, stdout io.Writer) (err error) {
	log := newLogger(o.verbose)
	defer func() { _ = log.Sync() }()

	be, ok := backends[o.backend]
	if !ok {
		return fmt.Errorf("unknown backend %q (available: %s)", o.backend, strings.Join(backendNames(), ", "))
	}
	cfg, err := loadConfig(o, be.builtin)
	if err != nil {
		return err
	}
	if o.interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode needs a terminal")
	}

	native := be.new(o, log)
	rtOpts := []runtime.Option{runtime.WithNative(native), runtime.WithLogger(log)}
	if o.metricsAddr != "" {
		c, stopMetrics, err := serveMetrics(o.metricsAddr, native, log)
		if err != nil {
			return err
		}
		defer stopMetrics()
		rtOpts = append(rtOpts, runtime.WithHooks(c))
	}

	rt, err := runtime.New(ctx, cfg, rtOpts...)
	if err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}
	defer func() { err = stderrors.Join(err, rt.Close()) }()

	pool, err := runtime.NewPool(rt, max(o.workers, 1))
	if err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	defer func() { err = stderrors.Join(err, pool.Close()) }()

	r := &reader{pool: pool, opts: o}
	switch {
	case o.interactive:
		return runInteractive(ctx, r)
	case o.xml:
		return r.printXML(ctx, stdout)
	case o.tile != "":
		return r.writeTile(ctx)
	case o.thumb != "":
		return r.writeThumb(ctx)
	case o.tiles > 0:
		return r.exportTiles(ctx)
	default:
		return r.printInfo(ctx, stdout)
	}
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// loadConfig layers the config file, the environment and flags, in that
// order of precedence from lowest to highest.
func loadConfig(o options, builtin bool) (runtime.Config, error) {
	var cfg runtime.Config
	if o.configFile != "" {
		fileCfg, err := runtime.LoadConfig(o.configFile)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg
	}
	cfg = cfg.Merge(runtime.ConfigFromEnv())
	cfg = cfg.Merge(runtime.Config{ResourcePath: o.resources, CachePath: o.cache, BufferSize: o.buffer})
	if builtin && cfg.ResourcePath == "" {
		cfg.ResourcePath = "builtin"
	}
	return cfg, cfg.Validate()
}

func serveMetrics(addr string, native bfbridge.Native, log *zap.Logger) (*metrics.Collector, func(), error) {
	reg := prometheus.NewRegistry()
	c, err := metrics.New(reg)
	if err != nil {
		return nil, nil, err
	}
	cancel := attach.Default().Subscribe(c)
	if ob, ok := native.(observable); ok {
		ob.Subscribe(c)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return c, func() {
		cancel()
		_ = srv.Close()
	}, nil
}

// reader runs every decoder call on the pool, opening the file lazily in
// each worker's session.
type reader struct {
	pool *runtime.Pool
	opts options
}

func (r *reader) do(ctx context.Context, fn func(*runtime.Session) error) error {
	return r.pool.Do(ctx, func(s *runtime.Session) error {
		if err := r.ensureOpen(s); err != nil {
			return err
		}
		return fn(s)
	})
}

func (r *reader) ensureOpen(s *runtime.Session) error {
	if s.IsOpen() {
		return nil
	}
	if err := s.Open(r.opts.file); err != nil {
		return err
	}
	if r.opts.series != 0 {
		if err := s.SetSeries(r.opts.series); err != nil {
			return err
		}
	}
	if r.opts.resolution != 0 {
		if err := s.SetResolution(r.opts.resolution); err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) printInfo(ctx context.Context, w io.Writer) error {
	var md runtime.Metadata
	err := r.do(ctx, func(s *runtime.Session) error {
		var err error
		md, err = s.Metadata()
		return err
	})
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(md); err != nil {
		return err
	}
	return enc.Close()
}

func (r *reader) printXML(ctx context.Context, w io.Writer) error {
	var xml string
	err := r.do(ctx, func(s *runtime.Session) error {
		var err error
		xml, err = s.DumpOMEXML()
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, xml)
	return err
}

func (r *reader) writeTile(ctx context.Context) error {
	v, err := parseInts(r.opts.tile, ",", 4)
	if err != nil {
		return fmt.Errorf("-tile: %w", err)
	}
	var img image.Image
	err = r.do(ctx, func(s *runtime.Session) error {
		var err error
		img, err = s.OpenImage(0, v[0], v[1], v[2], v[3])
		return err
	})
	if err != nil {
		return err
	}
	return writePNG(r.opts.out, img)
}

func (r *reader) writeThumb(ctx context.Context) error {
	v, err := parseInts(r.opts.thumb, "x", 2)
	if err != nil {
		return fmt.Errorf("-thumb: %w", err)
	}
	var img image.Image
	err = r.do(ctx, func(s *runtime.Session) error {
		var err error
		img, err = s.OpenThumbImage(0, v[0], v[1])
		return err
	})
	if err != nil {
		return err
	}
	return writePNG(r.opts.out, img)
}

// exportTiles writes the level as a grid of PNG tiles named
// tile_<col>_<row>.png, decoding them in parallel across the pool.
func (r *reader) exportTiles(ctx context.Context) error {
	if r.opts.out == "" {
		return fmt.Errorf("-tiles needs an -out directory")
	}
	if err := os.MkdirAll(r.opts.out, 0o755); err != nil {
		return err
	}
	var width, height int
	err := r.do(ctx, func(s *runtime.Session) error {
		var err error
		if width, err = s.SizeX(); err != nil {
			return err
		}
		height, err = s.SizeY()
		return err
	})
	if err != nil {
		return err
	}

	size := r.opts.tiles
	grid := tileGrid(width, height, size)
	return r.pool.Run(ctx, len(grid), func(i int, s *runtime.Session) error {
		if err := r.ensureOpen(s); err != nil {
			return err
		}
		t := grid[i]
		img, err := s.OpenImage(0, t.Min.X, t.Min.Y, t.Dx(), t.Dy())
		if err != nil {
			return err
		}
		name := fmt.Sprintf("tile_%d_%d.png", t.Min.X/size, t.Min.Y/size)
		return writePNG(filepath.Join(r.opts.out, name), img)
	})
}

// tileGrid covers a w×h plane with size×size tiles, clipping the last
// column and row.
func tileGrid(w, h, size int) []image.Rectangle {
	var out []image.Rectangle
	for y := 0; y < h; y += size {
		for x := 0; x < w; x += size {
			out = append(out, image.Rect(x, y, min(x+size, w), min(y+size, h)))
		}
	}
	return out
}

func parseInts(s, sep string, n int) ([]int, error) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return nil, fmt.Errorf("want %d values separated by %q, got %q", n, sep, s)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func writePNG(path string, img image.Image) error {
	if path == "" {
		return fmt.Errorf("no -out file given")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
