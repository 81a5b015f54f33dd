// Package metrics exposes runtime activity as Prometheus metrics.
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.New(reg)
//	cancel := attach.Default().Subscribe(c)
//	rt, err := runtime.New(ctx, cfg, runtime.WithNative(backend), runtime.WithHooks(c))
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
