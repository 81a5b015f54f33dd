package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/resource"
)

const namespace = "bfbridge"

// Collector exports attachment, session and native handle activity.
//
// It is an attach.Observer, a resource.Observer and a runtime.Hooks, so a
// single value can be subscribed to the registry, to a backend's handle
// table and passed to runtime.WithHooks.
type Collector struct {
	attached     prometheus.Gauge
	attachTotal  prometheus.Counter
	detachTotal  prometheus.Counter
	sessionsOpen prometheus.Gauge
	sessionTotal prometheus.Counter
	callFailures *prometheus.CounterVec
	handles      *prometheus.GaugeVec
}

// New creates a Collector and registers it with reg.
func New(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		attached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attached_threads",
			Help:      "OS threads currently attached to the runtime.",
		}),
		attachTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_attach_total",
			Help:      "Native thread attachments.",
		}),
		detachTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thread_detach_total",
			Help:      "Native thread detachments.",
		}),
		sessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Decoder sessions currently open.",
		}),
		sessionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Decoder sessions created.",
		}),
		callFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_failures_total",
			Help:      "Decoder calls that reported an error, by entry point.",
		}, []string{"func"}),
		handles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "native_handles",
			Help:      "Live native handles, by type.",
		}, []string{"type"}),
	}
	for _, col := range []prometheus.Collector{
		c.attached, c.attachTotal, c.detachTotal,
		c.sessionsOpen, c.sessionTotal, c.callFailures, c.handles,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// OnAttachEvent implements attach.Observer.
func (c *Collector) OnAttachEvent(e attach.Event) {
	switch e.Type {
	case attach.EventAttached:
		c.attached.Inc()
		c.attachTotal.Inc()
	case attach.EventDetached:
		c.attached.Dec()
		c.detachTotal.Inc()
	}
}

// OnResourceEvent implements resource.Observer.
func (c *Collector) OnResourceEvent(e resource.Event) {
	g := c.handles.WithLabelValues(e.TypeID.String())
	if e.Type == resource.EventCreated {
		g.Inc()
	} else {
		g.Dec()
	}
}

func (c *Collector) SessionOpened() {
	c.sessionsOpen.Inc()
	c.sessionTotal.Inc()
}

func (c *Collector) SessionClosed() { c.sessionsOpen.Dec() }

func (c *Collector) CallFailed(fn bfbridge.Func) {
	c.callFailures.WithLabelValues(fn.String()).Inc()
}

// Handler serves the metrics gathered by g in the text exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
