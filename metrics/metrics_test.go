package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/bfbridge"
	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/native/synthetic"
	"github.com/wippyai/bfbridge/pixel"
	"github.com/wippyai/bfbridge/resource"
	"github.com/wippyai/bfbridge/runtime"
)

func TestCollector_Runtime(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}

	b := synthetic.New()
	b.AddImage("/a.tif", synthetic.Image{SizeX: 64, SizeY: 64, PixelType: pixel.Uint8})
	b.Subscribe(c)
	registry := attach.NewRegistry()
	defer registry.Subscribe(c)()

	rt, err := runtime.New(context.Background(), runtime.Config{ResourcePath: "/opt/bf"},
		runtime.WithNative(b), runtime.WithRegistry(registry), runtime.WithHooks(c))
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}

	th, err := runtime.Attach(rt)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	s, err := runtime.NewSession(th, runtime.WithBufferSize(4096))
	if err != nil {
		t.Fatalf("session: %v", err)
	}

	if v := testutil.ToFloat64(c.attached); v != 1 {
		t.Errorf("attached_threads = %v", v)
	}
	if v := testutil.ToFloat64(c.sessionsOpen); v != 1 {
		t.Errorf("sessions_open = %v", v)
	}
	if v := testutil.ToFloat64(c.handles.WithLabelValues(resource.TypeInstance.String())); v != 1 {
		t.Errorf("native_handles{type=instance} = %v", v)
	}

	if err := s.Open("/missing.tif"); err == nil {
		t.Fatal("opening an unknown file should fail")
	}
	if v := testutil.ToFloat64(c.callFailures.WithLabelValues(bfbridge.FuncOpen.String())); v != 1 {
		t.Errorf("call_failures_total{func=bf_open} = %v", v)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("close session: %v", err)
	}
	if err := th.Close(); err != nil {
		t.Fatalf("close thread: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close runtime: %v", err)
	}

	if v := testutil.ToFloat64(c.attached); v != 0 {
		t.Errorf("attached_threads = %v after detach", v)
	}
	if v := testutil.ToFloat64(c.attachTotal); v != 1 {
		t.Errorf("thread_attach_total = %v", v)
	}
	if v := testutil.ToFloat64(c.detachTotal); v != 1 {
		t.Errorf("thread_detach_total = %v", v)
	}
	if v := testutil.ToFloat64(c.sessionsOpen); v != 0 {
		t.Errorf("sessions_open = %v after close", v)
	}
	if v := testutil.ToFloat64(c.sessionTotal); v != 1 {
		t.Errorf("sessions_total = %v", v)
	}
	for _, typ := range []resource.TypeID{resource.TypeVM, resource.TypeThread, resource.TypeInstance} {
		if v := testutil.ToFloat64(c.handles.WithLabelValues(typ.String())); v != 0 {
			t.Errorf("native_handles{type=%s} = %v after teardown", typ, v)
		}
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("registering twice should fail")
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	c.OnAttachEvent(attach.Event{ThreadID: 7, Type: attach.EventAttached})

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "bfbridge_attached_threads 1") {
		t.Errorf("metrics output missing attached gauge:\n%s", body)
	}
}
