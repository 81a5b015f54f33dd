package main

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/bfbridge/attach"
	"github.com/wippyai/bfbridge/runtime"
)

func newTestReader(t *testing.T) *reader {
	t.Helper()
	o := options{file: "/slides/sample.svs"}
	rt, err := runtime.New(context.Background(), runtime.Config{ResourcePath: "builtin"},
		runtime.WithNative(newSynthetic(o, nil)), runtime.WithRegistry(attach.NewRegistry()))
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	pool, err := runtime.NewPool(rt, 1, runtime.WithBufferSize(1<<20))
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("close pool: %v", err)
		}
		if err := rt.Close(); err != nil {
			t.Errorf("close runtime: %v", err)
		}
	})
	return &reader{pool: pool, opts: o}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func queryIndex(t *testing.T, name string) int {
	t.Helper()
	for i, q := range queries {
		if q.name == name {
			return i
		}
	}
	t.Fatalf("no query %q", name)
	return -1
}

func TestInteractiveModel_Flow(t *testing.T) {
	m := newInteractiveModel(context.Background(), newTestReader(t))
	if !strings.Contains(m.View(), "Opening") {
		t.Errorf("view before load = %q", m.View())
	}

	m.Update(m.Init()())
	if !m.loaded || m.format != "Synthetic pyramid" {
		t.Fatalf("loaded=%v format=%q err=%v", m.loaded, m.format, m.err)
	}

	for i := 0; i < queryIndex(t, "set-resolution"); i++ {
		m.Update(key("down"))
	}
	m.Update(key("enter"))
	if m.state != stateInputArgs || len(m.inputs) != 1 {
		t.Fatalf("state = %v, inputs = %d", m.state, len(m.inputs))
	}
	m.inputs[0].SetValue("2")

	_, cmd := m.Update(key("enter"))
	if cmd == nil {
		t.Fatal("enter did not run the query")
	}
	m.Update(cmd())
	if m.state != stateShowResult || m.err != nil {
		t.Fatalf("state = %v, err = %v", m.state, m.err)
	}
	if m.result != "1024 x 768" {
		t.Errorf("result = %q", m.result)
	}
	if !strings.Contains(m.View(), "set-resolution") {
		t.Errorf("view = %q", m.View())
	}

	m.Update(key("esc"))
	if m.state != stateSelect || m.inputs != nil {
		t.Errorf("esc left state %v", m.state)
	}

	_, cmd = m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q did not quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestInteractiveModel_QueryErrors(t *testing.T) {
	m := newInteractiveModel(context.Background(), newTestReader(t))
	m.Update(m.Init()())

	m.selected = queryIndex(t, "set-series")
	m.Update(key("enter"))
	m.inputs[0].SetValue("7")
	_, cmd := m.Update(key("enter"))
	m.Update(cmd())
	if m.state != stateShowResult || m.err == nil {
		t.Fatalf("state = %v, err = %v", m.state, m.err)
	}

	m.Update(key("enter"))
	m.selected = queryIndex(t, "read-region")
	m.Update(key("enter"))
	m.inputs[1].SetValue("x")
	_, cmd = m.Update(key("enter"))
	m.Update(cmd())
	if m.err == nil || !strings.Contains(m.err.Error(), "bad number") {
		t.Errorf("err = %v", m.err)
	}
}

func TestQueries_NoArgs(t *testing.T) {
	r := newTestReader(t)
	for _, name := range []string{"metadata", "ome-xml", "used-files"} {
		q := queries[queryIndex(t, name)]
		var out string
		err := r.do(context.Background(), func(s *runtime.Session) error {
			var err error
			out, err = q.run(s, nil)
			return err
		})
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if out == "" {
			t.Errorf("%s returned nothing", name)
		}
	}
}

func TestSummarizeBytes(t *testing.T) {
	got := summarizeBytes([]byte{1, 2, 0xff})
	if got != "3 bytes\n01 02 ff" {
		t.Errorf("summarizeBytes = %q", got)
	}
}
