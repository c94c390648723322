package telemetry

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/dockd/internal/dock"
)

func TestObserve_CountsByTypeAndResult(t *testing.T) {
	c := New("test")

	c.Observe(dock.Event{Type: dock.EventControllerCreated})
	c.Observe(dock.Event{Type: dock.EventControllerCreated})
	c.Observe(dock.Event{Type: dock.EventProbeFailed, Err: errors.New("busy")})

	tests := []struct {
		typ    dock.EventType
		result string
		want   float64
	}{
		{dock.EventControllerCreated, "ok", 2},
		{dock.EventProbeFailed, "error", 1},
		{dock.EventProbeFailed, "ok", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.events.WithLabelValues(string(tt.typ), tt.result))
		if got != tt.want {
			t.Errorf("events{%s,%s} = %v, want %v", tt.typ, tt.result, got, tt.want)
		}
	}
}

func TestObserve_RecordsDuration(t *testing.T) {
	c := New("test")

	c.Observe(dock.Event{Type: dock.EventRebooted, Duration: 300 * time.Millisecond})
	c.Observe(dock.Event{Type: dock.EventTeardown})

	if n := testutil.CollectAndCount(c.durations); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestGauge(t *testing.T) {
	c := New("test")
	depth := 3

	if err := c.Gauge("hotplug_queue_depth", "Queued hotplug events.", func() int { return depth }); err != nil {
		t.Fatalf("Gauge() error = %v", err)
	}
	if err := c.Gauge("hotplug_queue_depth", "again", func() int { return 0 }); err == nil {
		t.Error("duplicate Gauge() registration returned nil error")
	}

	want := `
# HELP dockd_hotplug_queue_depth Queued hotplug events.
# TYPE dockd_hotplug_queue_depth gauge
dockd_hotplug_queue_depth 3
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(want), "dockd_hotplug_queue_depth"); err != nil {
		t.Error(err)
	}
}

func TestHandler(t *testing.T) {
	c := New("dockd-test")
	c.Observe(dock.Event{Type: dock.EventTeardown})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	for _, want := range []string{
		`dockd_dock_events_total{daemon_id="dockd-test",result="ok",type="teardown"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
