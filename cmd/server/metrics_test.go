package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"terrasim.io/internal/persistence/indexdb"
	"terrasim.io/internal/sim/core"
	"terrasim.io/internal/sim/world"
)

func TestMetricsHandler(t *testing.T) {
	src := metricsSource{
		world:       "meadow",
		worldM:      func() world.Metrics { return world.Metrics{Tick: 42, Weather: "Rainy", Agents: 2} },
		counters:    func() core.Counters { return core.Counters{Ticks: 42, FailedTicks: 2, MalformedInbound: 5} },
		clients:     func() int { return 2 },
		rateLimited: func() uint64 { return 7 },
		index:       func() (indexdb.Stats, bool) { return indexdb.Stats{QueueCapacity: 64, DropTickTotal: 1}, true },
	}
	rw := httptest.NewRecorder()
	metricsHandler(src)(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rw.Body.String()
	for _, want := range []string{
		`terrasim_world_tick{world="meadow"} 42`,
		`terrasim_world_weather{world="meadow",weather="Rainy"} 1`,
		`terrasim_clients{world="meadow"} 2`,
		`terrasim_ticks_total{world="meadow",outcome="ok"} 40`,
		`terrasim_inbound_dropped_total{world="meadow",reason="rate_limited"} 7`,
		`terrasim_index_queue_capacity 64`,
		`terrasim_index_dropped_total{kind="tick"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Contains(body, "terrasim_observers") {
		t.Fatalf("observer metrics without an observer source")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.3:22":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
