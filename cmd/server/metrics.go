package main

import (
	"fmt"
	"net/http"

	"terrasim.io/internal/persistence/indexdb"
	"terrasim.io/internal/sim/core"
	"terrasim.io/internal/sim/world"
)

// metricsSource is what /metrics reads; every method must be safe to call
// off the tick goroutine.
type metricsSource struct {
	world       string
	worldM      func() world.Metrics
	counters    func() core.Counters
	clients     func() int
	rateLimited func() uint64
	index       func() (indexdb.Stats, bool)
	observers   func() (watchers int, dropped uint64)
}

func metricsHandler(src metricsSource) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		name := src.world
		m := src.worldM()
		c := src.counters()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP terrasim_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_tick gauge\n")
		fmt.Fprintf(rw, "terrasim_world_tick{world=%q} %d\n", name, m.Tick)

		fmt.Fprintf(rw, "# HELP terrasim_world_day Days elapsed.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_day gauge\n")
		fmt.Fprintf(rw, "terrasim_world_day{world=%q} %d\n", name, m.Day)

		fmt.Fprintf(rw, "# HELP terrasim_world_time_of_day Time unit within the current day.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_time_of_day gauge\n")
		fmt.Fprintf(rw, "terrasim_world_time_of_day{world=%q} %d\n", name, m.TimeOfDay)

		fmt.Fprintf(rw, "# HELP terrasim_world_pressure Barometric pressure.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_pressure gauge\n")
		fmt.Fprintf(rw, "terrasim_world_pressure{world=%q} %d\n", name, m.Pressure)

		fmt.Fprintf(rw, "# HELP terrasim_world_weather Current weather (1 for the active state).\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_weather gauge\n")
		fmt.Fprintf(rw, "terrasim_world_weather{world=%q,weather=%q} 1\n", name, m.Weather)

		fmt.Fprintf(rw, "# HELP terrasim_world_agents Agents in the world.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_agents gauge\n")
		fmt.Fprintf(rw, "terrasim_world_agents{world=%q} %d\n", name, m.Agents)

		fmt.Fprintf(rw, "# HELP terrasim_world_entities Entities in the world.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_world_entities gauge\n")
		fmt.Fprintf(rw, "terrasim_world_entities{world=%q} %d\n", name, m.Entities)

		fmt.Fprintf(rw, "# HELP terrasim_clients Admitted clients.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_clients gauge\n")
		fmt.Fprintf(rw, "terrasim_clients{world=%q} %d\n", name, src.clients())

		fmt.Fprintf(rw, "# HELP terrasim_ticks_total Ticks run, by outcome.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_ticks_total counter\n")
		fmt.Fprintf(rw, "terrasim_ticks_total{world=%q,outcome=%q} %d\n", name, "ok", c.Ticks-c.FailedTicks)
		fmt.Fprintf(rw, "terrasim_ticks_total{world=%q,outcome=%q} %d\n", name, "failed", c.FailedTicks)
		fmt.Fprintf(rw, "terrasim_ticks_total{world=%q,outcome=%q} %d\n", name, "skipped", c.SkippedTicks)

		fmt.Fprintf(rw, "# HELP terrasim_inbound_dropped_total Inbound messages dropped.\n")
		fmt.Fprintf(rw, "# TYPE terrasim_inbound_dropped_total counter\n")
		fmt.Fprintf(rw, "terrasim_inbound_dropped_total{world=%q,reason=%q} %d\n", name, "malformed", c.MalformedInbound)
		fmt.Fprintf(rw, "terrasim_inbound_dropped_total{world=%q,reason=%q} %d\n", name, "rate_limited", src.rateLimited())

		if src.index != nil {
			if st, ok := src.index(); ok {
				fmt.Fprintf(rw, "# HELP terrasim_index_queue_depth Index writer backlog.\n")
				fmt.Fprintf(rw, "# TYPE terrasim_index_queue_depth gauge\n")
				fmt.Fprintf(rw, "terrasim_index_queue_depth %d\n", st.QueueDepth)
				fmt.Fprintf(rw, "terrasim_index_queue_capacity %d\n", st.QueueCapacity)

				fmt.Fprintf(rw, "# HELP terrasim_index_dropped_total Index rows dropped because the queue was full.\n")
				fmt.Fprintf(rw, "# TYPE terrasim_index_dropped_total counter\n")
				fmt.Fprintf(rw, "terrasim_index_dropped_total{kind=%q} %d\n", "tick", st.DropTickTotal)
				fmt.Fprintf(rw, "terrasim_index_dropped_total{kind=%q} %d\n", "session", st.DropSessionTotal)
				fmt.Fprintf(rw, "terrasim_index_write_errors_total %d\n", st.WriteErrorTotal)
			}
		}
		if src.observers != nil {
			n, dropped := src.observers()
			fmt.Fprintf(rw, "# HELP terrasim_observers Connected observer streams.\n")
			fmt.Fprintf(rw, "# TYPE terrasim_observers gauge\n")
			fmt.Fprintf(rw, "terrasim_observers %d\n", n)
			fmt.Fprintf(rw, "terrasim_observer_dropped_total %d\n", dropped)
		}
	}
}
