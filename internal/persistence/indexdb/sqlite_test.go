package indexdb

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"terrasim.io/internal/sim/core"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: core.TickRecord{Tick: 1}}

	_ = s.WriteTick(core.TickRecord{Tick: 2})
	_ = s.WriteSession(core.SessionEvent{Tick: 2, Kind: core.SessionJoin})
	_ = s.WriteSession(core.SessionEvent{Tick: 2, Kind: core.SessionLeave})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropSessionTotal != 2 {
		t.Fatalf("DropSessionTotal=%d want=2", st.DropSessionTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	run := idx.Run()
	if err := idx.RecordSettings("basic", map[string]int{"max_clients": 3}); err != nil {
		t.Fatalf("RecordSettings: %v", err)
	}
	weathers := []string{"Sunny", "Sunny", "Rainy"}
	for i, w := range weathers {
		_ = idx.WriteTick(core.TickRecord{Tick: uint64(i + 1), Weather: w, Light: "High", Agents: 1, Commands: i})
	}
	_ = idx.WriteSession(core.SessionEvent{Tick: 1, ClientID: 0, Agent: "agent_0", Kind: core.SessionJoin})
	_ = idx.WriteSession(core.SessionEvent{Tick: 1, ClientID: 1, Kind: core.SessionKick, Reason: "server full"})
	_ = idx.WriteSession(core.SessionEvent{Tick: 3, ClientID: 0, Agent: "agent_0", Kind: core.SessionLeave})
	_ = idx.WriteTick(core.TickRecord{Tick: 4, Weather: "Rainy", Error: "boom"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	ctx := context.Background()

	latest, ok, err := idx.LatestRun(ctx)
	if err != nil || !ok || latest != run {
		t.Fatalf("LatestRun=%d,%v,%v want %d", latest, ok, err, run)
	}

	ticks, err := idx.RecentTicks(ctx, run, 2)
	if err != nil {
		t.Fatalf("RecentTicks: %v", err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 4 || ticks[1].Tick != 3 {
		t.Fatalf("ticks=%+v", ticks)
	}
	if ticks[0].Error != "boom" || ticks[1].Commands != 2 {
		t.Fatalf("ticks=%+v", ticks)
	}

	all, err := idx.Sessions(ctx, run, -1)
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("sessions=%+v", all)
	}
	if all[1].Kind != core.SessionKick || all[1].Seq != 1 || all[1].Reason != "server full" {
		t.Fatalf("kick row=%+v", all[1])
	}
	mine, err := idx.Sessions(ctx, run, 0)
	if err != nil {
		t.Fatalf("Sessions(0): %v", err)
	}
	if len(mine) != 2 || mine[1].Kind != core.SessionLeave {
		t.Fatalf("client 0 sessions=%+v", mine)
	}

	hist, err := idx.WeatherHistogram(ctx, run)
	if err != nil {
		t.Fatalf("WeatherHistogram: %v", err)
	}
	if len(hist) != 2 || hist[0].Weather != "Rainy" || hist[0].Ticks != 2 || hist[1].Ticks != 2 {
		t.Fatalf("hist=%+v", hist)
	}

	world, js, err := idx.SettingsJSON(ctx, run)
	if err != nil {
		t.Fatalf("SettingsJSON: %v", err)
	}
	if world != "basic" || !strings.Contains(js, `"max_clients":3`) {
		t.Fatalf("settings=%s %s", world, js)
	}
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	if _, err := OpenSQLite(""); err == nil {
		t.Fatalf("expected error")
	}
}
