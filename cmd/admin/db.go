package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"terrasim.io/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional; defaults to <data>/index/terrasim.sqlite)")
	run := fs.Int64("run", 0, "server run (optional; defaults to the latest)")
	limit := fs.Int("limit", 20, "result limit (ticks)")
	client := fs.Int("client", -1, "client id filter (sessions)")
	_ = fs.Parse(args)

	q := "ticks"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "terrasim.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()
	ctx := context.Background()

	if *run == 0 {
		latest, ok, err := idx.LatestRun(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "latest run:", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no ticks indexed")
			os.Exit(2)
		}
		*run = latest
	}

	var out any
	switch q {
	case "ticks":
		out, err = idx.RecentTicks(ctx, *run, *limit)
	case "sessions":
		out, err = idx.Sessions(ctx, *run, *client)
	case "weather":
		out, err = idx.WeatherHistogram(ctx, *run)
	case "settings":
		var world, js string
		world, js, err = idx.SettingsJSON(ctx, *run)
		if err == nil {
			out = map[string]any{"run": *run, "world": world, "settings": json.RawMessage(js)}
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(want ticks, sessions, weather or settings)")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	printJSON(out)
}

func printJSON(v any) {
	// Slices print one row per line.
	b, _ := json.Marshal(v)
	var rows []json.RawMessage
	if err := json.Unmarshal(b, &rows); err == nil {
		for _, r := range rows {
			fmt.Println(string(r))
		}
		return
	}
	fmt.Println(string(b))
}
