package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"terrasim.io/internal/sim/core"
)

func main() {
	var (
		dir      = flag.String("ticks", "./data/ticks", "directory containing ticks-*.jsonl.zst")
		fromTick = flag.Uint64("from_tick", 0, "first tick to print (inclusive, optional)")
		toTick   = flag.Uint64("to_tick", 0, "last tick to print (inclusive, optional)")
		summary  = flag.Bool("summary", false, "print only the totals")
	)
	flag.Parse()

	files, err := listTickFiles(*dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list ticks:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no tick files found in", *dir)
		os.Exit(1)
	}

	var st stats
	st.weather = map[string]int{}
	for _, path := range files {
		err := readFile(path, func(rec core.TickRecord) {
			if rec.Tick < *fromTick || (*toTick != 0 && rec.Tick > *toTick) {
				return
			}
			st.add(rec)
			if !*summary {
				printRecord(os.Stdout, rec)
			}
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	st.print(os.Stdout)
}

func listTickFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "ticks-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	// The hour stamp sorts lexically.
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func readFile(path string, fn func(core.TickRecord)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var rec core.TickRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		fn(rec)
	}
	return sc.Err()
}

func printRecord(w io.Writer, rec core.TickRecord) {
	fmt.Fprintf(w, "tick=%d day=%d t=%d weather=%s light=%s pressure=%d agents=%d cmds=%d",
		rec.Tick, rec.Day, rec.TimeOfDay, rec.Weather, rec.Light, rec.Pressure, rec.Agents, rec.Commands)
	if len(rec.Joins) > 0 {
		fmt.Fprintf(w, " joins=%v", rec.Joins)
	}
	if len(rec.Leaves) > 0 {
		fmt.Fprintf(w, " leaves=%v", rec.Leaves)
	}
	if rec.Error != "" {
		fmt.Fprintf(w, " error=%q", rec.Error)
	}
	fmt.Fprintln(w)
}

type stats struct {
	ticks, failed, commands, dropped, unhandled int
	first, last                                 uint64
	weather                                     map[string]int
}

func (s *stats) add(rec core.TickRecord) {
	if s.ticks == 0 {
		s.first = rec.Tick
	}
	s.last = rec.Tick
	s.ticks++
	if rec.Error != "" {
		s.failed++
	}
	s.commands += rec.Commands
	s.dropped += rec.Dropped
	s.unhandled += rec.Unhandled
	s.weather[rec.Weather]++
}

func (s *stats) print(w io.Writer) {
	fmt.Fprintf(w, "ticks=%d (%d..%d) failed=%d commands=%d dropped=%d unhandled=%d\n",
		s.ticks, s.first, s.last, s.failed, s.commands, s.dropped, s.unhandled)
	names := make([]string, 0, len(s.weather))
	for k := range s.weather {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(w, "  weather %-8s %d\n", k, s.weather[k])
	}
}
