// Package indexdb keeps a queryable SQLite copy of the tick and session
// streams. The JSONL logs stay the source of truth; the index may drop rows
// when it falls behind.
package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"terrasim.io/internal/sim/core"
)

const defaultQueueSize = 65536

type SQLiteIndex struct {
	db  *sql.DB
	run int64

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTick    atomic.Uint64
	dropSession atomic.Uint64
	writeErr    atomic.Uint64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSession
)

type req struct {
	kind reqKind

	tick    core.TickRecord
	session core.SessionEvent
}

// Stats reports queue pressure for /metrics.
type Stats struct {
	DropTickTotal    uint64 `json:"drop_tick_total"`
	DropSessionTotal uint64 `json:"drop_session_total"`
	WriteErrorTotal  uint64 `json:"write_error_total"`
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
}

// OpenSQLite opens (or creates) the index at path and starts its writer.
// Every open starts a new run; tick numbers restart with the server so rows
// are keyed by (run, tick).
func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		run: time.Now().UnixMilli(),
		ch:  make(chan req, defaultQueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			run INTEGER PRIMARY KEY,
			world TEXT NOT NULL,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			ts_ms INTEGER NOT NULL,
			day INTEGER NOT NULL,
			time_of_day INTEGER NOT NULL,
			pressure INTEGER NOT NULL,
			weather TEXT NOT NULL,
			light TEXT NOT NULL,
			clients INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			dropped INTEGER NOT NULL,
			unhandled INTEGER NOT NULL,
			deferred INTEGER NOT NULL,
			duration_us INTEGER NOT NULL,
			error TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_weather ON ticks(weather, run, tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			run INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			ts_ms INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			agent TEXT NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT,
			PRIMARY KEY (run, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client ON sessions(client_id, run, tick);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Run identifies the rows written through this handle.
func (s *SQLiteIndex) Run() int64 { return s.run }

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(rec core.TickRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: rec}:
	default:
		s.dropTick.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteSession(ev core.SessionEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSession, session: ev}:
	default:
		s.dropSession.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropTickTotal:    s.dropTick.Load(),
		DropSessionTotal: s.dropSession.Load(),
		WriteErrorTotal:  s.writeErr.Load(),
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
	}
}

// RecordSettings stores the settings this run started with, synchronously.
func (s *SQLiteIndex) RecordSettings(worldName string, settings any) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	_, err = s.db.Exec(`INSERT OR REPLACE INTO settings(run,world,digest,json,recorded_at) VALUES(?,?,?,?,?)`,
		s.run, worldName, hex.EncodeToString(sum[:]), string(b), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(run,tick,ts_ms,day,time_of_day,pressure,weather,light,clients,agents,commands,dropped,unhandled,deferred,duration_us,error,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(run,tick,seq,ts_ms,client_id,agent,kind,reason) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertSession != nil {
			_ = insertSession.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastSessionTick uint64
		sessionSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErr.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		s.writeErr.Add(1)
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			s.writeErr.Add(1)
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			if insertTick == nil {
				continue
			}
			raw, _ := json.Marshal(t)
			if _, err := tx.Stmt(insertTick).Exec(
				s.run,
				int64(t.Tick),
				t.TsMs,
				t.Day,
				t.TimeOfDay,
				t.Pressure,
				t.Weather,
				t.Light,
				t.Clients,
				t.Agents,
				t.Commands,
				t.Dropped,
				t.Unhandled,
				t.Deferred,
				t.DurationUs,
				nullString(t.Error),
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSession:
			ev := r.session
			if ev.Tick != lastSessionTick {
				lastSessionTick = ev.Tick
				sessionSeq = 0
			}
			seq := sessionSeq
			sessionSeq++
			if insertSession == nil {
				continue
			}
			if _, err := tx.Stmt(insertSession).Exec(
				s.run,
				int64(ev.Tick),
				seq,
				ev.TsMs,
				ev.ClientID,
				ev.Agent,
				ev.Kind,
				nullString(ev.Reason),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
