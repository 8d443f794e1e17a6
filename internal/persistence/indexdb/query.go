package indexdb

import (
	"context"
	"database/sql"
)

// TickRow is one indexed tick.
type TickRow struct {
	Run        int64  `json:"run"`
	Tick       uint64 `json:"tick"`
	TsMs       int64  `json:"ts_ms"`
	Day        int    `json:"day"`
	TimeOfDay  int    `json:"time_of_day"`
	Pressure   int    `json:"pressure"`
	Weather    string `json:"weather"`
	Light      string `json:"light"`
	Clients    int    `json:"clients"`
	Agents     int    `json:"agents"`
	Commands   int    `json:"commands"`
	Dropped    int    `json:"dropped"`
	Unhandled  int    `json:"unhandled"`
	Deferred   int    `json:"deferred"`
	DurationUs int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
}

type SessionRow struct {
	Run      int64  `json:"run"`
	Tick     uint64 `json:"tick"`
	Seq      int    `json:"seq"`
	TsMs     int64  `json:"ts_ms"`
	ClientID int    `json:"client_id"`
	Agent    string `json:"agent"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason,omitempty"`
}

type WeatherCount struct {
	Weather string `json:"weather"`
	Ticks   int    `json:"ticks"`
}

// LatestRun returns the most recent run with indexed ticks.
func (s *SQLiteIndex) LatestRun(ctx context.Context) (int64, bool, error) {
	var run sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(run) FROM ticks`).Scan(&run); err != nil {
		return 0, false, err
	}
	return run.Int64, run.Valid, nil
}

// RecentTicks returns up to limit ticks of run, newest first.
func (s *SQLiteIndex) RecentTicks(ctx context.Context, run int64, limit int) ([]TickRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run,tick,ts_ms,day,time_of_day,pressure,weather,light,clients,agents,commands,dropped,unhandled,deferred,duration_us,error
		FROM ticks WHERE run = ? ORDER BY tick DESC LIMIT ?`, run, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRow
	for rows.Next() {
		var r TickRow
		var errText sql.NullString
		if err := rows.Scan(&r.Run, &r.Tick, &r.TsMs, &r.Day, &r.TimeOfDay, &r.Pressure, &r.Weather, &r.Light,
			&r.Clients, &r.Agents, &r.Commands, &r.Dropped, &r.Unhandled, &r.Deferred, &r.DurationUs, &errText); err != nil {
			return nil, err
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions lists session events of run in order. A negative clientID
// matches every client.
func (s *SQLiteIndex) Sessions(ctx context.Context, run int64, clientID int) ([]SessionRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run,tick,seq,ts_ms,client_id,agent,kind,reason
		FROM sessions WHERE run = ? AND (? < 0 OR client_id = ?) ORDER BY tick, seq`, run, clientID, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		var reason sql.NullString
		if err := rows.Scan(&r.Run, &r.Tick, &r.Seq, &r.TsMs, &r.ClientID, &r.Agent, &r.Kind, &reason); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// WeatherHistogram counts the ticks of run spent in each weather.
func (s *SQLiteIndex) WeatherHistogram(ctx context.Context, run int64) ([]WeatherCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT weather, COUNT(*) FROM ticks WHERE run = ? GROUP BY weather ORDER BY weather`, run)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WeatherCount
	for rows.Next() {
		var c WeatherCount
		if err := rows.Scan(&c.Weather, &c.Ticks); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SettingsJSON returns the settings recorded for run.
func (s *SQLiteIndex) SettingsJSON(ctx context.Context, run int64) (string, string, error) {
	var world, js string
	err := s.db.QueryRowContext(ctx, `SELECT world, json FROM settings WHERE run = ?`, run).Scan(&world, &js)
	if err != nil {
		return "", "", err
	}
	return world, js, nil
}
