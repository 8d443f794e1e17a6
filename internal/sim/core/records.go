package core

// TickRecord is the per-tick summary handed to every tick sink.
type TickRecord struct {
	Tick      uint64 `json:"tick"`
	TsMs      int64  `json:"ts_ms"`
	Day       int    `json:"day"`
	TimeOfDay int    `json:"time_of_day"`
	Pressure  int    `json:"pressure"`
	Weather   string `json:"weather"`
	Light     string `json:"light"`

	Clients   int   `json:"clients"`
	Agents    int   `json:"agents"`
	Joins     []int `json:"joins,omitempty"`
	Leaves    []int `json:"leaves,omitempty"`
	Commands  int   `json:"commands"`
	Dropped   int   `json:"dropped_commands,omitempty"`
	Unhandled int   `json:"unhandled_commands,omitempty"`
	Deferred  int   `json:"deferred"`
	NewDay    bool  `json:"new_day,omitempty"`

	DurationUs int64  `json:"duration_us"`
	Error      string `json:"error,omitempty"`
}

// Session event kinds.
const (
	SessionJoin  = "join"
	SessionLeave = "leave"
	SessionKick  = "kick"
)

// SessionEvent records a client entering or leaving the simulation.
type SessionEvent struct {
	Tick     uint64 `json:"tick"`
	TsMs     int64  `json:"ts_ms"`
	ClientID int    `json:"client_id"`
	Agent    string `json:"agent,omitempty"`
	Kind     string `json:"kind"`
	Reason   string `json:"reason,omitempty"`
}

type TickSink interface {
	WriteTick(rec TickRecord) error
}

type SessionSink interface {
	WriteSession(ev SessionEvent) error
}
