package observerproto

// Version is the observer protocol version (separate from the client TCP protocol).
const Version = "0.1"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change what the stream carries.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Agents adds every agent's position to each TICK message.
	Agents bool `json:"agents,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	World           string      `json:"world"`
	Tick            uint64      `json:"tick"`
	WorldParams     WorldParams `json:"world_params"`

	// Tiles[x][y] is the tile type of cell (x, y).
	Tiles [][]string `json:"tiles"`
}

type WorldParams struct {
	Topology     string `json:"topology"`
	SizeX        int    `json:"size_x"`
	SizeY        int    `json:"size_y"`
	DayPartCount int    `json:"day_part_count"`
	DawnTime     int    `json:"dawn_time"`
	DuskTime     int    `json:"dusk_time"`
	MaxClients   int    `json:"max_clients"`
	TimeUnitMs   int64  `json:"time_unit_ms"`
}

// Server -> Client. Sent every tick.
type TickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`

	Day       int    `json:"day"`
	TimeOfDay int    `json:"time_of_day"`
	Pressure  int    `json:"pressure"`
	Weather   string `json:"weather"`
	Light     string `json:"light"`
	Clients   int    `json:"clients"`

	Agents []AgentState `json:"agents,omitempty"`
	Joins  []int        `json:"joins,omitempty"`
	Leaves []int        `json:"leaves,omitempty"`
	Error  string       `json:"error,omitempty"`
}

type AgentState struct {
	ClientID int    `json:"client_id"`
	Name     string `json:"name"`
	Pos      [2]int `json:"pos"`
}
