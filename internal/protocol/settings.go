package protocol

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

const KeyYourID = "your_id"

// WelcomeMessage is the first message a server sends on a new connection.
func WelcomeMessage(clientID int) Message {
	return NewMessage(TypeSettings, FormatSettings, KeyYourID+"="+strconv.Itoa(clientID))
}

func JoinMessage() Message { return NewMessage(TypeJoin, FormatSettings, "") }
func ExitMessage() Message { return NewMessage(TypeExit, FormatSettings, "") }

// ParseSettings reads "key=value" lines. Lines without '=' are ignored.
func ParseSettings(body string) map[string]string {
	out := map[string]string{}
	for _, line := range strings.Split(body, "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// EncodeSettings renders kv as sorted "key=value" lines.
func EncodeSettings(kv map[string]string) string {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+kv[k])
	}
	return strings.Join(lines, "\n")
}

// CapabilitiesMessage lists the actions a client may issue.
func CapabilitiesMessage(actions []string) Message {
	if actions == nil {
		actions = []string{}
	}
	b, _ := json.Marshal(actions)
	return NewMessage(TypeCapabilities, FormatJSON, string(b))
}

func ParseCapabilities(body string) ([]string, error) {
	var out []string
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics is the body answering a RequestStatistics message.
type Statistics struct {
	Tick      uint64 `json:"tick"`
	Day       int    `json:"day"`
	TimeOfDay int    `json:"time_of_day"`
	Pressure  int    `json:"pressure"`
	Weather   string `json:"weather"`
	Light     string `json:"light"`
	Clients   int    `json:"clients"`
	Agents    int    `json:"agents"`
	UptimeMs  int64  `json:"uptime_ms"`
}

func StatisticsMessage(s Statistics) Message {
	b, _ := json.Marshal(s)
	return NewMessage(TypeRequestStatistics, FormatJSON, string(b))
}
