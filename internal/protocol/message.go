package protocol

import (
	"strconv"
	"strings"
)

type MessageType int

const (
	TypeInvalid           MessageType = 0
	TypeJoin              MessageType = 1
	TypeCommand           MessageType = 2
	TypeStateUpdate       MessageType = 3
	TypeExit              MessageType = 4
	TypeSettings          MessageType = 5
	TypeRequestStatistics MessageType = 6
	TypeCapabilities      MessageType = 7
)

var typeNames = map[MessageType]string{
	TypeInvalid:           "Invalid",
	TypeJoin:              "Join",
	TypeCommand:           "Command",
	TypeStateUpdate:       "StateUpdate",
	TypeExit:              "Exit",
	TypeSettings:          "Settings",
	TypeRequestStatistics: "RequestStatistics",
	TypeCapabilities:      "Capabilities",
}

func (t MessageType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return strconv.Itoa(int(t))
}

type MessageFormat int

const (
	FormatInvalid   MessageFormat = 0
	FormatPredicate MessageFormat = 1
	FormatJSON      MessageFormat = 2
	FormatSettings  MessageFormat = 9
)

var formatNames = map[MessageFormat]string{
	FormatInvalid:   "Invalid",
	FormatPredicate: "Predicate",
	FormatJSON:      "JSON",
	FormatSettings:  "Settings",
}

func (f MessageFormat) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return strconv.Itoa(int(f))
}

// ParseType accepts an enum name (any case) or its numeric value.
// Invalid is never accepted.
func ParseType(s string) (MessageType, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		t := MessageType(n)
		if _, ok := typeNames[t]; ok && t != TypeInvalid {
			return t, true
		}
		return TypeInvalid, false
	}
	for t, name := range typeNames {
		if t != TypeInvalid && strings.EqualFold(name, s) {
			return t, true
		}
	}
	return TypeInvalid, false
}

// ParseFormat accepts an enum name (any case) or its numeric value.
func ParseFormat(s string) (MessageFormat, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		f := MessageFormat(n)
		if _, ok := formatNames[f]; ok && f != FormatInvalid {
			return f, true
		}
		return FormatInvalid, false
	}
	for f, name := range formatNames {
		if f != FormatInvalid && strings.EqualFold(name, s) {
			return f, true
		}
	}
	return FormatInvalid, false
}

// Message is a single framed protocol unit. It is treated as immutable once parsed.
type Message struct {
	Type   MessageType
	Format MessageFormat
	Body   string
}

func NewMessage(t MessageType, f MessageFormat, body string) Message {
	return Message{Type: t, Format: f, Body: body}
}

func (m Message) Valid() bool {
	return m.Type != TypeInvalid && m.Format != FormatInvalid
}

// Encode renders m as "<len>\n<Type>\n<Format>\n<Body>", len being the
// UTF-8 byte length of everything after the first newline.
func (m Message) Encode() []byte {
	data := m.Type.String() + "\n" + m.Format.String() + "\n" + m.Body
	out := make([]byte, 0, len(data)+8)
	out = strconv.AppendInt(out, int64(len(data)), 10)
	out = append(out, '\n')
	out = append(out, data...)
	return out
}

func (m Message) String() string {
	return m.Type.String() + "/" + m.Format.String() + ": " + m.Body
}
