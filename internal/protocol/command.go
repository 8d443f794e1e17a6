package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Command is the JSON body of a Command message.
type Command struct {
	ActionName string `json:"ActionName"`
	Arg1       string `json:"Arg1,omitempty"`
	Arg2       string `json:"Arg2,omitempty"`
}

const commandSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["ActionName"],
  "properties": {
    "ActionName": {"type": "string", "minLength": 1},
    "Arg1": {"type": ["string", "null"]},
    "Arg2": {"type": ["string", "null"]}
  }
}`

var commandSchema = jsonschema.MustCompileString("terrasim://schemas/command.json", commandSchemaJSON)

// DecodeCommand validates body against the command schema and decodes it.
// The action name is lower-cased.
func DecodeCommand(body string) (Command, error) {
	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Command{}, fmt.Errorf("command json: %w", err)
	}
	if err := commandSchema.Validate(raw); err != nil {
		return Command{}, fmt.Errorf("command schema: %w", err)
	}
	var c Command
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return Command{}, fmt.Errorf("command json: %w", err)
	}
	c.ActionName = strings.ToLower(strings.TrimSpace(c.ActionName))
	return c, nil
}

func (c Command) Encode() string {
	b, _ := json.Marshal(c)
	return string(b)
}
