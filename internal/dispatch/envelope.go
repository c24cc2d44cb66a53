package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/danmuck/rconbridge/internal/command"
)

const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["command"],
  "properties": {
    "command": {"type": "string", "minLength": 1},
    "params": {"type": ["object", "null"]}
  }
}`

func compileEnvelopeSchema() (*jsonschema.Schema, error) {
	return jsonschema.CompileString("command-envelope.json", envelopeSchema)
}

// decodeEnvelope parses and validates one inbound message. Numbers stay
// json.Number so script interpolation sees the literal text.
func decodeEnvelope(schema *jsonschema.Schema, payload []byte) (command.Command, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return command.Command{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if dec.More() {
		return command.Command{}, fmt.Errorf("%w: trailing data after envelope", ErrMalformedEnvelope)
	}
	if err := schema.Validate(doc); err != nil {
		return command.Command{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	obj := doc.(map[string]any)
	cmd := command.Command{Verb: command.Verb(obj["command"].(string)), Params: command.Params{}}
	if params, ok := obj["params"].(map[string]any); ok {
		cmd.Params = command.Params(params)
	}
	return cmd, nil
}
