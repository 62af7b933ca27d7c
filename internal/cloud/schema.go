package cloud

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// pushSchema is the minimal shape a change notification must have before
// it is allowed anywhere near the merge step.
const pushSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["userId", "records"],
  "properties": {
    "userId": {"type": "string", "minLength": 1},
    "origin": {"type": "string"},
    "settings": {"type": ["object", "null"]},
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id"],
        "properties": {
          "id": {"type": "string"},
          "name": {"type": "string"},
          "url": {"type": "string"},
          "favicon": {"type": "string"},
          "note": {"type": "string"},
          "tags": {"type": "array", "items": {"type": "string"}},
          "visitCount": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

const pushSchemaURL = "hometab://schemas/push.json"

func compilePushSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(pushSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse push schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(pushSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to add push schema: %w", err)
	}
	return c.Compile(pushSchemaURL)
}

func validatePush(schema *jsonschema.Schema, raw []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return schema.Validate(inst)
}
