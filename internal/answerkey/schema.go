package answerkey

import (
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const indexSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["books"],
  "properties": {
    "books": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["worksheets"],
        "properties": {
          "worksheets": {
            "type": "object",
            "additionalProperties": {
              "type": "array",
              "items": {
                "anyOf": [
                  {"type": "string"},
                  {"type": "number"},
                  {
                    "type": "object",
                    "required": ["answer"],
                    "properties": {
                      "question": {"type": "string"},
                      "answer": {"type": ["string", "number"]}
                    }
                  }
                ]
              }
            }
          }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

func indexSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		schema = jsonschema.MustCompileString("answer_key.schema.json", indexSchemaJSON)
	})
	return schema
}
