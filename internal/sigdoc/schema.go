package sigdoc

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaJSON is a minimal draft-07 schema for signature.json: it only
// pins down the shape internal/verify depends on (entries is a non-empty
// array of tagged objects, signature is a non-empty string). Per-entry
// payload validation is each entry type's own responsibility.
const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["entries", "signature"],
  "properties": {
    "entries": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["entry"],
        "properties": {
          "entry": { "type": "string", "minLength": 1 }
        }
      }
    },
    "signature": { "type": "string", "minLength": 1 }
  }
}`

var schema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource("signature.schema.json", strings.NewReader(schemaJSON)); err != nil {
		panic("sigdoc: invalid embedded schema: " + err.Error())
	}
	s, err := compiler.Compile("signature.schema.json")
	if err != nil {
		panic("sigdoc: schema compile failed: " + err.Error())
	}
	return s
}
