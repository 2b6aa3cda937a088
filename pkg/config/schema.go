package config

import (
	"errors"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// configSchema is the JSON schema for serverless.yml. It is embedded so
// validation never depends on files shipped next to the binary.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "skylift configuration",
  "type": "object",
  "required": ["project", "provider", "functions"],
  "properties": {
    "project": {"type": "string", "minLength": 1},
    "provider": {"type": "string", "enum": ["aws", "vercel"]},
    "concurrency": {"type": "integer", "minimum": 0},
    "env_file": {"type": "string"},
    "functions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "path", "memory", "timeout"],
        "properties": {
          "name": {"type": "string", "pattern": "^[a-zA-Z][a-zA-Z0-9_-]*$"},
          "path": {"type": "string", "minLength": 1},
          "handler": {"type": "string"},
          "runtime": {"type": "string"},
          "memory": {"type": "integer", "minimum": 1},
          "timeout": {"type": "integer", "minimum": 1},
          "env_file": {"type": "string"}
        },
        "additionalProperties": false
      }
    },
    "hooks": {
      "type": "object",
      "properties": {
        "before_deploy": {"$ref": "#/definitions/hookList"},
        "after_deploy": {"$ref": "#/definitions/hookList"}
      },
      "additionalProperties": false
    },
    "retry": {
      "type": "object",
      "properties": {
        "max_attempts": {"type": "integer", "minimum": 0},
        "initial_delay_ms": {"type": "integer", "minimum": 0},
        "max_delay_ms": {"type": "integer", "minimum": 0}
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "definitions": {
    "hookList": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["run"],
        "properties": {
          "run": {"type": "string", "minLength": 1},
          "when": {"type": "string"}
        },
        "additionalProperties": false
      }
    }
  }
}`

// ValidateAgainstSchema validates raw serverless.yml bytes against the
// embedded JSON schema. It reports structural problems (wrong types,
// unknown keys) that the semantic Validate pass would not describe as well.
func ValidateAgainstSchema(yamlBytes []byte) error {
	if len(yamlBytes) == 0 {
		return errors.New("empty YAML input")
	}

	var data interface{}
	if err := yaml.Unmarshal(yamlBytes, &data); err != nil {
		return fmt.Errorf("failed to parse YAML for validation: %w", err)
	}
	data = normalizeYAML(data)

	schemaLoader := gojsonschema.NewStringLoader(configSchema)
	documentLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		var errMsg string
		for i, desc := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += fmt.Sprintf("%s: %s", desc.Field(), desc.Description())
		}
		return &ValidationError{Reason: errMsg}
	}

	return nil
}

// normalizeYAML converts the map[interface{}]interface{} shapes yaml can
// produce into the map[string]interface{} shapes the schema validator expects.
func normalizeYAML(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, val := range vv {
			m[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return m
	case map[string]interface{}:
		for k, val := range vv {
			vv[k] = normalizeYAML(val)
		}
		return vv
	case []interface{}:
		for i, val := range vv {
			vv[i] = normalizeYAML(val)
		}
		return vv
	default:
		return v
	}
}
