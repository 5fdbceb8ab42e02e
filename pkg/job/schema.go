package job

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchemaText is the JSON schema text mirroring the original
// Python project's JOB_SCHEMA. It rejects unknown keys; callers that
// want strict validation pass a *Validator built from it, matching the
// optional jsonschema capability in original_source's config/parser.py.
const configSchemaText = `{
	"type": "object",
	"properties": {
		"job_name": {"type": "string"},
		"command": {"type": "string"},
		"enabled": {"type": "boolean"},
		"preferred_time": {
			"type": "array",
			"items": {"type": "string"}
		},
		"max_cpu_percent": {"type": "number"},
		"max_memory_percent": {"type": "number"},
		"min_battery_percent": {"type": "number"},
		"min_disk_free_gb": {"type": "number"},
		"min_idle_time_sec": {"type": "number"},
		"ai_aware": {"type": "boolean"},
		"retry_on_fail": {"type": "boolean"},
		"max_retries": {"type": "integer"},
		"timeout_sec": {"type": "number"},
		"schedule_window_start": {"type": "string"},
		"schedule_window_end": {"type": "string"}
	},
	"required": ["job_name", "command"],
	"additionalProperties": false
}`

// Validator validates a decoded job document against the job schema.
// A nil *Validator is valid and means "no schema available" — unknown
// keys are tolerated, matching the original's HAS_JSONSCHEMA fallback.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the built-in job schema. Construction failure
// is treated as "schema unavailable" by callers that choose to ignore
// the error, mirroring the original's try/except around the optional
// import.
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	const resourceName = "job.schema.json"

	err := compiler.AddResource(resourceName, bytes.NewReader([]byte(configSchemaText)))
	if err != nil {
		return nil, fmt.Errorf("add job schema resource: %w", err)
	}

	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return nil, fmt.Errorf("compile job schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// Validate checks a decoded job document (map[string]any, as produced
// by yaml.Unmarshal of either YAML or JSON source) against the schema.
func (v *Validator) Validate(doc map[string]any) error {
	if v == nil || v.schema == nil {
		return nil
	}

	err := v.schema.Validate(doc)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}
