// Package schema generates the JSON schema for the install plan from its Go
// types and validates user configuration against it before anything touches
// a disk.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/Screamnox/sarchura/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	jsonschemago "github.com/swaggest/jsonschema-go"
	"gopkg.in/yaml.v3"
)

const schemaURL = "https://github.com/Screamnox/sarchura/plan.schema.json"

// GenerateSchema reflects the plan types into a JSON schema document. The
// schema is derived, never hand-maintained, so it cannot drift from the types.
func GenerateSchema() (string, error) {
	reflector := jsonschemago.Reflector{}

	generated, err := reflector.Reflect(types.InstallPlan{})
	if err != nil {
		return "", fmt.Errorf("reflecting plan schema: %w", err)
	}

	data, err := json.MarshalIndent(generated, "", "  ")
	if err != nil {
		return "", fmt.Errorf("rendering plan schema: %w", err)
	}
	return string(data), nil
}

// Validate checks a YAML plan document against the generated schema. A nil
// return means the document decodes into a plan without surprises, it says
// nothing about whether the described install can succeed.
func Validate(data []byte) error {
	generated, err := GenerateSchema()
	if err != nil {
		return err
	}

	compiled, err := jsonschema.CompileString(schemaURL, generated)
	if err != nil {
		return fmt.Errorf("compiling plan schema: %w", err)
	}

	var parsed interface{}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing plan document: %w", err)
	}

	// The validator wants JSON-decoded values, YAML integers and friends
	// confuse it. Round-tripping through JSON normalizes them.
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return fmt.Errorf("normalizing plan document: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("normalizing plan document: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("plan does not match the schema: %w", err)
	}
	return nil
}

// ValidatePlan round-trips a decoded plan through the schema, catching
// values the YAML decoder tolerated but the schema rejects.
func ValidatePlan(plan *types.InstallPlan) error {
	data, err := yaml.Marshal(plan)
	if err != nil {
		return err
	}
	return Validate(data)
}
