package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/otcore/internal/model"
	"github.com/roach88/otcore/internal/pipeline"
)

// Scenario is a sequence of submissions against one object.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Object is the target object id, "tenant/type/id".
	Object string `yaml:"object"`

	// Initial, if set, is committed as revision 1 by SeedClient before
	// the steps run, one SetField per top-level key.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Schemas enables validation against the object type's schema.
	Schemas bool `yaml:"schemas,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one client submission.
type Step struct {
	Client  string           `yaml:"client"`
	Base    int64            `yaml:"base"`
	Patches []map[string]any `yaml:"patches"`

	// Expect, if set, is checked against the submission outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes the expected outcome of a step. Zero fields are not
// checked, except that a step without Error must not be rejected.
type Expect struct {
	Revision  *int64           `yaml:"revision,omitempty"`
	Error     string           `yaml:"error,omitempty"`
	Duplicate bool             `yaml:"duplicate,omitempty"`
	Skipped   bool             `yaml:"skipped,omitempty"`
	Applied   []map[string]any `yaml:"applied,omitempty"`
}

// Assertion checks the object after the last step.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Path selects a field for AssertField, dotted.
	Path string `yaml:"path,omitempty"`

	// Value is the expected document (AssertValue) or field value
	// (AssertField).
	Value any `yaml:"value,omitempty"`

	// Revision is the expected current revision (AssertRevision).
	Revision int64 `yaml:"revision,omitempty"`
}

// Assertion types.
const (
	AssertValue    = "value"    // whole document equals Value
	AssertField    = "field"    // field at Path equals Value
	AssertRevision = "revision" // current revision equals Revision
	AssertReplay   = "replay"   // replaying the log reproduces the stored document
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

var errorCodes = map[string]bool{
	string(pipeline.CodeNotFound):            true,
	string(pipeline.CodeInvalidBaseRevision): true,
	string(pipeline.CodeMalformedPatch):      true,
	string(pipeline.CodeStorageUnavailable):  true,
	string(pipeline.CodeRetryExhausted):      true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, err := model.ParseObjectID(s.Object); err != nil {
		return fmt.Errorf("object: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Client == "" {
			return fmt.Errorf("steps[%d]: client is required", i)
		}
		if step.Base < 0 {
			return fmt.Errorf("steps[%d]: base must be non-negative", i)
		}
		if _, err := decodePatches(step.Patches); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if e := step.Expect; e != nil {
			if e.Error != "" && !errorCodes[e.Error] {
				return fmt.Errorf("steps[%d].expect: unknown error code %q", i, e.Error)
			}
			if e.Duplicate && e.Skipped {
				return fmt.Errorf("steps[%d].expect: duplicate and skipped are exclusive", i)
			}
			if _, err := decodePatches(e.Applied); err != nil {
				return fmt.Errorf("steps[%d].expect.applied: %w", i, err)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertValue:
		if _, ok := a.Value.(map[string]any); !ok {
			return fmt.Errorf("assertions[%d]: value must be a mapping for %s", index, AssertValue)
		}
	case AssertField:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for %s", index, AssertField)
		}
		if _, err := model.ParsePath(a.Path); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertRevision:
		if a.Revision < 0 {
			return fmt.Errorf("assertions[%d]: revision must be non-negative", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// decodePatches converts YAML patch mappings through their JSON wire
// form.
func decodePatches(raw []map[string]any) (model.Patches, error) {
	if raw == nil {
		return model.Patches{}, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("patches: %w", err)
	}
	var ps model.Patches
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, err
	}
	return ps, nil
}
