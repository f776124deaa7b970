package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a ledger conformance scenario: a sequence of ledger
// operations plus the derived views to snapshot afterwards. Scenarios run
// under a deterministic clock so their outputs are stable across runs.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Steps are executed in order against a fresh in-memory database.
	Steps []Step `yaml:"steps"`

	// Snapshot configures the optional cross-ledger views included in the
	// result. The four derived views are always included.
	Snapshot SnapshotConfig `yaml:"snapshot,omitempty"`
}

// Step is exactly one ledger operation. Exactly one field must be set.
type Step struct {
	Register *RegisterStep `yaml:"register,omitempty"`
	Assign   *AssignStep   `yaml:"assign,omitempty"`
	Declare  *DeclareStep  `yaml:"declare,omitempty"`
	Emit     *EmitStep     `yaml:"emit,omitempty"`
	Advance  *AdvanceStep  `yaml:"advance,omitempty"`
}

// RegisterStep registers an entity for recognition.
type RegisterStep struct {
	Entity  string `yaml:"entity"`
	Label   string `yaml:"label,omitempty"`
	Cadence int    `yaml:"cadence"`
}

// AssignStep assigns ownership of a registered entity.
type AssignStep struct {
	Entity string `yaml:"entity"`
	Owner  string `yaml:"owner"`
	By     string `yaml:"by"`
}

// DeclareStep appends a recognition declaration.
type DeclareStep struct {
	Entity     string `yaml:"entity"`
	Scope      string `yaml:"scope"`
	Actor      string `yaml:"actor"`
	Text       string `yaml:"text"`
	Reclassify bool   `yaml:"reclassify,omitempty"`

	// ExpectRefusal makes the step pass only when the ledger refuses it
	// with an error containing this substring.
	ExpectRefusal string `yaml:"expect_refusal,omitempty"`
}

// EmitStep appends an operational event.
type EmitStep struct {
	Type    string         `yaml:"type"`
	Subject string         `yaml:"subject,omitempty"`
	Data    map[string]any `yaml:"data,omitempty"`

	// ExpectRefusal makes the step pass only when the ledger refuses it
	// with an error containing this substring.
	ExpectRefusal string `yaml:"expect_refusal,omitempty"`
}

// AdvanceStep moves the scenario clock forward.
type AdvanceStep struct {
	Days  int `yaml:"days,omitempty"`
	Hours int `yaml:"hours,omitempty"`
}

// SnapshotConfig selects optional cross-ledger views for the result.
type SnapshotConfig struct {
	// Promises, when set, includes the open-promise view under the given
	// convention.
	Promises *PromiseConfig `yaml:"promises,omitempty"`

	// Dwell includes the stage dwell view.
	Dwell bool `yaml:"dwell,omitempty"`
}

// PromiseConfig names a promise convention for the snapshot.
type PromiseConfig struct {
	Scope       string `yaml:"scope"`
	ConfirmedBy string `yaml:"confirmed_by"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "step:" vs "steps:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	if p := s.Snapshot.Promises; p != nil {
		if p.Scope == "" || p.ConfirmedBy == "" {
			return fmt.Errorf("snapshot.promises: scope and confirmed_by are both required")
		}
	}

	return nil
}

// validateStep checks that a step names exactly one operation with its
// required fields.
func validateStep(index int, step *Step) error {
	ops := 0
	if step.Register != nil {
		ops++
		if step.Register.Entity == "" {
			return fmt.Errorf("steps[%d].register: entity is required", index)
		}
		if step.Register.Cadence < 1 {
			return fmt.Errorf("steps[%d].register: cadence must be at least 1", index)
		}
	}
	if step.Assign != nil {
		ops++
		if step.Assign.Entity == "" || step.Assign.Owner == "" || step.Assign.By == "" {
			return fmt.Errorf("steps[%d].assign: entity, owner, and by are all required", index)
		}
	}
	if step.Declare != nil {
		ops++
		d := step.Declare
		if d.Entity == "" || d.Scope == "" || d.Actor == "" || d.Text == "" {
			return fmt.Errorf("steps[%d].declare: entity, scope, actor, and text are all required", index)
		}
	}
	if step.Emit != nil {
		ops++
		if step.Emit.Type == "" {
			return fmt.Errorf("steps[%d].emit: type is required", index)
		}
	}
	if step.Advance != nil {
		ops++
		if step.Advance.Days == 0 && step.Advance.Hours == 0 {
			return fmt.Errorf("steps[%d].advance: days or hours is required", index)
		}
		if step.Advance.Days < 0 || step.Advance.Hours < 0 {
			return fmt.Errorf("steps[%d].advance: days and hours must be non-negative", index)
		}
	}

	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one operation is required, found %d", index, ops)
	}
	return nil
}
