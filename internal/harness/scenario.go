package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a document conformance scenario: a schema, stored documents,
// a sequence of steps and assertions over the resulting store and graph.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is a CUE file or directory. Relative to the scenario file.
	Schema string `yaml:"schema"`

	// Driver selects the in-memory backend: sqlite (default) or badger.
	Driver string `yaml:"driver,omitempty"`

	// IdentityMap enables the identity registry for the run.
	IdentityMap bool `yaml:"identity_map,omitempty"`

	// Setup documents are inserted directly into the store, then loaded.
	Setup []SetupDoc `yaml:"setup,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// SetupDoc is a stored root document present before the first step.
type SetupDoc struct {
	// Type is the document type the root is loaded as.
	Type string `yaml:"type"`

	// Doc is the stored body. It must carry _id.
	Doc map[string]any `yaml:"doc"`
}

// Step is a single operation.
type Step struct {
	Op string `yaml:"op"`

	// Target names the node the step acts on: handle[#embedded.path].
	Target string `yaml:"target,omitempty"`

	// Values are field/value pairs for push, add_to_set, set, create and embed.
	Values map[string]any `yaml:"values,omitempty"`

	// Type is the document type for create, embed and becomes.
	Type string `yaml:"type,omitempty"`

	// Relation is the embedding relation for embed.
	Relation string `yaml:"relation,omitempty"`

	// As names the handle a create or embed step registers.
	As string `yaml:"as,omitempty"`

	// Doc is the replacement stored body for overwrite.
	Doc map[string]any `yaml:"doc,omitempty"`

	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect checks a step's outcome. Unset fields are not checked.
type StepExpect struct {
	// Ack is the expected store acknowledgement.
	Ack *bool `yaml:"ack,omitempty"`

	// Error is the expected error kind, e.g. document_not_found.
	Error string `yaml:"error,omitempty"`

	// Same checks whether reload returned the target instance itself.
	Same *bool `yaml:"same,omitempty"`

	// Address is the expected resolve result, e.g. people/p1#addresses.0.
	Address string `yaml:"address,omitempty"`
}

// Assertion validates the final store or graph.
type Assertion struct {
	Type string `yaml:"type"`

	Target string `yaml:"target,omitempty"`

	// Expect is a subset of fields (stored, node).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Relation and Count are used by embedded_count; Call and Count by
	// store_calls.
	Relation string `yaml:"relation,omitempty"`
	Call     string `yaml:"call,omitempty"`
	Count    int    `yaml:"count,omitempty"`
}

// Step operations.
const (
	OpCreate         = "create"
	OpEmbed          = "embed"
	OpSet            = "set"
	OpSave           = "save"
	OpBecomes        = "becomes"
	OpDelete         = "delete"
	OpPush           = "push"
	OpAddToSet       = "add_to_set"
	OpReload         = "reload"
	OpResolve        = "resolve"
	OpOverwrite      = "overwrite"
	OpExternalDelete = "external_delete"
)

// Assertion types.
const (
	AssertStored        = "stored"
	AssertNotStored     = "not_stored"
	AssertNode          = "node"
	AssertClean         = "clean"
	AssertEmbeddedCount = "embedded_count"
	AssertStoreCalls    = "store_calls"
)

// LoadScenario reads and parses a scenario YAML file. Unknown keys are
// rejected and the schema path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(filepath.Dir(path), scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if _, err := os.Stat(s.Schema); err != nil {
		return fmt.Errorf("schema not found: %s", s.Schema)
	}
	switch s.Driver {
	case "", "sqlite", "badger":
	default:
		return fmt.Errorf("driver must be sqlite or badger, got %q", s.Driver)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, doc := range s.Setup {
		if doc.Type == "" {
			return fmt.Errorf("setup[%d]: type is required", i)
		}
		if id, ok := doc.Doc["_id"].(string); !ok || id == "" {
			return fmt.Errorf("setup[%d]: doc._id is required", i)
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	needTarget := true
	switch s.Op {
	case OpCreate:
		needTarget = false
		if s.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for create", index)
		}
	case OpEmbed:
		if s.Type == "" || s.Relation == "" {
			return fmt.Errorf("steps[%d]: type and relation are required for embed", index)
		}
	case OpBecomes:
		if s.Type == "" {
			return fmt.Errorf("steps[%d]: type is required for becomes", index)
		}
	case OpPush, OpAddToSet, OpSet:
		if len(s.Values) == 0 {
			return fmt.Errorf("steps[%d]: values are required for %s", index, s.Op)
		}
	case OpOverwrite:
		if s.Doc == nil {
			return fmt.Errorf("steps[%d]: doc is required for overwrite", index)
		}
	case OpSave, OpDelete, OpReload, OpResolve, OpExternalDelete:
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	if needTarget && s.Target == "" {
		return fmt.Errorf("steps[%d]: target is required for %s", index, s.Op)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertStored, AssertNode:
		if a.Target == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: target and expect are required for %s", index, a.Type)
		}
	case AssertNotStored, AssertClean:
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
	case AssertEmbeddedCount:
		if a.Target == "" || a.Relation == "" {
			return fmt.Errorf("assertions[%d]: target and relation are required for embedded_count", index)
		}
	case AssertStoreCalls:
		if a.Call == "" {
			return fmt.Errorf("assertions[%d]: call is required for store_calls", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	if a.Count < 0 {
		return fmt.Errorf("assertions[%d]: count must be non-negative", index)
	}
	return nil
}
