package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rowlog/internal/ir"
)

// Scenario defines one capture scenario: a catalog, the initial toggles,
// a series of transactions and the assertions over what they leave behind.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is the catalog file (YAML or CUE). Relative paths are
	// resolved against the scenario file's directory.
	Catalog string `yaml:"catalog"`

	// TxID is stamped on every entry. Defaults to "test-tx-default".
	TxID string `yaml:"tx_id,omitempty"`

	// ClockStart enables timestamps: the first entry gets ClockStart+1,
	// each later one the previous plus 1. Zero leaves timestamps NULL.
	ClockStart int64 `yaml:"clock_start,omitempty"`

	// Register seeds toggles before any transaction runs. Tables not
	// listed have no toggle row and capture by default.
	Register []Registration `yaml:"register,omitempty"`

	// Transactions run in order, each in its own capture transaction.
	Transactions []Transaction `yaml:"transactions"`

	// Assertions validate the committed log and final table state.
	Assertions []Assertion `yaml:"assertions"`
}

// Registration seeds one table's capture toggle.
type Registration struct {
	Table   string `yaml:"table"`
	Enabled bool   `yaml:"enabled"`
}

// Transaction is a list of steps run inside one capture transaction.
type Transaction struct {
	Steps []Step `yaml:"steps"`

	// Rollback ends the transaction with Rollback instead of Commit.
	Rollback bool `yaml:"rollback,omitempty"`

	// ExpectError is the CaptureError code the transaction must abort with.
	// When set, steps after the failing one are not run.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step is one write or toggle change.
type Step struct {
	// Op is one of insert, update, delete, toggle.
	Op string `yaml:"op"`

	// Table is "<namespace>.<table>".
	Table string `yaml:"table"`

	// Values are the inserted columns (insert).
	Values map[string]any `yaml:"values,omitempty"`

	// Key identifies the row (update, delete).
	Key map[string]any `yaml:"key,omitempty"`

	// Set holds the changed columns (update).
	Set map[string]any `yaml:"set,omitempty"`

	// Enabled is the new toggle value (toggle).
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Assertion validates the log or the final state.
type Assertion struct {
	// Type is one of log_count, log_order, log_contains, final_state.
	Type string `yaml:"type"`

	// Count is the expected number of entries (log_count).
	Count int `yaml:"count,omitempty"`

	// Entries is the expected "<OPTYPE> <table>" sequence (log_order).
	Entries []string `yaml:"entries,omitempty"`

	// Table names the table (log_contains, final_state).
	Table string `yaml:"table,omitempty"`

	// OpType is the expected entry kind (log_contains).
	OpType string `yaml:"optype,omitempty"`

	// Key is the expected primary key (log_contains).
	Key map[string]any `yaml:"key,omitempty"`

	// NewRow and OldRow are subset matches on the images (log_contains).
	NewRow map[string]any `yaml:"new_row,omitempty"`
	OldRow map[string]any `yaml:"old_row,omitempty"`

	// Where selects the row by primary key (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Expect holds expected column values, subset match (final_state).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent asserts that no row matches Where (final_state).
	Absent bool `yaml:"absent,omitempty"`
}

// Assertion type constants.
const (
	AssertLogCount    = "log_count"
	AssertLogOrder    = "log_order"
	AssertLogContains = "log_contains"
	AssertFinalState  = "final_state"
)

// Step op constants.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpToggle = "toggle"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve the catalog path relative to the scenario BEFORE validation
	if scenario.Catalog != "" && !filepath.IsAbs(scenario.Catalog) {
		scenario.Catalog = filepath.Join(filepath.Dir(path), scenario.Catalog)
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if _, err := os.Stat(scenario.Catalog); err != nil {
		return nil, fmt.Errorf("invalid scenario: catalog file not found: %s", scenario.Catalog)
	}

	return scenario, nil
}

// ParseScenario decodes a scenario without resolving or checking the
// catalog path.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
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
	if s.Catalog == "" {
		return fmt.Errorf("catalog is required")
	}
	if len(s.Transactions) == 0 {
		return fmt.Errorf("transactions list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, r := range s.Register {
		if _, err := ir.ParseTableKey(r.Table); err != nil {
			return fmt.Errorf("register[%d]: %w", i, err)
		}
	}

	for i, txn := range s.Transactions {
		if len(txn.Steps) == 0 {
			return fmt.Errorf("transactions[%d]: steps list is required", i)
		}
		if txn.ExpectError != "" && txn.Rollback {
			return fmt.Errorf("transactions[%d]: expect_error and rollback are exclusive", i)
		}
		for j, step := range txn.Steps {
			if err := validateStep(step); err != nil {
				return fmt.Errorf("transactions[%d].steps[%d]: %w", i, j, err)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step) error {
	if _, err := ir.ParseTableKey(step.Table); err != nil {
		return err
	}
	switch step.Op {
	case OpInsert:
		if step.Values == nil {
			return fmt.Errorf("insert requires values (use {} for defaults only)")
		}
	case OpUpdate:
		if len(step.Key) == 0 || len(step.Set) == 0 {
			return fmt.Errorf("update requires key and set")
		}
	case OpDelete:
		if len(step.Key) == 0 {
			return fmt.Errorf("delete requires key")
		}
	case OpToggle:
		if step.Enabled == nil {
			return fmt.Errorf("toggle requires enabled")
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	case AssertLogOrder:
		for j, e := range a.Entries {
			if _, _, err := parseOrderEntry(e); err != nil {
				return fmt.Errorf("assertions[%d].entries[%d]: %w", index, j, err)
			}
		}
	case AssertLogContains:
		if _, err := ir.ParseTableKey(a.Table); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if _, err := ir.ParseOpType(a.OpType); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
	case AssertFinalState:
		if _, err := ir.ParseTableKey(a.Table); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: where is required for final_state", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
