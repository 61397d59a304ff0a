package harness

import "github.com/roach88/rowlog/internal/ir"

// TxOutcome records how one scenario transaction ended.
type TxOutcome struct {
	Index     int    `json:"index"`
	Committed bool   `json:"committed"`
	ErrorCode string `json:"error_code,omitempty"` // CaptureError code of the abort, if any
	Entries   int    `json:"entries"`              // entries the transaction appended before it ended
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	// Log is the committed operation log in sequence order.
	Log []ir.LogEntry `json:"log"`

	// Transactions holds one outcome per scenario transaction.
	Transactions []TxOutcome `json:"transactions"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Log:          []ir.LogEntry{},
		Transactions: []TxOutcome{},
		Errors:       []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
