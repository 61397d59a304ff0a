package ir

import "fmt"

// OpType is the kind of write a log entry documents.
type OpType string

const (
	OpInsert OpType = "INSERT"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// ValidOpTypes defines allowed operation types.
var ValidOpTypes = map[OpType]bool{
	OpInsert: true,
	OpUpdate: true,
	OpDelete: true,
}

// ParseOpType parses an operation name, case-sensitively.
func ParseOpType(s string) (OpType, error) {
	op := OpType(s)
	if !ValidOpTypes[op] {
		return "", fmt.Errorf("invalid optype %q: must be INSERT, UPDATE or DELETE", s)
	}
	return op, nil
}

// LogEntry is one record of the operation log.
//
// Shape invariants (checked by Validate):
//   - INSERT: NewRow present, OldRow absent
//   - UPDATE: NewRow and OldRow present
//   - DELETE: OldRow present, NewRow absent
//   - PrimaryKey always present
type LogEntry struct {
	Sequence   int64     `json:"sequence"`   // Assigned by the log on append
	Namespace  string    `json:"namespace"`  // Acting table namespace
	Table      string    `json:"tablename"`  // Acting table name
	OpType     OpType    `json:"optype"`     // Which write path fired
	PrimaryKey RowImage  `json:"primaryKey"` // PK columns in declaration order
	NewRow     *RowImage `json:"newRow"`     // nil encodes as null
	OldRow     *RowImage `json:"oldRow"`     // nil encodes as null
	Timestamp  *int64    `json:"timestamp"`  // Reserved for downstream use
	TxID       string    `json:"txId"`       // Shared by entries of one transaction
}

// Key returns the entry's table key.
func (e LogEntry) Key() TableKey {
	return TableKey{Namespace: e.Namespace, Name: e.Table}
}

// Validate checks the shape invariants of the entry against the acting
// table's primary-key columns.
func (e LogEntry) Validate(pkColumns []string) error {
	if e.Namespace == "" || e.Table == "" {
		return fmt.Errorf("log entry: namespace and tablename are required")
	}

	switch e.OpType {
	case OpInsert:
		if e.NewRow == nil || e.OldRow != nil {
			return fmt.Errorf("log entry: INSERT requires newRow and forbids oldRow")
		}
	case OpUpdate:
		if e.NewRow == nil || e.OldRow == nil {
			return fmt.Errorf("log entry: UPDATE requires newRow and oldRow")
		}
	case OpDelete:
		if e.OldRow == nil || e.NewRow != nil {
			return fmt.Errorf("log entry: DELETE requires oldRow and forbids newRow")
		}
	default:
		return fmt.Errorf("log entry: invalid optype %q", e.OpType)
	}

	if len(e.PrimaryKey) != len(pkColumns) {
		return fmt.Errorf("log entry: primary key has %d columns, table declares %d",
			len(e.PrimaryKey), len(pkColumns))
	}
	for i, col := range pkColumns {
		if e.PrimaryKey[i].Column != col {
			return fmt.Errorf("log entry: primary key column %d is %q, want %q",
				i, e.PrimaryKey[i].Column, col)
		}
	}
	return nil
}
