package ir

import (
	"fmt"
	"strings"
)

// DefaultNamespace is the namespace stored directly in SQLite's main schema.
const DefaultNamespace = "main"

// namespaceSeparator joins namespace and table name for tables outside the
// default namespace.
const namespaceSeparator = "__"

// TableKey identifies a captured table.
type TableKey struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// String renders the key in its persisted form "<namespace>.<table>".
func (k TableKey) String() string {
	return k.Namespace + "." + k.Name
}

// PhysicalName returns the SQLite table name backing the table: the bare
// name in the default namespace, "<namespace>__<table>" elsewhere.
// Distinct keys can share a physical name; the catalog rejects that.
func (k TableKey) PhysicalName() string {
	if k.Namespace == DefaultNamespace {
		return k.Name
	}
	return k.Namespace + namespaceSeparator + k.Name
}

// ParseTableKey parses "<namespace>.<table>".
// The namespace ends at the first dot; table names may not be empty.
func ParseTableKey(s string) (TableKey, error) {
	ns, name, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || ns == "" || name == "" {
		return TableKey{}, fmt.Errorf("invalid table key %q: want <namespace>.<table>", s)
	}
	return TableKey{Namespace: ns, Name: name}, nil
}

// ToggleEntry is one row of the capture toggle store.
type ToggleEntry struct {
	Table   TableKey `json:"table"`
	Enabled bool     `json:"enabled"`
}
