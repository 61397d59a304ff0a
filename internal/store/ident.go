package store

import (
	"strings"

	"github.com/roach88/rowlog/internal/ir"
)

// DefaultNamespace is the namespace stored directly in SQLite's main schema.
const DefaultNamespace = ir.DefaultNamespace

// Quote safely quotes a single identifier part.
func Quote(part string) string {
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// QuoteQualified renders qualified identifier parts as a SQL identifier.
func QuoteQualified(parts ...string) string {
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = Quote(p)
	}
	return strings.Join(quoted, ".")
}

// PhysicalName returns the SQLite table name backing a captured table.
func PhysicalName(key ir.TableKey) string {
	return key.PhysicalName()
}

// TableIdent returns the quoted, schema-qualified identifier of a captured
// table, e.g. "main"."items" or "main"."audit__items".
func TableIdent(key ir.TableKey) string {
	return QuoteQualified(DefaultNamespace, PhysicalName(key))
}

// QuoteColumns quotes each column name and joins them with ", ".
func QuoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = Quote(c)
	}
	return strings.Join(quoted, ", ")
}
