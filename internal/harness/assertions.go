package harness

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Log      []ir.LogEntry // Full log for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Log) > 0 {
		fmt.Fprintf(&buf, "\nFull log:\n")
		for _, entry := range e.Log {
			fmt.Fprintf(&buf, "  [%d] %s %s pk=%s\n", entry.Sequence, entry.OpType, entry.Key(), formatImage(entry.PrimaryKey))
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	DB      *sql.DB
	Catalog *catalog.Catalog
	Ctx     context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides database access for final_state and the
// catalog for value coercion.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertLogCount:
			err = assertLogCount(result.Log, assertion)
		case AssertLogOrder:
			err = assertLogOrder(result.Log, assertion)
		case AssertLogContains:
			if actx == nil || actx.Catalog == nil {
				err = fmt.Errorf("assertion[%d]: log_contains requires a catalog", i)
			} else {
				err = assertLogContains(result.Log, assertion, actx.Catalog)
			}
		case AssertFinalState:
			if actx == nil || actx.DB == nil || actx.Catalog == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.DB, actx.Catalog, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}

// assertLogCount checks the total number of committed entries.
func assertLogCount(log []ir.LogEntry, assertion Assertion) error {
	if len(log) != assertion.Count {
		return &AssertionError{
			Type:     AssertLogCount,
			Expected: fmt.Sprintf("%d entries", assertion.Count),
			Actual:   fmt.Sprintf("%d entries", len(log)),
			Log:      log,
		}
	}
	return nil
}

// assertLogOrder checks that the log is exactly the listed entries.
func assertLogOrder(log []ir.LogEntry, assertion Assertion) error {
	actual := make([]string, len(log))
	for i, e := range log {
		actual[i] = fmt.Sprintf("%s %s", e.OpType, e.Key())
	}

	mismatch := len(actual) != len(assertion.Entries)
	for i := 0; !mismatch && i < len(actual); i++ {
		op, key, _ := parseOrderEntry(assertion.Entries[i])
		mismatch = actual[i] != fmt.Sprintf("%s %s", op, key)
	}
	if mismatch {
		return &AssertionError{
			Type:     AssertLogOrder,
			Expected: fmt.Sprintf("%v", assertion.Entries),
			Actual:   fmt.Sprintf("%v", actual),
			Log:      log,
		}
	}
	return nil
}

// parseOrderEntry parses "<OPTYPE> <namespace>.<table>".
func parseOrderEntry(s string) (ir.OpType, ir.TableKey, error) {
	opStr, keyStr, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return "", ir.TableKey{}, fmt.Errorf("invalid log_order entry %q: want \"<OPTYPE> <namespace>.<table>\"", s)
	}
	op, err := ir.ParseOpType(opStr)
	if err != nil {
		return "", ir.TableKey{}, err
	}
	key, err := ir.ParseTableKey(keyStr)
	if err != nil {
		return "", ir.TableKey{}, err
	}
	return op, key, nil
}

// assertLogContains checks that some entry matches the table, the optype,
// the exact primary key and the given subsets of its images.
func assertLogContains(log []ir.LogEntry, assertion Assertion, cat *catalog.Catalog) error {
	key, err := ir.ParseTableKey(assertion.Table)
	if err != nil {
		return err
	}
	schema, err := cat.LookupKey(key)
	if err != nil {
		return err
	}
	op, err := ir.ParseOpType(assertion.OpType)
	if err != nil {
		return err
	}

	for _, entry := range log {
		if entry.Key() != key || entry.OpType != op {
			continue
		}
		if len(assertion.Key) > 0 && (len(entry.PrimaryKey) != len(assertion.Key) || !matchImage(schema, &entry.PrimaryKey, assertion.Key)) {
			continue
		}
		if len(assertion.NewRow) > 0 && !matchImage(schema, entry.NewRow, assertion.NewRow) {
			continue
		}
		if len(assertion.OldRow) > 0 && !matchImage(schema, entry.OldRow, assertion.OldRow) {
			continue
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertLogContains,
		Expected: fmt.Sprintf("%s %s with key %s", op, key, formatValues(assertion.Key)),
		Actual:   "not found in log",
		Log:      log,
	}
}

// matchImage reports whether img holds every expected column value.
// Expected values are coerced to the column type before comparison.
func matchImage(schema catalog.TableSchema, img *ir.RowImage, expected map[string]any) bool {
	if img == nil {
		return false
	}
	for col, raw := range expected {
		desc, ok := schema.Column(col)
		if !ok {
			return false
		}
		want, err := catalog.Literal(raw)
		if err != nil {
			return false
		}
		got, ok := img.Get(col)
		if !ok || !ir.Equal(got, catalog.Coerce(desc.Type, want)) {
			return false
		}
	}
	return true
}

// assertFinalState reads the row selected by where from the base table and
// validates expected values using subset semantics.
//
// Identifiers come from the catalog, never from the scenario text, and
// values are bound as parameters.
func assertFinalState(ctx context.Context, db *sql.DB, cat *catalog.Catalog, assertion Assertion) error {
	key, err := ir.ParseTableKey(assertion.Table)
	if err != nil {
		return err
	}
	schema, err := cat.LookupKey(key)
	if err != nil {
		return err
	}

	clauses := make([]string, 0, len(assertion.Where))
	args := make([]any, 0, len(assertion.Where))
	for _, col := range sortedKeys(assertion.Where) {
		desc, ok := schema.Column(col)
		if !ok {
			return fmt.Errorf("final_state: unknown column %q in where clause of %s", col, key)
		}
		v, err := catalog.Literal(assertion.Where[col])
		if err != nil {
			return fmt.Errorf("final_state: where %q: %w", col, err)
		}
		clauses = append(clauses, store.Quote(col)+" = ?")
		args = append(args, ir.ToSQL(catalog.Coerce(desc.Type, v)))
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		store.QuoteColumns(schema.ColumnNames()), store.TableIdent(key), strings.Join(clauses, " AND "))
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", key),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	images, err := store.ScanImages(rows, schema)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	whereDesc := formatValues(assertion.Where)
	switch {
	case assertion.Absent && len(images) == 0:
		return nil
	case assertion.Absent:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("no row in %s where %s", key, whereDesc),
			Actual:   fmt.Sprintf("found %s", formatImage(images[0])),
		}
	case len(images) == 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", key, whereDesc),
			Actual:   "row not found",
		}
	case len(images) > 1:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", key, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	if !matchImage(schema, &images[0], assertion.Expect) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s with %s", key, formatValues(assertion.Expect)),
			Actual:   formatImage(images[0]),
		}
	}
	return nil
}

// formatValues renders expected values deterministically.
func formatValues(values map[string]any) string {
	if len(values) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(values))
	for _, k := range sortedKeys(values) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, values[k]))
	}
	return strings.Join(parts, " AND ")
}

func formatImage(img ir.RowImage) string {
	data, err := img.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", []ir.Field(img))
	}
	return string(data)
}
