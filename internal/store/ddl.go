package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
)

// CreateTable creates the physical table for a catalog schema if it does not
// exist yet. It is a minimal helper for tooling and tests; schema evolution
// is left to the application's own migrations.
func CreateTable(ctx context.Context, q Queryer, schema catalog.TableSchema) error {
	stmt, err := CreateTableSQL(schema)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", schema.Key(), err)
	}
	return nil
}

// CreateTableSQL renders the CREATE TABLE statement for a schema.
func CreateTableSQL(schema catalog.TableSchema) (string, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(TableIdent(schema.Key()))
	b.WriteString(" (\n")

	for _, col := range schema.Columns {
		b.WriteString("  ")
		b.WriteString(Quote(col.Name))
		b.WriteString(" ")
		b.WriteString(string(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		if col.HasDefault() {
			lit, err := sqlLiteral(col.Default)
			if err != nil {
				return "", fmt.Errorf("create table %s: column %q: %w", schema.Key(), col.Name, err)
			}
			b.WriteString(" DEFAULT ")
			b.WriteString(lit)
		}
		b.WriteString(",\n")
	}

	b.WriteString("  PRIMARY KEY (")
	b.WriteString(QuoteColumns(schema.PrimaryKey))
	b.WriteString(")\n)")
	return b.String(), nil
}

// sqlLiteral renders a value as a DEFAULT clause literal.
// Negative numbers are parenthesized so they parse as expressions.
func sqlLiteral(v ir.IRValue) (string, error) {
	switch val := v.(type) {
	case nil, ir.IRNull:
		return "NULL", nil
	case ir.IRString:
		return "'" + strings.ReplaceAll(string(val), "'", "''") + "'", nil
	case ir.IRInt:
		return wrapNegative(strconv.FormatInt(int64(val), 10)), nil
	case ir.IRReal:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("non-finite default %v", f)
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return wrapNegative(s), nil
	case ir.IRBool:
		if val {
			return "1", nil
		}
		return "0", nil
	case ir.IRBlob:
		return "X'" + hex.EncodeToString(val) + "'", nil
	default:
		return "", fmt.Errorf("unsupported default value %T", v)
	}
}

func wrapNegative(s string) string {
	if strings.HasPrefix(s, "-") {
		return "(" + s + ")"
	}
	return s
}

// CheckDefaults verifies that the physical table backing schema exists with
// every catalog column and that its DEFAULT clauses produce the catalog's
// declared defaults. Inserts log whatever default the table applies, so a
// table built by other migrations has to agree with the catalog.
func CheckDefaults(ctx context.Context, q Queryer, schema catalog.TableSchema) error {
	key := schema.Key()
	rows, err := q.QueryContext(ctx,
		`SELECT name, dflt_value FROM pragma_table_info(?, ?)`, PhysicalName(key), DefaultNamespace)
	if err != nil {
		return fmt.Errorf("read columns of %s: %w", key, err)
	}
	physical := make(map[string]sql.NullString)
	for rows.Next() {
		var name string
		var dflt sql.NullString
		if err := rows.Scan(&name, &dflt); err != nil {
			_ = rows.Close()
			return fmt.Errorf("read columns of %s: %w", key, err)
		}
		physical[name] = dflt
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return fmt.Errorf("read columns of %s: %w", key, err)
	}
	// Close before evaluating defaults: the store runs on one connection.
	if err := rows.Close(); err != nil {
		return fmt.Errorf("read columns of %s: %w", key, err)
	}
	if len(physical) == 0 {
		return fmt.Errorf("table %s: physical table %s does not exist", key, TableIdent(key))
	}

	for _, col := range schema.Columns {
		dflt, ok := physical[col.Name]
		if !ok {
			return fmt.Errorf("table %s: physical table has no column %q", key, col.Name)
		}
		got, err := evalDefault(ctx, q, col, dflt)
		if err != nil {
			return fmt.Errorf("table %s: column %q: %w", key, col.Name, err)
		}
		switch {
		case !col.HasDefault() && got != nil && !ir.IsNull(got):
			return fmt.Errorf("table %s: column %q has DEFAULT %s but the catalog declares none",
				key, col.Name, dflt.String)
		case col.HasDefault() && (got == nil || !ir.Equal(got, col.Default)):
			return fmt.Errorf("table %s: column %q default is %s, catalog declares %v",
				key, col.Name, defaultText(dflt), col.Default)
		}
	}
	return nil
}

// evalDefault evaluates a column's DEFAULT expression as SQLite would for an
// insert. It returns nil when the column has no DEFAULT clause.
func evalDefault(ctx context.Context, q Queryer, col catalog.ColumnDescriptor, dflt sql.NullString) (ir.IRValue, error) {
	if !dflt.Valid {
		return nil, nil
	}
	var raw any
	if err := q.QueryRowContext(ctx, "SELECT "+dflt.String).Scan(&raw); err != nil {
		return nil, fmt.Errorf("evaluate DEFAULT %s: %w", dflt.String, err)
	}
	v, err := ir.FromSQL(raw)
	if err != nil {
		return nil, fmt.Errorf("evaluate DEFAULT %s: %w", dflt.String, err)
	}
	return catalog.Coerce(col.Type, v), nil
}

func defaultText(dflt sql.NullString) string {
	if !dflt.Valid {
		return "absent"
	}
	return dflt.String
}
