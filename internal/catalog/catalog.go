// Package catalog holds the static description of every captured table.
//
// A Catalog is produced once (from schema tooling or a catalog file) and is
// read-only afterwards, so it is safe for concurrent use without locking.
package catalog

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/rowlog/internal/ir"
)

// ColumnType is a column's declared SQLite type. It drives value coercion
// the same way SQLite type affinity does.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBlob    ColumnType = "BLOB"
	TypeBoolean ColumnType = "BOOLEAN"
)

// ValidColumnTypes defines allowed column types.
var ValidColumnTypes = map[ColumnType]bool{
	TypeText:    true,
	TypeInteger: true,
	TypeReal:    true,
	TypeBlob:    true,
	TypeBoolean: true,
}

// ColumnDescriptor describes one column of a captured table.
type ColumnDescriptor struct {
	Name     string
	Type     ColumnType
	Nullable bool
	Default  ir.IRValue // nil when the column declares no default
}

// HasDefault reports whether the column declares a default value.
func (c ColumnDescriptor) HasDefault() bool {
	return c.Default != nil
}

// TableSchema describes a captured table.
// PrimaryKey lists the key columns in column declaration order.
type TableSchema struct {
	Namespace  string
	Name       string
	Columns    []ColumnDescriptor
	PrimaryKey []string
}

// Key returns the table's key.
func (s TableSchema) Key() ir.TableKey {
	return ir.TableKey{Namespace: s.Namespace, Name: s.Name}
}

// ColumnNames returns column names in declaration order.
func (s TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Column returns the descriptor for a column.
func (s TableSchema) Column(name string) (ColumnDescriptor, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDescriptor{}, false
}

// IsPrimaryKey reports whether the column is part of the primary key.
func (s TableSchema) IsPrimaryKey(column string) bool {
	return slices.Contains(s.PrimaryKey, column)
}

// normalizeIdent puts an identifier in NFC so that catalog files written
// with decomposed characters name the same tables and columns.
func normalizeIdent(s string) string {
	return norm.NFC.String(s)
}

// foldASCII lowercases ASCII letters only, the way SQLite compares
// identifiers.
func foldASCII(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// normalize rewrites every identifier of the schema in NFC.
func (s *TableSchema) normalize() {
	s.Namespace = normalizeIdent(s.Namespace)
	s.Name = normalizeIdent(s.Name)
	for i := range s.Columns {
		s.Columns[i].Name = normalizeIdent(s.Columns[i].Name)
	}
	for i := range s.PrimaryKey {
		s.PrimaryKey[i] = normalizeIdent(s.PrimaryKey[i])
	}
}

// validate checks the schema and normalizes PrimaryKey to declaration order.
func (s *TableSchema) validate() error {
	key := s.Key()
	if strings.TrimSpace(s.Namespace) == "" || strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("table %q: namespace and name are required", key)
	}
	if !utf8.ValidString(s.Namespace) || !utf8.ValidString(s.Name) {
		return fmt.Errorf("table %q: identifiers must be valid UTF-8", key)
	}
	if strings.Contains(s.Namespace, ".") {
		return fmt.Errorf("table %s: namespace may not contain '.'", key)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("table %s: no columns declared", key)
	}

	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("table %s: column %d has no name", key, i)
		}
		if !utf8.ValidString(c.Name) {
			return fmt.Errorf("table %s: column %q is not valid UTF-8", key, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: duplicate column %q", key, c.Name)
		}
		seen[c.Name] = true
		if !ValidColumnTypes[c.Type] {
			return fmt.Errorf("table %s: column %q has invalid type %q", key, c.Name, c.Type)
		}
		if c.Default != nil {
			s.Columns[i].Default = Coerce(c.Type, c.Default)
		}
	}

	if len(s.PrimaryKey) == 0 {
		return fmt.Errorf("table %s: primary key is required", key)
	}
	pk := make(map[string]bool, len(s.PrimaryKey))
	for _, col := range s.PrimaryKey {
		if !seen[col] {
			return fmt.Errorf("table %s: primary key column %q is not declared", key, col)
		}
		if pk[col] {
			return fmt.Errorf("table %s: primary key column %q listed twice", key, col)
		}
		pk[col] = true
	}

	ordered := make([]string, 0, len(s.PrimaryKey))
	for i, c := range s.Columns {
		if pk[c.Name] {
			if c.Nullable {
				return fmt.Errorf("table %s: primary key column %q cannot be nullable", key, c.Name)
			}
			ordered = append(ordered, s.Columns[i].Name)
		}
	}
	s.PrimaryKey = ordered
	return nil
}

// Catalog is the read-only set of captured tables.
type Catalog struct {
	tables map[ir.TableKey]TableSchema
	order  []ir.TableKey
}

// New validates the given schemas and builds a catalog.
// Schemas are copied; later changes by the caller are not observed.
// Identifiers are stored in NFC. Two tables backed by the same physical
// SQLite table are rejected.
func New(tables ...TableSchema) (*Catalog, error) {
	c := &Catalog{tables: make(map[ir.TableKey]TableSchema, len(tables))}
	physical := make(map[string]ir.TableKey, len(tables))
	for _, t := range tables {
		t.Columns = slices.Clone(t.Columns)
		t.PrimaryKey = slices.Clone(t.PrimaryKey)
		t.normalize()
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		key := t.Key()
		if _, dup := c.tables[key]; dup {
			return nil, fmt.Errorf("catalog: table %s declared twice", key)
		}
		name := foldASCII(key.PhysicalName())
		if other, clash := physical[name]; clash {
			return nil, fmt.Errorf("catalog: tables %s and %s both map to physical table %q",
				other, key, key.PhysicalName())
		}
		physical[name] = key
		c.tables[key] = t
		c.order = append(c.order, key)
	}
	slices.SortFunc(c.order, func(a, b ir.TableKey) int {
		if n := strings.Compare(a.Namespace, b.Namespace); n != 0 {
			return n
		}
		return strings.Compare(a.Name, b.Name)
	})
	return c, nil
}

// Lookup returns the schema of a table, or an UNKNOWN_TABLE error.
func (c *Catalog) Lookup(namespace, name string) (TableSchema, error) {
	return c.LookupKey(ir.TableKey{Namespace: namespace, Name: name})
}

// LookupKey is Lookup by key.
func (c *Catalog) LookupKey(key ir.TableKey) (TableSchema, error) {
	t, ok := c.tables[key]
	if !ok {
		return TableSchema{}, ir.NewUnknownTableError(key)
	}
	return t, nil
}

// Tables returns every schema ordered by (namespace, name).
func (c *Catalog) Tables() []TableSchema {
	out := make([]TableSchema, len(c.order))
	for i, k := range c.order {
		out[i] = c.tables[k]
	}
	return out
}

// Len returns the number of tables in the catalog.
func (c *Catalog) Len() int {
	return len(c.order)
}
