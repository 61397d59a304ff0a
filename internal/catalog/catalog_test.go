package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rowlog/internal/ir"
)

func itemsSchema() TableSchema {
	return TableSchema{
		Namespace: "main",
		Name:      "items",
		Columns: []ColumnDescriptor{
			{Name: "id", Type: TypeText},
			{Name: "content", Type: TypeText},
			{Name: "intvalue_null", Type: TypeInteger, Nullable: true},
			{Name: "intvalue_null_default", Type: TypeInteger, Nullable: true, Default: ir.IRInt(10)},
		},
		PrimaryKey: []string{"id"},
	}
}

func TestNewAndLookup(t *testing.T) {
	cat, err := New(itemsSchema())
	require.NoError(t, err)

	s, err := cat.Lookup("main", "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "content", "intvalue_null", "intvalue_null_default"}, s.ColumnNames())
	assert.Equal(t, []string{"id"}, s.PrimaryKey)
	assert.True(t, s.IsPrimaryKey("id"))
	assert.False(t, s.IsPrimaryKey("content"))

	col, ok := s.Column("intvalue_null_default")
	require.True(t, ok)
	assert.True(t, col.HasDefault())
	assert.Equal(t, ir.IRInt(10), col.Default)
}

func TestLookupUnknownTable(t *testing.T) {
	cat, err := New(itemsSchema())
	require.NoError(t, err)

	_, err = cat.Lookup("main", "missing")
	require.Error(t, err)
	assert.True(t, ir.IsUnknownTable(err))

	_, err = cat.Lookup("other", "items")
	assert.True(t, ir.IsUnknownTable(err), "namespace is part of the identity")
}

func TestTablesDeterministicOrder(t *testing.T) {
	b := itemsSchema()
	b.Name = "b"
	a := itemsSchema()
	a.Name = "a"
	z := itemsSchema()
	z.Namespace = "aux"
	z.Name = "z"

	cat, err := New(b, a, z)
	require.NoError(t, err)

	var keys []string
	for _, s := range cat.Tables() {
		keys = append(keys, s.Key().String())
	}
	assert.Equal(t, []string{"aux.z", "main.a", "main.b"}, keys)
	assert.Equal(t, 3, cat.Len())
}

func TestPrimaryKeyNormalizedToDeclarationOrder(t *testing.T) {
	s := TableSchema{
		Namespace: "main",
		Name:      "pairs",
		Columns: []ColumnDescriptor{
			{Name: "a", Type: TypeText},
			{Name: "b", Type: TypeInteger},
			{Name: "v", Type: TypeText, Nullable: true},
		},
		PrimaryKey: []string{"b", "a"},
	}
	cat, err := New(s)
	require.NoError(t, err)

	got, err := cat.Lookup("main", "pairs")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.PrimaryKey)
}

func TestNewCopiesInput(t *testing.T) {
	s := itemsSchema()
	cat, err := New(s)
	require.NoError(t, err)

	s.Columns[1].Name = "mutated"
	got, err := cat.Lookup("main", "items")
	require.NoError(t, err)
	assert.Equal(t, "content", got.Columns[1].Name)
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TableSchema)
		errMsg string
	}{
		{"no name", func(s *TableSchema) { s.Name = "" }, "namespace and name are required"},
		{"dotted namespace", func(s *TableSchema) { s.Namespace = "a.b" }, "may not contain"},
		{"no columns", func(s *TableSchema) { s.Columns = nil }, "no columns"},
		{"duplicate column", func(s *TableSchema) { s.Columns[1].Name = "id" }, "duplicate column"},
		{"bad type", func(s *TableSchema) { s.Columns[1].Type = "VARCHAR" }, "invalid type"},
		{"no pk", func(s *TableSchema) { s.PrimaryKey = nil }, "primary key is required"},
		{"unknown pk column", func(s *TableSchema) { s.PrimaryKey = []string{"nope"} }, "not declared"},
		{"repeated pk column", func(s *TableSchema) { s.PrimaryKey = []string{"id", "id"} }, "listed twice"},
		{"nullable pk", func(s *TableSchema) { s.Columns[0].Nullable = true }, "cannot be nullable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := itemsSchema()
			tt.mutate(&s)
			_, err := New(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewRejectsDuplicateTable(t *testing.T) {
	_, err := New(itemsSchema(), itemsSchema())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestNewRejectsPhysicalNameCollision(t *testing.T) {
	pairs := itemsSchema()
	pairs.Namespace = "audit"
	pairs.Name = "pairs"
	flat := itemsSchema()
	flat.Name = "audit__pairs"

	_, err := New(pairs, flat)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `both map to physical table "audit__pairs"`)

	// SQLite folds ASCII case in identifiers.
	upper := itemsSchema()
	upper.Name = "ITEMS"
	_, err = New(itemsSchema(), upper)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both map to physical table")

	other := itemsSchema()
	other.Namespace = "audit"
	_, err = New(itemsSchema(), other)
	require.NoError(t, err, "audit.items is stored as audit__items")
}

func TestNewNormalizesIdentifiersToNFC(t *testing.T) {
	s := itemsSchema()
	s.Name = "cafe\u0301"
	s.Columns[1].Name = "re\u0301sume\u0301"

	cat, err := New(s)
	require.NoError(t, err)

	got, err := cat.Lookup("main", "caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9", got.Name)
	assert.Equal(t, "r\u00e9sum\u00e9", got.Columns[1].Name)

	// Both spellings name the same table.
	_, err = New(itemsSchema(), s, func() TableSchema { c := s; c.Name = "caf\u00e9"; return c }())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestNewRejectsInvalidUTF8Identifiers(t *testing.T) {
	badTable := itemsSchema()
	badTable.Name = "it\xffems"
	badColumn := itemsSchema()
	badColumn.Columns = append([]ColumnDescriptor{}, badColumn.Columns...)
	badColumn.Columns[1].Name = "con\xfftent"

	_, err := New(badTable)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid UTF-8")

	_, err = New(badColumn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid UTF-8")
}

func TestDefaultCoercedToColumnType(t *testing.T) {
	s := itemsSchema()
	s.Columns[3].Default = ir.IRString("10")
	cat, err := New(s)
	require.NoError(t, err)

	got, err := cat.Lookup("main", "items")
	require.NoError(t, err)
	col, _ := got.Column("intvalue_null_default")
	assert.Equal(t, ir.IRInt(10), col.Default)
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		typ      ColumnType
		in       ir.IRValue
		expected ir.IRValue
	}{
		{"null stays null", TypeInteger, nil, ir.Null},
		{"int from numeric text", TypeInteger, ir.IRString("42"), ir.IRInt(42)},
		{"int from integral real", TypeInteger, ir.IRReal(3), ir.IRInt(3)},
		{"int keeps fractional real", TypeInteger, ir.IRReal(3.5), ir.IRReal(3.5)},
		{"int from bool", TypeInteger, ir.IRBool(true), ir.IRInt(1)},
		{"int keeps text", TypeInteger, ir.IRString("abc"), ir.IRString("abc")},
		{"real from int", TypeReal, ir.IRInt(2), ir.IRReal(2)},
		{"real from text", TypeReal, ir.IRString("2.5"), ir.IRReal(2.5)},
		{"text from int", TypeText, ir.IRInt(7), ir.IRString("7")},
		{"text from real", TypeText, ir.IRReal(1.5), ir.IRString("1.5")},
		{"bool from int", TypeBoolean, ir.IRInt(0), ir.IRBool(false)},
		{"bool from text", TypeBoolean, ir.IRString("true"), ir.IRBool(true)},
		{"blob untouched", TypeBlob, ir.IRString("x"), ir.IRString("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tt.typ, tt.in)
			assert.True(t, ir.Equal(tt.expected, got), "got %#v", got)
		})
	}
}

func assertLoadedItems(t *testing.T, cat *Catalog) {
	t.Helper()
	require.Equal(t, 2, cat.Len())

	items, err := cat.Lookup("main", "items")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "content", "intvalue_null", "intvalue_null_default"}, items.ColumnNames())
	col, _ := items.Column("intvalue_null_default")
	assert.Equal(t, ir.IRInt(10), col.Default)
	assert.True(t, col.Nullable)

	parent, err := cat.Lookup("main", "parent")
	require.NoError(t, err, "namespace defaults to main")
	valueCol, _ := parent.Column("value")
	assert.Equal(t, TypeText, valueCol.Type, "types are case-insensitive")
}

func TestLoadFileYAML(t *testing.T) {
	cat, err := LoadFile(filepath.Join("testdata", "items.yaml"))
	require.NoError(t, err)
	assertLoadedItems(t, cat)
}

func TestLoadFileCUE(t *testing.T) {
	cat, err := LoadFile(filepath.Join("testdata", "items.cue"))
	require.NoError(t, err)
	assertLoadedItems(t, cat)
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
		return p
	}

	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{"missing file", filepath.Join(dir, "nope.yaml"), "read catalog"},
		{"bad extension", write("c.json", "{}"), "unsupported catalog extension"},
		{"bad yaml", write("bad.yaml", "tables: [:"), "decode catalog"},
		{"bad cue", write("bad.cue", "tables: [ {name: }"), "decode catalog"},
		{"empty", write("empty.yaml", "tables: []"), "no tables declared"},
		{"invalid schema", write("nopk.yaml", "tables:\n  - name: t\n    columns:\n      - {name: id, type: TEXT}\n"), "primary key is required"},
		{"bad default", write("def.yaml", "tables:\n  - name: t\n    primary_key: [id]\n    columns:\n      - {name: id, type: TEXT}\n      - {name: v, type: TEXT, default: [1]}\n"), "unsupported default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(tt.path)
			require.Error(t, err)
			var le *LoadError
			require.ErrorAs(t, err, &le)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
