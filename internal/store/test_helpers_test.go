package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// itemsSchema is the table used throughout the store tests.
func itemsSchema(namespace string) catalog.TableSchema {
	cat, err := catalog.New(catalog.TableSchema{
		Namespace: namespace,
		Name:      "items",
		Columns: []catalog.ColumnDescriptor{
			{Name: "id", Type: catalog.TypeText},
			{Name: "content", Type: catalog.TypeText},
			{Name: "intvalue_null", Type: catalog.TypeInteger, Nullable: true},
			{Name: "intvalue_null_default", Type: catalog.TypeInteger, Nullable: true, Default: ir.IRInt(10)},
			{Name: "flag", Type: catalog.TypeBoolean, Nullable: true},
			{Name: "payload", Type: catalog.TypeBlob, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	})
	if err != nil {
		panic(err)
	}
	return cat.Tables()[0]
}
