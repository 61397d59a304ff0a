package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
)

// OpenStore opens a fresh store in a temp dir, closed at test cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "rowlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ItemsSchema is main.items: a text key, a required text column and two
// nullable integers, the second defaulting to 10.
func ItemsSchema() catalog.TableSchema {
	return catalog.TableSchema{
		Namespace: "main",
		Name:      "items",
		Columns: []catalog.ColumnDescriptor{
			{Name: "id", Type: catalog.TypeText},
			{Name: "content", Type: catalog.TypeText},
			{Name: "intvalue_null", Type: catalog.TypeInteger, Nullable: true},
			{Name: "intvalue_null_default", Type: catalog.TypeInteger, Nullable: true, Default: ir.IRInt(10)},
		},
		PrimaryKey: []string{"id"},
	}
}

// ParentSchema is main.parent: an integer key and a nullable text value.
func ParentSchema() catalog.TableSchema {
	return catalog.TableSchema{
		Namespace: "main",
		Name:      "parent",
		Columns: []catalog.ColumnDescriptor{
			{Name: "id", Type: catalog.TypeInteger},
			{Name: "value", Type: catalog.TypeText, Nullable: true},
		},
		PrimaryKey: []string{"id"},
	}
}

// PairsSchema is audit.pairs: a composite (a, b) key plus a boolean.
func PairsSchema() catalog.TableSchema {
	return catalog.TableSchema{
		Namespace: "audit",
		Name:      "pairs",
		Columns: []catalog.ColumnDescriptor{
			{Name: "a", Type: catalog.TypeText},
			{Name: "b", Type: catalog.TypeInteger},
			{Name: "active", Type: catalog.TypeBoolean, Nullable: true},
		},
		PrimaryKey: []string{"a", "b"},
	}
}

// SampleCatalog builds a catalog of the sample schemas.
func SampleCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(ItemsSchema(), ParentSchema(), PairsSchema())
	require.NoError(t, err)
	return cat
}
