package capture

import (
	"fmt"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
)

// Guard rejects an update that would change the primary key of an existing
// row. old is the row as stored; incoming is the row the update would
// produce. Both are compared after coercion to the key columns' types, so
// "1" and 1 are the same key for an INTEGER column.
//
// The first differing key column is reported in a PRIMARY_KEY_IMMUTABLE
// error. Guard has no side effects; the caller aborts the transaction.
func Guard(schema catalog.TableSchema, old, incoming ir.RowImage) error {
	key := schema.Key()
	for _, col := range schema.PrimaryKey {
		desc, _ := schema.Column(col)

		before, ok := old.Get(col)
		if !ok {
			return ir.NewInvalidRowError(key, fmt.Sprintf("stored row is missing key column %q", col))
		}
		after, ok := incoming.Get(col)
		if !ok {
			return ir.NewInvalidRowError(key, fmt.Sprintf("incoming row is missing key column %q", col))
		}

		before = catalog.Coerce(desc.Type, before)
		after = catalog.Coerce(desc.Type, after)
		if !ir.Equal(before, after) {
			return ir.NewPrimaryKeyImmutableError(key, col, before, after)
		}
	}
	return nil
}

// applySet returns old with the columns of set replaced, keeping column order.
func applySet(old ir.RowImage, set ir.Row) ir.RowImage {
	out := make(ir.RowImage, len(old))
	for i, f := range old {
		if v, ok := set[f.Column]; ok {
			out[i] = ir.F(f.Column, v)
			continue
		}
		out[i] = f
	}
	return out
}
