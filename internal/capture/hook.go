package capture

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
	"github.com/roach88/rowlog/internal/store"
)

// HookFunc observes a log entry right after it is appended, inside the same
// transaction. Returning an error aborts the transaction.
type HookFunc func(ctx context.Context, entry ir.LogEntry) error

// TableHook is the write path of one captured table. It owns the SQL that
// mutates the base table and returns the affected row images; the Tx turns
// those images into log entries.
type TableHook struct {
	schema    catalog.TableSchema
	ident     string // quoted "main"."<physical name>"
	returning string // quoted column list in declaration order
	where     string // primary-key predicate
	observers []HookFunc
}

func newTableHook(schema catalog.TableSchema) *TableHook {
	preds := make([]string, len(schema.PrimaryKey))
	for i, col := range schema.PrimaryKey {
		preds[i] = store.Quote(col) + " = ?"
	}
	return &TableHook{
		schema:    schema,
		ident:     store.TableIdent(schema.Key()),
		returning: store.QuoteColumns(schema.ColumnNames()),
		where:     strings.Join(preds, " AND "),
	}
}

// Schema returns the table the hook serves.
func (h *TableHook) Schema() catalog.TableSchema {
	return h.schema
}

// normalize checks that every column of r exists and coerces its value to
// the column type. The result is in declaration order.
func (h *TableHook) normalize(r ir.Row) (ir.RowImage, error) {
	key := h.schema.Key()
	for col := range r {
		if _, ok := h.schema.Column(col); !ok {
			return nil, ir.NewInvalidRowError(key, fmt.Sprintf("unknown column %q", col))
		}
	}
	out := make(ir.RowImage, 0, len(r))
	for _, c := range h.schema.Columns {
		if v, ok := r[c.Name]; ok {
			out = append(out, ir.F(c.Name, catalog.Coerce(c.Type, v)))
		}
	}
	return out, nil
}

// keyArgs validates a primary-key lookup and returns its arguments in
// primary-key order.
func (h *TableHook) keyArgs(pk ir.Row) ([]any, error) {
	key := h.schema.Key()
	if len(pk) != len(h.schema.PrimaryKey) {
		return nil, ir.NewInvalidRowError(key, fmt.Sprintf(
			"primary key lookup needs exactly %v", h.schema.PrimaryKey))
	}
	args := make([]any, len(h.schema.PrimaryKey))
	for i, col := range h.schema.PrimaryKey {
		v, ok := pk[col]
		if !ok {
			return nil, ir.NewInvalidRowError(key, fmt.Sprintf("primary key column %q missing", col))
		}
		if ir.IsNull(v) {
			return nil, ir.NewInvalidRowError(key, fmt.Sprintf("primary key column %q is null", col))
		}
		desc, _ := h.schema.Column(col)
		args[i] = ir.ToSQL(catalog.Coerce(desc.Type, v))
	}
	return args, nil
}

// insert writes one row and returns its full post-write image, with engine
// defaults filled in.
func (h *TableHook) insert(ctx context.Context, tx *sql.Tx, values ir.Row) (ir.RowImage, error) {
	img, err := h.normalize(values)
	if err != nil {
		return nil, err
	}

	var query string
	args := make([]any, len(img))
	if len(img) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", h.ident, h.returning)
	} else {
		cols := img.Columns()
		marks := make([]string, len(cols))
		for i, f := range img {
			marks[i] = "?"
			args[i] = ir.ToSQL(f.Value)
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			h.ident, store.QuoteColumns(cols), strings.Join(marks, ", "), h.returning)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", h.schema.Key(), err)
	}
	images, err := store.ScanImages(rows, h.schema)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", h.schema.Key(), err)
	}
	if len(images) != 1 {
		return nil, fmt.Errorf("insert into %s: expected 1 returned row, got %d", h.schema.Key(), len(images))
	}
	return images[0], nil
}

// load returns the stored image of the row with the given key.
func (h *TableHook) load(ctx context.Context, q store.Queryer, args []any) (ir.RowImage, bool, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s", h.returning, h.ident, h.where)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", h.schema.Key(), err)
	}
	images, err := store.ScanImages(rows, h.schema)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", h.schema.Key(), err)
	}
	if len(images) == 0 {
		return nil, false, nil
	}
	return images[0], true, nil
}

// update applies set to the row with the given key and returns the
// post-write image. set must already be normalized.
func (h *TableHook) update(ctx context.Context, tx *sql.Tx, keyArgs []any, set ir.RowImage) (ir.RowImage, error) {
	assigns := make([]string, len(set))
	args := make([]any, 0, len(set)+len(keyArgs))
	for i, f := range set {
		assigns[i] = store.Quote(f.Column) + " = ?"
		args = append(args, ir.ToSQL(f.Value))
	}
	args = append(args, keyArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING %s",
		h.ident, strings.Join(assigns, ", "), h.where, h.returning)
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", h.schema.Key(), err)
	}
	images, err := store.ScanImages(rows, h.schema)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", h.schema.Key(), err)
	}
	if len(images) != 1 {
		return nil, fmt.Errorf("update %s: expected 1 returned row, got %d", h.schema.Key(), len(images))
	}
	return images[0], nil
}

// delete removes the row with the given key and returns its pre-write
// image, or false if no row matched.
func (h *TableHook) delete(ctx context.Context, tx *sql.Tx, keyArgs []any) (ir.RowImage, bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING %s", h.ident, h.where, h.returning)
	rows, err := tx.QueryContext(ctx, query, keyArgs...)
	if err != nil {
		return nil, false, fmt.Errorf("delete from %s: %w", h.schema.Key(), err)
	}
	images, err := store.ScanImages(rows, h.schema)
	if err != nil {
		return nil, false, fmt.Errorf("delete from %s: %w", h.schema.Key(), err)
	}
	if len(images) == 0 {
		return nil, false, nil
	}
	return images[0], true, nil
}

// notify runs the table's observers in registration order.
func (h *TableHook) notify(ctx context.Context, entry ir.LogEntry) error {
	for _, fn := range h.observers {
		if err := fn(ctx, entry); err != nil {
			return fmt.Errorf("hook for %s: %w", h.schema.Key(), err)
		}
	}
	return nil
}

