package store

import (
	"database/sql"
	"fmt"

	"github.com/roach88/rowlog/internal/catalog"
	"github.com/roach88/rowlog/internal/ir"
)

// ScanImages consumes rows into row images laid out in the schema's column
// declaration order. Every value is coerced to its column's declared type,
// since the driver does not report declared types for RETURNING results.
// The rows are always closed.
func ScanImages(rows *sql.Rows, schema catalog.TableSchema) ([]ir.RowImage, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", schema.Key(), err)
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	for _, c := range schema.Columns {
		if _, ok := index[c.Name]; !ok {
			return nil, fmt.Errorf("scan %s: result is missing column %q", schema.Key(), c.Name)
		}
	}

	var images []ir.RowImage
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", schema.Key(), err)
		}

		img := make(ir.RowImage, 0, len(schema.Columns))
		for _, c := range schema.Columns {
			v, err := ir.FromSQL(vals[index[c.Name]])
			if err != nil {
				return nil, fmt.Errorf("scan %s column %q: %w", schema.Key(), c.Name, err)
			}
			img = append(img, ir.F(c.Name, catalog.Coerce(c.Type, v)))
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", schema.Key(), err)
	}
	return images, nil
}
