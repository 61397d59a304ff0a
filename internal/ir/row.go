package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Row is an unordered set of column values supplied by a caller (the
// column list of an INSERT, the SET list of an UPDATE, a primary-key lookup).
// It is input only; anything written to the log is a RowImage.
type Row map[string]IRValue

// Field is one column of a RowImage.
type Field struct {
	Column string
	Value  IRValue
}

// F is a shorthand for Field for ergonomic construction.
// Example: RowImage{F("id", IRString("1")), F("content", Null)}
func F(column string, value IRValue) Field {
	return Field{Column: column, Value: value}
}

// RowImage is a full, column-ordered snapshot of one row.
// Order follows the table's column declaration order and is preserved
// through JSON encoding and decoding.
type RowImage []Field

// Get returns the value of a column.
func (r RowImage) Get(column string) (IRValue, bool) {
	for _, f := range r {
		if f.Column == column {
			return f.Value, true
		}
	}
	return nil, false
}

// Columns returns the column names in image order.
func (r RowImage) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

// Project returns the sub-image for the given columns, in the order given.
// Fails if any column is missing from the image.
func (r RowImage) Project(columns []string) (RowImage, error) {
	out := make(RowImage, 0, len(columns))
	for _, c := range columns {
		v, ok := r.Get(c)
		if !ok {
			return nil, fmt.Errorf("column %q not present in row image", c)
		}
		out = append(out, F(c, v))
	}
	return out, nil
}

// Equal reports whether both images have the same columns in the same
// order with equal values.
func (r RowImage) Equal(other RowImage) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i].Column != other[i].Column || !Equal(r[i].Value, other[i].Value) {
			return false
		}
	}
	return true
}

// Map returns the image as an unordered Row.
func (r RowImage) Map() Row {
	m := make(Row, len(r))
	for _, f := range r {
		m[f.Column] = f.Value
	}
	return m
}

// MarshalJSON encodes the image as a JSON object whose keys appear in
// column order. Nulls are written explicitly.
func (r RowImage) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := marshalCanonicalString(f.Column)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Column, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for column %q: %w", f.Column, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into an image, keeping key order.
func (r *RowImage) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("row image must be a JSON object")
	}

	img := RowImage{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("row image key must be a string, got %T", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("row image column %q: %w", key, err)
		}
		val, err := UnmarshalIRValue(raw)
		if err != nil {
			return fmt.Errorf("row image column %q: %w", key, err)
		}
		img = append(img, F(key, val))
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = img
	return nil
}

// UnmarshalJSON decodes a JSON object into a Row.
func (r *Row) UnmarshalJSON(data []byte) error {
	var img RowImage
	if err := img.UnmarshalJSON(data); err != nil {
		return err
	}
	*r = img.Map()
	return nil
}
