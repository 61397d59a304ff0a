package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/rowlog/internal/ir"
)

// Coerce converts v to the storage class a column of type t would hold,
// following SQLite affinity rules closely enough that a value supplied by a
// caller compares equal to the value read back from the table.
// Values that cannot be converted are returned unchanged, as SQLite would
// store them.
func Coerce(t ColumnType, v ir.IRValue) ir.IRValue {
	if ir.IsNull(v) {
		return ir.Null
	}

	switch t {
	case TypeInteger:
		switch val := v.(type) {
		case ir.IRReal:
			if f := float64(val); f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return ir.IRInt(int64(f))
			}
		case ir.IRBool:
			if val {
				return ir.IRInt(1)
			}
			return ir.IRInt(0)
		case ir.IRString:
			s := strings.TrimSpace(string(val))
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return ir.IRInt(n)
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
				return ir.IRInt(int64(f))
			}
		}

	case TypeReal:
		switch val := v.(type) {
		case ir.IRInt:
			return ir.IRReal(float64(val))
		case ir.IRString:
			if f, err := strconv.ParseFloat(strings.TrimSpace(string(val)), 64); err == nil {
				return ir.IRReal(f)
			}
		}

	case TypeText:
		switch val := v.(type) {
		case ir.IRInt:
			return ir.IRString(strconv.FormatInt(int64(val), 10))
		case ir.IRReal:
			return ir.IRString(strconv.FormatFloat(float64(val), 'g', -1, 64))
		}

	case TypeBoolean:
		switch val := v.(type) {
		case ir.IRInt:
			return ir.IRBool(val != 0)
		case ir.IRString:
			if b, err := strconv.ParseBool(strings.TrimSpace(string(val))); err == nil {
				return ir.IRBool(b)
			}
		}
	}
	return v
}

// Literal converts a decoded YAML, JSON or CUE literal into
// an IRValue.
func Literal(v any) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.Null, nil
	case string:
		return ir.IRString(val), nil
	case bool:
		return ir.IRBool(val), nil
	case int:
		return ir.IRInt(val), nil
	case int64:
		return ir.IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("literal %d overflows int64", val)
		}
		return ir.IRInt(int64(val)), nil
	case float64:
		return ir.IRReal(val), nil
	default:
		return nil, fmt.Errorf("unsupported literal of type %T", v)
	}
}
