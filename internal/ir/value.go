package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// IRValue is a sealed interface representing a single column value.
// Only IRNull, IRString, IRInt, IRReal, IRBool and IRBlob implement it,
// mirroring the storage classes SQLite can hand back.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRNull represents SQL NULL.
// Using an explicit type keeps nulls visible in row images instead of
// dropping the column.
type IRNull struct{}

func (IRNull) irValue() {}

// IRString represents a TEXT value. Text that is not valid UTF-8 is
// encoded in JSON as {"$base64": "...", "$type": "text"} so its bytes
// survive unchanged.
type IRString string

func (IRString) irValue() {}

// IRInt represents an INTEGER value.
type IRInt int64

func (IRInt) irValue() {}

// IRReal represents a REAL value. NaN and infinities cannot be encoded.
type IRReal float64

func (IRReal) irValue() {}

// IRBool represents a BOOLEAN column value.
type IRBool bool

func (IRBool) irValue() {}

// IRBlob represents a BLOB value.
// Encoded in JSON as {"$base64": "..."} so it survives a round trip
// without being confused with TEXT.
type IRBlob []byte

func (IRBlob) irValue() {}

// Keys of the JSON envelope that carries raw bytes. A blob envelope has
// only blobKey; raw text adds typeKey set to textType.
const (
	blobKey  = "$base64"
	typeKey  = "$type"
	textType = "text"
)

// Null is the shared IRNull value.
var Null = IRNull{}

// FromSQL converts a value produced by database/sql (driver.Value shapes)
// into an IRValue.
func FromSQL(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return Null, nil
	case IRValue:
		return val, nil
	case int64:
		return IRInt(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case float64:
		return IRReal(val), nil
	case float32:
		return IRReal(val), nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return IRBlob(cp), nil
	case time.Time:
		// go-sqlite3 parses DATE/DATETIME/TIMESTAMP columns; keep them as text
		return IRString(val.UTC().Format(time.RFC3339Nano)), nil
	default:
		return nil, fmt.Errorf("unsupported SQL value type: %T", v)
	}
}

// ToSQL converts an IRValue into a database/sql argument.
func ToSQL(v IRValue) any {
	switch val := v.(type) {
	case nil, IRNull:
		return nil
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRReal:
		return float64(val)
	case IRBool:
		return bool(val)
	case IRBlob:
		return []byte(val)
	default:
		return nil
	}
}

// Equal reports whether two values are identical in type and content.
// Callers coerce values to the column affinity before comparing.
func Equal(a, b IRValue) bool {
	if a == nil {
		a = Null
	}
	if b == nil {
		b = Null
	}
	switch av := a.(type) {
	case IRNull:
		_, ok := b.(IRNull)
		return ok
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRInt:
		bv, ok := b.(IRInt)
		return ok && av == bv
	case IRReal:
		bv, ok := b.(IRReal)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRBlob:
		bv, ok := b.(IRBlob)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// IsNull reports whether v is SQL NULL.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// MarshalIRValue marshals an IRValue to JSON bytes.
// Strings go through the canonical encoder (no HTML escaping) and decode
// back to the same bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		if !utf8.ValidString(string(val)) {
			return marshalEnvelope([]byte(val), textType), nil
		}
		return marshalCanonicalString(string(val))
	case IRInt:
		return []byte(fmt.Sprintf("%d", int64(val))), nil
	case IRReal:
		return marshalReal(float64(val))
	case IRBool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case IRBlob:
		return marshalEnvelope(val, ""), nil
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// marshalEnvelope writes raw as base64 inside a JSON object, tagged with
// typ when it is not empty.
func marshalEnvelope(raw []byte, typ string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"` + blobKey + `":"`)
	buf.WriteString(base64.StdEncoding.EncodeToString(raw))
	buf.WriteByte('"')
	if typ != "" {
		buf.WriteString(`,"` + typeKey + `":"` + typ + `"`)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// marshalReal always emits a fraction or exponent so the value decodes back
// as IRReal rather than IRInt.
func marshalReal(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("real value %v cannot be encoded as JSON", f)
	}
	s := fmt.Sprintf("%v", f)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return []byte(s), nil
}

// UnmarshalIRValue decodes a JSON value into an IRValue.
// Numbers without fraction or exponent become IRInt, others IRReal.
// Arrays and objects other than the blob envelope are rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return IRString(s), nil

	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return IRBool(b), nil

	case 'n':
		if string(data) != "null" {
			return nil, fmt.Errorf("invalid JSON value: %s", data)
		}
		return Null, nil

	case '{':
		var obj map[string]string
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("objects are not column values: %w", err)
		}
		enc, ok := obj[blobKey]
		typ, typed := obj[typeKey]
		switch {
		case !ok:
			return nil, fmt.Errorf("objects are not column values: %s", data)
		case typed && (typ != textType || len(obj) != 2):
			return nil, fmt.Errorf("objects are not column values: %s", data)
		case !typed && len(obj) != 1:
			return nil, fmt.Errorf("objects are not column values: %s", data)
		}
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode blob: %w", err)
		}
		if typed {
			return IRString(raw), nil
		}
		return IRBlob(raw), nil

	case '[':
		return nil, fmt.Errorf("arrays are not column values: %s", data)

	default:
		var n json.Number
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&n); err != nil {
			return nil, err
		}
		s := n.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("invalid real %s: %w", s, err)
			}
			return IRReal(f), nil
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return IRInt(i), nil
	}
}
