package keyenc

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Serialize produces the canonical serial form of v: deterministic and
// injective over structurally-equal inputs. Object keys are sorted
// lexicographically before being emitted so that two objects with the same
// keys and values serialize identically regardless of the order they were
// built in. Absent is only legal nested inside an Array (where it becomes
// the literal null) or as an Object field value (where the field is
// dropped); Absent at the top level is itself unsupported, since a bare
// "undefined" has no JSON rendering.
func Serialize(v Value) (string, error) {
	var b strings.Builder
	if err := writeValue(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeValue(b *strings.Builder, v Value) error {
	switch t := v.(type) {
	case Null:
		b.WriteString("null")
		return nil
	case Bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case Num:
		b.WriteString(formatNum(float64(t)))
		return nil
	case Str:
		return writeString(b, string(t))
	case Array:
		return writeArray(b, t)
	case Object:
		return writeObject(b, t)
	case Absent:
		return &UnsupportedTypeError{Offending: v}
	default:
		return &UnsupportedTypeError{Offending: v}
	}
}

func writeArray(b *strings.Builder, arr Array) error {
	b.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		if _, absent := elem.(Absent); absent {
			b.WriteString("null")
			continue
		}
		if err := writeValue(b, elem); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func writeObject(b *strings.Builder, obj Object) error {
	keys := make([]string, 0, len(obj))
	for k, val := range obj {
		if _, absent := val.(Absent); absent {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := writeString(b, k); err != nil {
			return err
		}
		b.WriteByte(':')
		if err := writeValue(b, obj[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func writeString(b *strings.Builder, s string) error {
	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	b.Write(encoded)
	return nil
}

func formatNum(f float64) string {
	if !math.IsInf(f, 0) && !math.IsNaN(f) && f == math.Trunc(f) &&
		f >= -9007199254740992 && f <= 9007199254740992 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
