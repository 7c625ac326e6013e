package record

import (
	"bytes"
	"cmp"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// FormatValue renders a field value as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return hex.EncodeToString(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}

// AsFloat converts a field value to a number. Strings are parsed.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Coerce converts v to the named type: int, float, bool or string.
func Coerce(v any, typ string) (any, error) {
	switch typ {
	case "string":
		return FormatValue(v), nil
	case "float":
		f, ok := AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot convert %q to float", FormatValue(v))
		}
		return f, nil
	case "int":
		if s, ok := v.(string); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(s), 0, 64)
			if err == nil {
				return n, nil
			}
		}
		f, ok := AsFloat(v)
		if !ok || f != float64(int64(f)) {
			return nil, fmt.Errorf("cannot convert %q to int", FormatValue(v))
		}
		return int64(f), nil
	case "bool":
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to bool", x)
			}
			return b, nil
		}
		f, ok := AsFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot convert %q to bool", FormatValue(v))
		}
		return f != 0, nil
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// Compare orders two field values. When numeric is set, values that parse as
// numbers compare numerically and sort before values that do not. Missing
// (nil) values sort first.
func Compare(a, b any, numeric bool) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if numeric {
		fa, oka := AsFloat(a)
		fb, okb := AsFloat(b)
		switch {
		case oka && okb:
			return cmp.Compare(fa, fb)
		case oka:
			return -1
		case okb:
			return 1
		}
	}
	if ba, ok := a.([]byte); ok {
		if bb, ok := b.([]byte); ok {
			return bytes.Compare(ba, bb)
		}
	}
	return strings.Compare(FormatValue(a), FormatValue(b))
}
