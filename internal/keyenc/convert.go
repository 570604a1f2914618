package keyenc

// FromAny converts a plain Go value — the shape an application typically
// hands in for a structured key — into the closed Value sum. Supported
// inputs are nil, bool, every built-in integer/float kind, string,
// []any, map[string]any, and Value itself (passed through unchanged so
// callers can mix hand-built Values with plain data). Anything else yields
// UnsupportedTypeError.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case Value:
		return t, nil
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case float64:
		return Num(t), nil
	case float32:
		return Num(t), nil
	case int:
		return Num(t), nil
	case int8:
		return Num(t), nil
	case int16:
		return Num(t), nil
	case int32:
		return Num(t), nil
	case int64:
		return Num(t), nil
	case uint:
		return Num(t), nil
	case uint8:
		return Num(t), nil
	case uint16:
		return Num(t), nil
	case uint32:
		return Num(t), nil
	case uint64:
		return Num(t), nil
	case []any:
		arr := make(Array, len(t))
		for i, elem := range t {
			elemVal, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = elemVal
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, elem := range t {
			elemVal, err := FromAny(elem)
			if err != nil {
				return nil, err
			}
			obj[k] = elemVal
		}
		return obj, nil
	default:
		return nil, &UnsupportedTypeError{Offending: v}
	}
}
