package keyenc

import "fmt"

// UnsupportedTypeError is returned by FromAny when it encounters a Go value
// that does not fall inside the closed Value sum (spec.md §4.1).
type UnsupportedTypeError struct {
	Offending any
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("keyenc: unsupported type %T", e.Offending)
}
