package mutation

import "fmt"

// NotObjectError is returned when an operation requiring an Object (or
// absent) target is applied to some other Value shape.
type NotObjectError struct {
	Offending any
}

func (e *NotObjectError) Error() string {
	return fmt.Sprintf("mutation: expected an object, got %T", e.Offending)
}

// NotArrayError is returned when an operation requiring an Array (or
// absent) target is applied to some other Value shape.
type NotArrayError struct {
	Offending any
}

func (e *NotArrayError) Error() string {
	return fmt.Sprintf("mutation: expected an array, got %T", e.Offending)
}

// IndexOutOfRangeError is returned by ArrayValue and ArraySub when Index
// does not name an existing element.
type IndexOutOfRangeError struct {
	Index  int
	Length int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("mutation: index %d out of range for array of length %d", e.Index, e.Length)
}

// NegativeLengthError is returned by ArrayTruncation when Length is negative.
type NegativeLengthError struct {
	Length int
}

func (e *NegativeLengthError) Error() string {
	return fmt.Sprintf("mutation: truncation length %d is negative", e.Length)
}
