package hdrhistogram

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the package. Use errors.Is to test for a
// specific kind; wrapped errors carry the offending value or index for
// diagnostics.
var (
	// ErrValueOutOfRange is returned when a recorded value is negative or
	// exceeds the histogram's highest trackable value.
	ErrValueOutOfRange = errors.New("hdrhistogram: value out of range")

	// ErrCounterOverflow is returned when a fixed-width counter would
	// exceed its positive range, or when a decoded count exceeds the
	// target storage width.
	ErrCounterOverflow = errors.New("hdrhistogram: counter overflow")

	// ErrGeometryMismatch is returned by Add/Subtract when the source
	// histogram's highest trackable value exceeds the receiver's.
	ErrGeometryMismatch = errors.New("hdrhistogram: geometry mismatch")

	// ErrUnderflow is returned by Subtract when the result would leave a
	// counter negative. The receiver is left unchanged.
	ErrUnderflow = errors.New("hdrhistogram: underflow")

	// ErrCodecCorrupt is returned by the V2 codec on a cookie mismatch,
	// truncated payload, or a varint stream inconsistent with the header
	// geometry.
	ErrCodecCorrupt = errors.New("hdrhistogram: corrupt encoded payload")

	// ErrArgumentInvalid is returned by New, NewConcurrent, and NewRecorder
	// when a construction parameter violates its documented bounds, and by
	// RecordValueWithCount for a negative count.
	ErrArgumentInvalid = errors.New("hdrhistogram: invalid argument")
)

func wrapArgError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrArgumentInvalid}, args...)...)
}

func wrapValueError(v int64) error {
	return fmt.Errorf("%w: value %d", ErrValueOutOfRange, v)
}

func wrapOverflowError(index int64) error {
	return fmt.Errorf("%w: counter at index %d", ErrCounterOverflow, index)
}

func wrapUnderflowError(index int64) error {
	return fmt.Errorf("%w: counter at index %d", ErrUnderflow, index)
}

func wrapGeometryError(otherHighest, highest int64) error {
	return fmt.Errorf("%w: source highest trackable value %d exceeds receiver's %d", ErrGeometryMismatch, otherHighest, highest)
}

func wrapCodecError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrCodecCorrupt}, args...)...)
}
