package dbutil

import (
	"fmt"
	"math"
)

// CheckMultiplyOverflow reports whether a*b would overflow uint64.
func CheckMultiplyOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return fmt.Errorf("multiplication overflow: %d * %d exceeds uint64 max", a, b)
	}
	return nil
}

// SafeMultiply multiplies two uint64 values, returning an error instead
// of silently wrapping on overflow.
func SafeMultiply(a, b uint64) (uint64, error) {
	if err := CheckMultiplyOverflow(a, b); err != nil {
		return 0, err
	}
	return a * b, nil
}

// SafeAdd adds two uint64 values, returning an error on overflow.
func SafeAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("addition overflow: %d + %d exceeds uint64 max", a, b)
	}
	return sum, nil
}

// ValidateBufferSize checks that size is nonzero and within maxSize,
// annotating the error with description on failure.
func ValidateBufferSize(size, maxSize uint64, description string) error {
	if size == 0 {
		return fmt.Errorf("%s: size cannot be zero", description)
	}
	if size > maxSize {
		return fmt.Errorf("%s: size %d exceeds maximum %d", description, size, maxSize)
	}
	return nil
}
