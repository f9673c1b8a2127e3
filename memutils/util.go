package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckPow2 returns ErrPowerOfTwo, annotated with the provided name, when number is
// not a power of two.
func CheckPow2[T constraints.Integer](number T, name string) error {
	if number&(number-1) != 0 {
		return cerrors.Wrapf(ErrPowerOfTwo, "%s is %d", name, number)
	}
	return nil
}

// AlignUp rounds value up to the nearest multiple of alignment. Alignment must be
// a power of two.
func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}

// AlignDown rounds value down to the nearest multiple of alignment. Alignment must be
// a power of two.
func AlignDown(value int, alignment uint) int {
	return value & int(^(alignment - 1))
}
