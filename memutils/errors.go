package memutils

import "github.com/pkg/errors"

// ErrPowerOfTwo is the error returned from CheckPow2 or other methods if the number being tested
// is not a power of two
var ErrPowerOfTwo error = errors.New("number must be a power of two")
