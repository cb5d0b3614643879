package device

import "errors"

var (
  // payload has the wrong shape, e.g. an unexpected length.
  ErrInvalidData = errors.New("invalid data")
  // payload has the right shape but values that cannot be right.
  ErrCorruptedData = errors.New("corrupted data")
)
