package utils

import (
	"context"
	"errors"

	"golang.org/x/exp/slices"
)

// IsAny reports whether err matches at least one of targets via errors.Is.
func IsAny(err error, targets ...error) bool {
	if err == nil {
		return false
	}

	return slices.ContainsFunc(targets, func(target error) bool {
		return errors.Is(err, target)
	})
}

// IsContextDone reports whether err comes from a canceled or expired context.
func IsContextDone(err error) bool {
	return IsAny(err, context.Canceled, context.DeadlineExceeded)
}
