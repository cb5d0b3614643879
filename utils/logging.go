package utils

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Stringers renders each element with String() when logged through zerolog's Array().
type Stringers[T fmt.Stringer] []T

func (s Stringers[T]) MarshalZerologArray(a *zerolog.Array) {
	for _, v := range s {
		if any(v) == nil {
			a.Str("<nil>")
			continue
		}

		a.Str(v.String())
	}
}

// StringerArray is Stringers with the element type inferred.
func StringerArray[T fmt.Stringer](items []T) Stringers[T] {
	return Stringers[T](items)
}
