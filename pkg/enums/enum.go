package enums

import (
	"fmt"
	"slices"
)

// parse matches raw exactly against set; kind names the enum in the error.
func parse[T ~string](set []T, raw, kind string) (T, error) {
	if v := T(raw); slices.Contains(set, v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
