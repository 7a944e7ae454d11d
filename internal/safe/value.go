// Package safe provides overflow-checked integer conversions for values that
// cross the native profiler boundary.
package safe

import (
	"math"
)

// IntToUint32 converts n to uint32, clamping negatives to 0 and large values
// to math.MaxUint32.
// Returns the converted value and a boolean indicating whether clamping occurred.
func IntToUint32(n int) (uint32, bool) {
	switch {
	case n < 0:
		return 0, true
	case uint64(n) > math.MaxUint32:
		return math.MaxUint32, true
	default:
		return uint32(n), false
	}
}
