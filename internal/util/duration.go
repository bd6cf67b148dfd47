package util

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Unbounded is the config spelling for "no duration".
const Unbounded = "unbounded"

// ParseMillis converts a duration config value to a time.Duration.
// Integers and floats are milliseconds, strings may carry a unit ("1.5s", "250ms")
// or be "unbounded"/"null"/"" for no duration, which returns nil.
func ParseMillis(v any) (*time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int:
		return millis(float64(val))
	case int64:
		return millis(float64(val))
	case float64:
		return millis(val)
	case string:
		return parseMillisString(val)
	default:
		return nil, fmt.Errorf("invalid duration value of type %T", v)
	}
}

func parseMillisString(s string) (*time.Duration, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", Unbounded, "null", "none":
		return nil, nil
	}

	var value float64
	var unit string

	// Try to parse number and unit
	n, err := fmt.Sscanf(s, "%f%s", &value, &unit)
	if err != nil && n == 0 {
		return nil, fmt.Errorf("invalid duration value: %s", s)
	}

	if n == 1 {
		// No unit, milliseconds
		return millis(value)
	}

	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "ms":
		return millis(value)
	case "s", "sec":
		return millis(value * 1000)
	case "m", "min":
		return millis(value * 60 * 1000)
	default:
		return nil, fmt.Errorf("unknown duration unit: %s", unit)
	}
}

// maxMillis is the largest millisecond value a time.Duration can hold.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

func millis(ms float64) (*time.Duration, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return nil, fmt.Errorf("duration must be a finite number of milliseconds, got %v (use %q for no limit)", ms, Unbounded)
	}
	if ms < 0 {
		return nil, fmt.Errorf("negative duration: %vms", ms)
	}
	if ms > maxMillis {
		return nil, fmt.Errorf("duration %vms exceeds the maximum of %.0fms (use %q for no limit)", ms, maxMillis, Unbounded)
	}
	d := time.Duration(ms * float64(time.Millisecond))
	return &d, nil
}
