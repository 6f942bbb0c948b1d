// Package units converts pipeline speeds (always m/s internally) for
// display.
package units

import (
	"fmt"
	"strings"
)

// Unit constants
const (
	MPS  = "mps"
	KT   = "kt"
	KMPH = "kmph"
	KPH  = "kph"
	MPH  = "mph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, KT, KMPH, KPH, MPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// Parse returns unit, or MPS when unit is empty. Unknown units are an
// error.
func Parse(unit string) (string, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		return MPS, nil
	}
	if !IsValid(unit) {
		return "", fmt.Errorf("unknown speed unit %q, want one of %s", unit, GetValidUnitsString())
	}
	return unit, nil
}

// ConvertSpeed converts a speed from meters per second to the target units
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case KT:
		return speedMPS * 3600 / 1852
	case MPH:
		return speedMPS * 2.23694
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}
