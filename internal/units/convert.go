package units

import (
	"strconv"
	"strings"
)

// MaxPrecision is the largest number of decimal digits a value may carry.
const MaxPrecision = 2

// Convert rescales value from (unit, prec) to (destUnit, destPrec).
//
// Digits gained are multiplied in before the unit transform, digits lost are
// divided out (truncating) after it. Pairs without a transform are identity.
// Arithmetic is 32-bit and wraps on overflow, the same as the firmware.
func Convert(value int32, unit Unit, prec uint8, destUnit Unit, destPrec uint8) int32 {
	for i := prec; i < destPrec; i++ {
		value *= 10
	}

	switch unit {
	case Meters:
		if destUnit == Feet {
			value = (value * 105) / 32
		}

	case Knots:
		switch destUnit {
		case KMH:
			value = (value * 1852) / 1000
		case MPH:
			value = (value * 23) / 20
		}

	case Celsius:
		if destUnit == Fahrenheit {
			value = 32 + (value*18)/10
		}
	}

	for i := destPrec; i < prec; i++ {
		value /= 10
	}

	return value
}

// FormatValue renders a fixed-point value with prec decimal digits, e.g. 1234
// with prec 2 is "12.34".
func FormatValue(value int32, prec uint8) string {
	if prec == 0 {
		return strconv.FormatInt(int64(value), 10)
	}

	v := int64(value)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}

	digits := strconv.FormatInt(v, 10)
	if pad := int(prec) + 1 - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}

	cut := len(digits) - int(prec)
	return sign + digits[:cut] + "." + digits[cut:]
}
