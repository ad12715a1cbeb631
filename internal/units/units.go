package units

import (
	"fmt"
	"strings"
)

// Unit identifies the physical unit of a telemetry value, or a structural wire
// encoding (cells, GPS, date/time fragments) for values that are not plain numbers.
//
// The numeric codes are stable: they are persisted with the sensor model.
type Unit uint8

const (
	Raw Unit = iota
	Volts
	Amps
	Milliamps
	Knots
	MetersPerSecond
	FeetPerSecond
	KMH
	MPH
	Meters
	Feet
	Celsius
	Fahrenheit
	Percent
	MAh
	Watts
	DB
	RPM
	G
	Degree
	Milliliters
	FluidOunces
	Hours
	Minutes
	Seconds

	// Structured wire payloads. Cells, DateTime and GPS are also display units.

	Cells
	DateTime
	GPS
	GPSLongitude
	GPSLatitude
	GPSLongitudeEW
	GPSLatitudeNS
	DateTimeYear
	DateTimeDayMonth
	DateTimeHourMin
	DateTimeSec
)

var names = [...]string{
	Raw:              "raw",
	Volts:            "volts",
	Amps:             "amps",
	Milliamps:        "milliamps",
	Knots:            "knots",
	MetersPerSecond:  "m/s",
	FeetPerSecond:    "ft/s",
	KMH:              "km/h",
	MPH:              "mph",
	Meters:           "meters",
	Feet:             "feet",
	Celsius:          "celsius",
	Fahrenheit:       "fahrenheit",
	Percent:          "percent",
	MAh:              "mah",
	Watts:            "watts",
	DB:               "db",
	RPM:              "rpm",
	G:                "g",
	Degree:           "degree",
	Milliliters:      "ml",
	FluidOunces:      "floz",
	Hours:            "hours",
	Minutes:          "minutes",
	Seconds:          "seconds",
	Cells:            "cells",
	DateTime:         "datetime",
	GPS:              "gps",
	GPSLongitude:     "gps-longitude",
	GPSLatitude:      "gps-latitude",
	GPSLongitudeEW:   "gps-longitude-ew",
	GPSLatitudeNS:    "gps-latitude-ns",
	DateTimeYear:     "datetime-year",
	DateTimeDayMonth: "datetime-day-month",
	DateTimeHourMin:  "datetime-hour-min",
	DateTimeSec:      "datetime-sec",
}

func (u Unit) String() string {
	if int(u) < len(names) {
		return names[u]
	}
	return fmt.Sprintf("unit(%d)", uint8(u))
}

// IsWireEncoding reports whether u describes a structured wire payload rather
// than a displayable physical quantity.
func (u Unit) IsWireEncoding() bool {
	return u >= Cells && u <= DateTimeSec
}

// Parse returns the unit with the given name. Names are case-insensitive.
func Parse(name string) (Unit, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range names {
		if n == name {
			return Unit(i), nil
		}
	}
	return 0, fmt.Errorf("units: unknown unit '%s'", name)
}

func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Unit) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
