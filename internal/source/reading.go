package source

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/radio-telemetry/internal/telemetry"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// Reading is one decoded telemetry tuple, as passed to
// telemetry.Engine.SetTelemetryValue.
type Reading struct {
	Protocol  telemetry.Protocol
	ID        uint16
	Instance  uint8
	Value     int32
	Unit      units.Unit
	Precision uint8
}

// Parse decodes a line of the form
//
//	protocol,id,instance,value,unit,precision
//
// Numbers accept a base prefix, so ids may be written as 0x0210.
func Parse(line string) (Reading, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return Reading{}, fmt.Errorf("invalid reading: want 6 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var r Reading
	if err := r.Protocol.UnmarshalText([]byte(fields[0])); err != nil {
		return Reading{}, fmt.Errorf("invalid protocol: %w", err)
	}

	id, err := strconv.ParseUint(fields[1], 0, 16)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid id: %w", err)
	}
	if id == 0 {
		return Reading{}, fmt.Errorf("invalid id: must not be zero")
	}
	r.ID = uint16(id)

	instance, err := strconv.ParseUint(fields[2], 0, 8)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid instance: %w", err)
	}
	r.Instance = uint8(instance)

	value, err := strconv.ParseInt(fields[3], 0, 64)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid value: %w", err)
	}
	if value < -1<<31 || value > 1<<32-1 {
		return Reading{}, fmt.Errorf("invalid value: %d does not fit 32 bits", value)
	}
	r.Value = int32(value) // packed frames arrive unsigned

	if r.Unit, err = units.Parse(fields[4]); err != nil {
		return Reading{}, fmt.Errorf("invalid unit: %w", err)
	}

	precision, err := strconv.ParseUint(fields[5], 10, 8)
	if err != nil {
		return Reading{}, fmt.Errorf("invalid precision: %w", err)
	}
	if precision > 3 {
		return Reading{}, fmt.Errorf("invalid precision: %d", precision)
	}
	r.Precision = uint8(precision)

	return r, nil
}
