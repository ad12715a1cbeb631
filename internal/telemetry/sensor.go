package telemetry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roman-kulish/radio-telemetry/internal/units"
)

const (
	// MaxSensors is the fixed capacity of the sensor and item tables.
	MaxSensors = 32

	// MaxCalcSources is the number of sources an ADD/AVERAGE/MIN/MAX sensor may combine.
	MaxCalcSources = 4

	// MaxMultiplySources is the number of sources a MULTIPLY sensor combines.
	MaxMultiplySources = 2

	// LabelLength is the maximum number of characters in a sensor label.
	LabelLength = 4

	// MaxRatio is the unity calibration ratio.
	MaxRatio = 255
)

// ErrInvalidSensor is returned when a sensor definition is inconsistent.
var ErrInvalidSensor = errors.New("invalid sensor definition")

// Slot is a handle into the sensor and item tables.
type Slot int

// Valid reports whether s addresses a table entry.
func (s Slot) Valid() bool {
	return s >= 0 && s < MaxSensors
}

// SlotRef returns a pointer to s, for optional slot references in formula parameters.
func SlotRef(s Slot) *Slot {
	return &s
}

// SensorType tells raw protocol sensors from calculated ones.
type SensorType uint8

const (
	TypeCustom SensorType = iota
	TypeCalculated
)

var sensorTypeNames = [...]string{
	TypeCustom:     "custom",
	TypeCalculated: "calculated",
}

func (t SensorType) String() string { return enumName(sensorTypeNames[:], int(t)) }

func (t SensorType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *SensorType) UnmarshalText(text []byte) error {
	return enumParse(sensorTypeNames[:], "sensor type", string(text), (*uint8)(t))
}

// Formula is the rule a calculated sensor uses to derive its value.
type Formula uint8

const (
	FormulaAdd Formula = iota
	FormulaAverage
	FormulaMin
	FormulaMax
	FormulaMultiply
	FormulaCell
	FormulaConsumption
	FormulaDistance
)

var formulaNames = [...]string{
	FormulaAdd:         "add",
	FormulaAverage:     "average",
	FormulaMin:         "min",
	FormulaMax:         "max",
	FormulaMultiply:    "multiply",
	FormulaCell:        "cell",
	FormulaConsumption: "consumption",
	FormulaDistance:    "distance",
}

func (f Formula) String() string { return enumName(formulaNames[:], int(f)) }

func (f Formula) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Formula) UnmarshalText(text []byte) error {
	return enumParse(formulaNames[:], "formula", string(text), (*uint8)(f))
}

// InputMode is the post-processing applied to generic raw readings.
type InputMode uint8

const (
	InputNone InputMode = iota
	InputAutoOffset
	InputFiltering
)

var inputModeNames = [...]string{
	InputNone:       "none",
	InputAutoOffset: "auto-offset",
	InputFiltering:  "filtering",
}

func (m InputMode) String() string { return enumName(inputModeNames[:], int(m)) }

func (m InputMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *InputMode) UnmarshalText(text []byte) error {
	return enumParse(inputModeNames[:], "input mode", string(text), (*uint8)(m))
}

// CellIndex selects the cell of a pack a CELL sensor reports: a 1-based
// position or one of the derived values.
type CellIndex uint8

const (
	CellLowest  CellIndex = 0
	CellHighest CellIndex = MaxCells + 1
	CellDelta   CellIndex = MaxCells + 2
)

func (c CellIndex) String() string {
	switch c {
	case CellLowest:
		return "lowest"
	case CellHighest:
		return "highest"
	case CellDelta:
		return "delta"
	}
	return strconv.Itoa(int(c))
}

func (c CellIndex) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *CellIndex) UnmarshalText(text []byte) error {
	switch s := strings.ToLower(strings.TrimSpace(string(text))); s {
	case "lowest":
		*c = CellLowest
	case "highest":
		*c = CellHighest
	case "delta":
		*c = CellDelta
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxCells {
			return fmt.Errorf("telemetry: invalid cell index '%s'", s)
		}
		*c = CellIndex(n)
	}
	return nil
}

// SourceRef is a signed reference to another slot: a negated source
// contributes its value with the sign flipped.
type SourceRef struct {
	Slot   Slot `yaml:"slot" json:"slot"`
	Negate bool `yaml:"negate,omitempty" json:"negate,omitempty"`
}

type CellParams struct {
	Source *Slot     `yaml:"source" json:"source,omitempty"`
	Index  CellIndex `yaml:"index" json:"index"`
}

type DistanceParams struct {
	GPS      *Slot `yaml:"gps" json:"gps,omitempty"`
	Altitude *Slot `yaml:"altitude,omitempty" json:"altitude,omitempty"`
}

type ConsumptionParams struct {
	Source *Slot `yaml:"source" json:"source,omitempty"`
}

type CalcParams struct {
	Sources []SourceRef `yaml:"sources" json:"sources,omitempty"`
}

// Calibration is the linear correction of a custom sensor. Ratio is on a
// 0-255 scale where 255 is unity; zero disables the ratio.
type Calibration struct {
	Ratio  uint16 `yaml:"ratio" json:"ratio"`
	Offset int16  `yaml:"offset" json:"offset"`
}

// Sensor is the definition of one telemetry slot.
type Sensor struct {
	ID        uint16     `yaml:"id" json:"id"`
	Instance  uint8      `yaml:"instance" json:"instance"`
	Label     string     `yaml:"label" json:"label"`
	Type      SensorType `yaml:"type" json:"type"`
	Unit      units.Unit `yaml:"unit" json:"unit"`
	Precision uint8      `yaml:"precision" json:"precision"`
	Input     InputMode  `yaml:"input" json:"input"`

	Custom Calibration `yaml:"custom,omitempty" json:"custom"`

	Formula     Formula           `yaml:"formula,omitempty" json:"formula"`
	Cell        CellParams        `yaml:"cell,omitempty" json:"cell"`
	Distance    DistanceParams    `yaml:"distance,omitempty" json:"distance"`
	Consumption ConsumptionParams `yaml:"consumption,omitempty" json:"consumption"`
	Calc        CalcParams        `yaml:"calc,omitempty" json:"calc"`
}

// IsFree reports whether the definition leaves its slot unused.
func (s *Sensor) IsFree() bool {
	return s.ID == 0
}

// IsCalculated reports whether the sensor derives its value from other slots.
func (s *Sensor) IsCalculated() bool {
	return s.Type == TypeCalculated
}

// initFromID gives the sensor its identity and a label made of the id's hex digits.
func (s *Sensor) initFromID(id uint16, instance uint8) {
	s.ID = id
	s.Instance = instance
	s.Label = fmt.Sprintf("%04X", id)
}

// Validate checks the definition for use in slot self.
func (s *Sensor) Validate(self Slot) error {
	if s.IsFree() {
		return fmt.Errorf("%w: id must not be zero", ErrInvalidSensor)
	}
	if len(s.Label) > LabelLength {
		return fmt.Errorf("%w: label '%s' longer than %d characters", ErrInvalidSensor, s.Label, LabelLength)
	}
	if s.Precision > units.MaxPrecision {
		return fmt.Errorf("%w: precision %d out of range", ErrInvalidSensor, s.Precision)
	}
	if s.Input > InputFiltering {
		return fmt.Errorf("%w: unknown input mode %d", ErrInvalidSensor, s.Input)
	}
	if s.Custom.Ratio > MaxRatio {
		return fmt.Errorf("%w: ratio %d above %d", ErrInvalidSensor, s.Custom.Ratio, MaxRatio)
	}
	if !s.IsCalculated() {
		return nil
	}
	if s.Unit.IsWireEncoding() {
		return fmt.Errorf("%w: calculated sensor cannot use the %s unit", ErrInvalidSensor, s.Unit)
	}

	ref := func(name string, slot *Slot, required bool) error {
		if slot == nil {
			if required {
				return fmt.Errorf("%w: %s formula requires %s", ErrInvalidSensor, s.Formula, name)
			}
			return nil
		}
		if !slot.Valid() {
			return fmt.Errorf("%w: %s slot %d out of range", ErrInvalidSensor, name, *slot)
		}
		if *slot == self {
			return fmt.Errorf("%w: %s references its own slot", ErrInvalidSensor, name)
		}
		return nil
	}

	switch s.Formula {
	case FormulaCell:
		if s.Cell.Index > CellDelta {
			return fmt.Errorf("%w: cell index %d out of range", ErrInvalidSensor, s.Cell.Index)
		}
		return ref("cell source", s.Cell.Source, true)

	case FormulaDistance:
		if err := ref("gps", s.Distance.GPS, true); err != nil {
			return err
		}
		return ref("altitude", s.Distance.Altitude, false)

	case FormulaConsumption:
		return ref("current source", s.Consumption.Source, true)

	case FormulaAdd, FormulaAverage, FormulaMin, FormulaMax, FormulaMultiply:
		limit := MaxCalcSources
		if s.Formula == FormulaMultiply {
			limit = MaxMultiplySources
		}
		if len(s.Calc.Sources) > limit {
			return fmt.Errorf("%w: %s takes at most %d sources, %d given", ErrInvalidSensor, s.Formula, limit, len(s.Calc.Sources))
		}
		for i := range s.Calc.Sources {
			if err := ref(fmt.Sprintf("source %d", i+1), &s.Calc.Sources[i].Slot, true); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown formula %d", ErrInvalidSensor, s.Formula)
	}
}

// getValue applies the sensor's calibration and converts a wire value to the
// sensor's unit and precision.
func (s *Sensor) getValue(value int32, unit units.Unit, prec uint8) int32 {
	if s.Type == TypeCustom && s.Custom.Ratio != 0 {
		if s.Precision == 2 {
			value *= 10
			prec = 2
		} else {
			prec = 1
		}
		value = (int32(s.Custom.Ratio)*value + 122) / 255
	}

	value = units.Convert(value, unit, prec, s.Unit, s.Precision)

	if s.Type == TypeCustom {
		value += int32(s.Custom.Offset)
	}

	return value
}

func enumName(names []string, v int) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return strconv.Itoa(v)
}

func enumParse(names []string, kind, text string, dst *uint8) error {
	text = strings.ToLower(strings.TrimSpace(text))
	for i, n := range names {
		if n == text {
			*dst = uint8(i)
			return nil
		}
	}
	return fmt.Errorf("telemetry: unknown %s '%s'", kind, text)
}
