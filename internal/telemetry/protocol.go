package telemetry

import "github.com/roman-kulish/radio-telemetry/internal/units"

// Protocol identifies the telemetry link a reading arrived on.
type Protocol uint8

const (
	ProtocolFrSkySPort Protocol = iota
	ProtocolFrSkyD
	ProtocolCustom
)

var protocolNames = [...]string{
	ProtocolFrSkySPort: "frsky-sport",
	ProtocolFrSkyD:     "frsky-d",
	ProtocolCustom:     "custom",
}

func (p Protocol) String() string { return enumName(protocolNames[:], int(p)) }

func (p Protocol) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Protocol) UnmarshalText(text []byte) error {
	return enumParse(protocolNames[:], "protocol", string(text), (*uint8)(p))
}

// WireHint describes the reading that caused a slot to be allocated.
type WireHint struct {
	Unit      units.Unit
	Precision uint8
}

// DefaultSetter seeds the definition of a newly allocated slot. Leaving the
// id at zero keeps the slot free.
type DefaultSetter func(slot Slot, s *Sensor, id uint16, instance uint8, hint WireHint)

// GenericDefaults labels the sensor with its id in hex and derives the display
// unit from the reading.
func GenericDefaults(_ Slot, s *Sensor, id uint16, instance uint8, hint WireHint) {
	s.initFromID(id, instance)
	s.Type = TypeCustom

	switch hint.Unit {
	case units.Cells:
		s.Unit, s.Precision = units.Cells, 2
	case units.GPS, units.GPSLatitude, units.GPSLongitude, units.GPSLatitudeNS, units.GPSLongitudeEW:
		s.Unit, s.Precision = units.GPS, 0
	case units.DateTime, units.DateTimeYear, units.DateTimeDayMonth, units.DateTimeHourMin, units.DateTimeSec:
		s.Unit, s.Precision = units.DateTime, 0
	default:
		s.Unit, s.Precision = hint.Unit, hint.Precision
	}
}

type sensorDefault struct {
	label string
	unit  units.Unit
	prec  uint8
}

// frskyRanges are FrSky S.Port application ids, keyed by the first id of each
// range of 16.
var frskyRanges = map[uint16]sensorDefault{
	0x0100: {"Alt", units.Meters, 2},
	0x0110: {"VSpd", units.MetersPerSecond, 2},
	0x0200: {"Curr", units.Amps, 1},
	0x0210: {"VFAS", units.Volts, 2},
	0x0300: {"Cels", units.Cells, 2},
	0x0400: {"Tmp1", units.Celsius, 0},
	0x0410: {"Tmp2", units.Celsius, 0},
	0x0500: {"RPM", units.RPM, 0},
	0x0600: {"Fuel", units.Percent, 0},
	0x0700: {"AccX", units.G, 2},
	0x0710: {"AccY", units.G, 2},
	0x0720: {"AccZ", units.G, 2},
	0x0800: {"GPS", units.GPS, 0},
	0x0820: {"GAlt", units.Meters, 2},
	0x0830: {"GSpd", units.Knots, 1},
	0x0840: {"Hdg", units.Degree, 2},
	0x0850: {"Date", units.DateTime, 0},
	0x0900: {"A3", units.Volts, 2},
	0x0910: {"A4", units.Volts, 2},
	0x0A00: {"ASpd", units.Knots, 1},
}

// frskyLink are the single-id link sensors reported by the receiver itself.
var frskyLink = map[uint16]sensorDefault{
	0xF101: {"RSSI", units.DB, 0},
	0xF102: {"A1", units.Volts, 1},
	0xF103: {"A2", units.Volts, 1},
	0xF104: {"RxBt", units.Volts, 1},
	0xF105: {"SWR", units.Raw, 0},
}

// FrSkyDefaults resolves well known S.Port ids, falling back to GenericDefaults.
func FrSkyDefaults(slot Slot, s *Sensor, id uint16, instance uint8, hint WireHint) {
	d, ok := frskyLink[id]
	if !ok {
		d, ok = frskyRanges[id&0xFFF0]
	}
	if !ok {
		GenericDefaults(slot, s, id, instance, hint)
		return
	}

	s.initFromID(id, instance)
	s.Type = TypeCustom
	s.Label = d.label
	s.Unit = d.unit
	s.Precision = d.prec
}
