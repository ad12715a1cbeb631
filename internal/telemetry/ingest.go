package telemetry

import (
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// setValue ingests one decoded reading into the item of slot. Dispatch is on
// the wire unit: structured payloads are assembled in the item's scratch state
// and only complete ones produce a value.
func (e *Engine) setValue(slot Slot, value int32, unit units.Unit, prec uint8) {
	s := &e.sensors[slot]
	it := &e.items[slot]
	now := e.clock.Now()

	switch unit {
	case units.Cells:
		frame := cellFrame(uint32(value))
		pack := it.cells()
		if frame.count() != pack.count {
			it.clear()
			pack = it.cells()
			pack.count = frame.count()
		}

		index := frame.index()
		pack.set(index, frame.first())
		if index+1 < pack.count {
			pack.set(index+1, frame.second())
		}
		if int(index)+2 < int(pack.count) {
			return // more frames to come
		}

		total, ok := pack.sum()
		if !ok {
			return
		}
		it.commit(s, s.getValue(total, units.Volts, 2), now)

	case units.DateTime:
		data := uint32(value)
		d := it.dateTime()
		if data&0xFF != 0 {
			e.setDate(d, 2000+uint16(data>>24), uint8(data>>16), uint8(data>>8))
		} else {
			e.setTime(d, e.localHour(uint8(data>>24)), uint8(data>>16), uint8(data>>8))
		}
		if d.year == 0 {
			return
		}
		it.commit(s, 0, now)

	case units.DateTimeYear:
		d := it.dateTime()
		if d.dateState {
			e.setDate(d, uint16(value), d.month, d.day)
		} else {
			d.year = uint16(value)
		}

	case units.DateTimeDayMonth:
		data := uint32(value)
		d := it.dateTime()
		e.setDate(d, d.year, uint8(data>>8), uint8(data))

	case units.DateTimeHourMin:
		data := uint32(value)
		d := it.dateTime()
		d.hour = e.localHour(uint8(data))
		d.min = uint8(data >> 8)

	case units.DateTimeSec:
		d := it.dateTime()
		e.setTime(d, d.hour, d.min, uint8(value))
		it.commit(s, 0, now)

	case units.GPS:
		g := it.gps()
		g.decodeCombined(uint32(value))
		if g.hasHemispheres() {
			g.positionReceived()
			it.received(now)
		}

	case units.GPSLongitude, units.GPSLatitude, units.GPSLongitudeEW, units.GPSLatitudeNS:
		data := uint32(value)
		g := it.gps()
		switch unit {
		case units.GPSLongitude:
			g.longitudeBP, g.longitudeAP = data>>16, data&0xFFFF
		case units.GPSLatitude:
			g.latitudeBP, g.latitudeAP = data>>16, data&0xFFFF
		case units.GPSLongitudeEW:
			g.longitudeEW = byte(data)
		case units.GPSLatitudeNS:
			g.latitudeNS = byte(data)
		}
		if g.hasFix() {
			g.positionReceived()
			it.received(now)
		}

	default:
		it.commit(s, it.filter(s, s.getValue(value, unit, prec)), now)
	}
}

// filter applies the sensor's input mode to a calibrated value.
func (it *Item) filter(s *Sensor, value int32) int32 {
	switch s.Input {
	case InputAutoOffset:
		if !it.isAvailable() {
			it.offsetAuto = -value
		}
		return value + it.offsetAuto

	case InputFiltering:
		if !it.isAvailable() {
			for i := range it.filterValues {
				it.filterValues[i] = value
			}
			return value
		}

		// the oldest value still counts once more before it drops out
		sum := int64(it.filterValues[0])
		copy(it.filterValues[:], it.filterValues[1:])
		it.filterValues[FilterWindow-1] = value
		for _, v := range it.filterValues {
			sum += int64(v)
		}
		return roundDiv(sum, FilterWindow+1)
	}

	return value
}

// roundDiv divides rounding half away from zero.
func roundDiv(n, d int64) int32 {
	if n < 0 {
		return int32(-((-n + d/2) / d))
	}
	return int32((n + d/2) / d)
}
