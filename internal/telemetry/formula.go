package telemetry

import (
	"github.com/roman-kulish/radio-telemetry/internal/mathx"
	"github.com/roman-kulish/radio-telemetry/internal/units"
)

// consumptionThreshold is one unit of charge per hour at the 10 ms sampling
// rate for a current in amps with precision 1: 100 samples/s * 3600 s / 100.
const consumptionThreshold = 3600

// dependency is the outcome of checking a source item before a formula reads it.
type dependency uint8

const (
	depReady       dependency = iota
	depUnavailable            // abort, no update
	depOld                    // mark the dependent item old, no update
)

func checkDependency(it *Item) dependency {
	switch {
	case !it.isAvailable():
		return depUnavailable
	case it.isOld():
		return depOld
	}
	return depReady
}

// per10ms integrates the current of a CONSUMPTION sensor.
func (e *Engine) per10ms(slot Slot) {
	s := &e.sensors[slot]
	it := &e.items[slot]
	if s.Formula != FormulaConsumption || s.Consumption.Source == nil {
		return
	}

	src := *s.Consumption.Source
	srcItem := &e.items[src]
	switch checkDependency(srcItem) {
	case depUnavailable:
		return
	case depOld:
		it.markOld()
		return
	}

	srcSensor := &e.sensors[src]
	current := units.Convert(srcItem.value, srcSensor.Unit, srcSensor.Precision, units.Amps, 1)

	acc := it.consumption()
	acc.prescale += current
	if acc.prescale >= consumptionThreshold {
		acc.prescale -= consumptionThreshold
		e.setValue(slot, it.value+1, s.Unit, s.Precision)
	}
}

// eval computes one calculated sensor from its dependencies.
func (e *Engine) eval(slot Slot) {
	s := &e.sensors[slot]
	switch s.Formula {
	case FormulaCell:
		e.evalCell(slot)
	case FormulaDistance:
		e.evalDistance(slot)
	case FormulaAdd, FormulaAverage, FormulaMin, FormulaMax, FormulaMultiply:
		e.evalCalc(slot)
	}
}

func (e *Engine) evalCell(slot Slot) {
	s := &e.sensors[slot]
	if s.Cell.Source == nil {
		return
	}

	cellsItem := &e.items[*s.Cell.Source]
	if cellsItem.isOld() {
		e.items[slot].markOld()
		return
	}

	pack, ok := cellsItem.scratch.(*cellPack)
	if !ok {
		return
	}

	switch index := s.Cell.Index; index {
	case CellLowest, CellHighest, CellDelta:
		lowest, highest, ok := pack.extremes()
		if !ok {
			return
		}
		switch index {
		case CellLowest:
			e.setValue(slot, lowest, units.Volts, 2)
		case CellHighest:
			e.setValue(slot, highest, units.Volts, 2)
		case CellDelta:
			e.setValue(slot, highest-lowest, units.Volts, 2)
		}

	default:
		i := int(index) - 1
		if i < int(pack.count) && i < MaxCells && pack.values[i].state {
			e.setValue(slot, pack.values[i].value, units.Volts, 2)
		}
	}
}

// evalDistance computes the distance between the pilot reference point and the
// current GPS fix on a flat-earth approximation, optionally including altitude.
func (e *Engine) evalDistance(slot Slot) {
	s := &e.sensors[slot]
	it := &e.items[slot]
	if s.Distance.GPS == nil {
		return
	}

	gpsItem := &e.items[*s.Distance.GPS]
	switch checkDependency(gpsItem) {
	case depUnavailable:
		return
	case depOld:
		it.markOld()
		return
	}

	var altItem *Item
	var altPrec uint8
	if s.Distance.Altitude != nil {
		altItem = &e.items[*s.Distance.Altitude]
		altPrec = e.sensors[*s.Distance.Altitude].Precision
		switch checkDependency(altItem) {
		case depUnavailable:
			return
		case depOld:
			it.markOld()
			return
		}
	}

	g, ok := gpsItem.scratch.(*gpsState)
	if !ok {
		return
	}
	latitude, longitude := g.extract()

	// per-axis products are widened to 64 bits, the sum of squares stays 32-bit
	dist := uint32(uint64(earthRadius) * uint64(mathx.AbsDiff(latitude, g.pilotLatitude)) / 1_000_000)
	result := dist * dist

	dist = uint32(uint64(g.distFromEarthAxis) * uint64(mathx.AbsDiff(longitude, g.pilotLongitude)) / 1_000_000)
	result += dist * dist

	if altItem != nil {
		alt := uint32(mathx.Abs(altItem.value))
		switch altPrec {
		case 1:
			alt /= 10
		case 2:
			alt /= 100
		}
		result += alt * alt
	}

	e.setValue(slot, int32(mathx.ISqrt32(result)), units.Meters, 0)
}

// evalCalc combines signed sources. AVERAGE skips missing or old sources;
// the other formulas need every source ready.
func (e *Engine) evalCalc(slot Slot) {
	s := &e.sensors[slot]
	it := &e.items[slot]

	sources := s.Calc.Sources
	limit := MaxCalcSources
	var value int32
	if s.Formula == FormulaMultiply {
		limit = MaxMultiplySources
		value = 1
	}
	if len(sources) > limit {
		sources = sources[:limit]
	}

	var count int32
	var available bool
	var mulPrec uint8
	for _, ref := range sources {
		srcItem := &e.items[ref.Slot]
		srcSensor := &e.sensors[ref.Slot]

		if s.Formula == FormulaAverage {
			if !srcItem.isAvailable() {
				continue
			}
			available = true
			if srcItem.isOld() {
				continue
			}
		} else {
			switch checkDependency(srcItem) {
			case depUnavailable:
				return
			case depOld:
				it.markOld()
				return
			}
		}

		v := srcItem.value
		if ref.Negate {
			v = -v
		}
		count++

		if s.Formula == FormulaMultiply {
			mulPrec += srcSensor.Precision
			value *= units.Convert(v, srcSensor.Unit, 0, s.Unit, 0)
			continue
		}

		v = units.Convert(v, srcSensor.Unit, srcSensor.Precision, s.Unit, s.Precision)
		switch {
		case s.Formula == FormulaMin && count > 1:
			value = mathx.Min(value, v)
		case s.Formula == FormulaMax && count > 1:
			value = mathx.Max(value, v)
		case s.Formula == FormulaMin, s.Formula == FormulaMax:
			value = v
		default:
			value += v
		}
	}

	switch s.Formula {
	case FormulaAverage:
		if count == 0 {
			if available {
				it.markOld()
			}
			return
		}
		value = (value + count/2) / count

	case FormulaMultiply:
		if count == 0 {
			return
		}
		value = units.Convert(value, s.Unit, mulPrec, s.Unit, s.Precision)
	}

	e.setValue(slot, value, s.Unit, s.Precision)
}
