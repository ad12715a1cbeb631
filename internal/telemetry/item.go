package telemetry

import "github.com/roman-kulish/radio-telemetry/internal/units"

// FilterWindow is the number of past values kept by the filtering input mode.
const FilterWindow = 3

type itemState uint8

const (
	stateUnavailable itemState = iota // never received
	stateReceived                     // received at Item.lastReceived
	stateOld                          // explicitly marked stale
)

// Item is the runtime state of one telemetry slot.
type Item struct {
	value    int32
	valueMin int32
	valueMax int32

	state        itemState
	lastReceived Tick

	offsetAuto   int32
	filterValues [FilterWindow]int32

	// scratch holds the formula or wire specific state: *cellPack, *gpsState,
	// *dateTime or *consumption. Asking for a different variant replaces it.
	scratch any
}

func (it *Item) isAvailable() bool {
	return it.state != stateUnavailable
}

func (it *Item) isOld() bool {
	return it.state == stateOld
}

func (it *Item) isFresh(now Tick) bool {
	return it.state == stateReceived && now-it.lastReceived < FreshTicks
}

func (it *Item) received(now Tick) {
	it.state = stateReceived
	it.lastReceived = now
}

func (it *Item) markOld() {
	it.state = stateOld
}

func (it *Item) clear() {
	*it = Item{}
}

// commit records a processed value: extremes first, then value and reception time.
func (it *Item) commit(s *Sensor, value int32, now Tick) {
	switch {
	case !it.isAvailable():
		it.valueMin = value
		it.valueMax = value
	case value < it.valueMin:
		it.valueMin = value
	case value > it.valueMax:
		it.valueMax = value
		if s.Unit == units.Volts {
			// a higher voltage than ever seen means a fresh pack
			it.valueMin = value
		}
	}

	it.value = value
	it.received(now)
}

func (it *Item) cells() *cellPack {
	if c, ok := it.scratch.(*cellPack); ok {
		return c
	}
	c := &cellPack{}
	it.scratch = c
	return c
}

func (it *Item) gps() *gpsState {
	if g, ok := it.scratch.(*gpsState); ok {
		return g
	}
	g := &gpsState{}
	it.scratch = g
	return g
}

func (it *Item) dateTime() *dateTime {
	if d, ok := it.scratch.(*dateTime); ok {
		return d
	}
	d := &dateTime{}
	it.scratch = d
	return d
}

func (it *Item) consumption() *consumption {
	if c, ok := it.scratch.(*consumption); ok {
		return c
	}
	c := &consumption{}
	it.scratch = c
	return c
}

// consumption is the coulomb counting accumulator of a CONSUMPTION sensor.
type consumption struct {
	prescale int32
}
