package telemetry

// MaxCells is the number of cell voltages a pack item can hold.
const MaxCells = 6

type cellValue struct {
	state bool
	value int32 // volts, precision 2
}

type cellPack struct {
	count  uint8
	values [MaxCells]cellValue
}

func (c *cellPack) set(index uint8, value int32) {
	if int(index) < MaxCells {
		c.values[index] = cellValue{state: true, value: value}
	}
}

// sum adds up all cells of the pack. It reports false while any cell is missing.
func (c *cellPack) sum() (int32, bool) {
	var total int32
	for i := 0; i < int(c.count); i++ {
		if i >= MaxCells || !c.values[i].state {
			return 0, false
		}
		total += c.values[i].value
	}
	return total, true
}

// extremes returns the lowest and highest cell. It reports false unless every
// cell of the pack has been received.
func (c *cellPack) extremes() (lowest, highest int32, ok bool) {
	if c.count == 0 {
		return 0, 0, false
	}
	for i := 0; i < int(c.count); i++ {
		if i >= MaxCells || !c.values[i].state {
			return 0, 0, false
		}
		v := c.values[i].value
		if i == 0 || v < lowest {
			lowest = v
		}
		if i == 0 || v > highest {
			highest = v
		}
	}
	return lowest, highest, true
}

// cellFrame is the packed cells wire record:
//
//	bits 0-3   index of the first cell in the frame
//	bits 4-7   number of cells in the pack
//	bits 8-19  first cell, 1/500 V
//	bits 20-31 second cell, 1/500 V
type cellFrame uint32

func (f cellFrame) index() uint8 { return uint8(f & 0xF) }

func (f cellFrame) count() uint8 { return uint8((f & 0xF0) >> 4) }

func (f cellFrame) first() int32 { return int32((f&0x000FFF00)>>8) / 5 }

func (f cellFrame) second() int32 { return int32((f&0xFFF00000)>>20) / 5 }

// EncodeCells packs two cell voltages (1/500 V each) into a cells wire value.
func EncodeCells(index, count uint8, first, second uint16) int32 {
	v := uint32(index&0xF) |
		uint32(count&0xF)<<4 |
		uint32(first&0xFFF)<<8 |
		uint32(second&0xFFF)<<20
	return int32(v)
}
