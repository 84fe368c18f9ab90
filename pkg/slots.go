package bepsi

import (
	"math/rand"
	"strconv"

	"github.com/shopspring/decimal"
)

// Slot is one vending position: one relay pin, one product, and the
// payment required for it on each asset. Immutable after config load.
type Slot struct {
	Pin          int
	Name         string
	SatsAmount   int64 // required sats on the Spark rail
	TokenAmounts map[string]decimal.Decimal
}

// Item returns the human-readable product name for bookkeeping.
func (s Slot) Item() string {
	if s.Name != "" {
		return s.Name
	}
	return "unmarked-" + strconv.Itoa(s.Pin)
}

// Right to left on the machine: selections 1..6.
var selectionToPin = map[int]int{
	1: 516,
	2: 517,
	3: 518,
	4: 524,
	5: 525,
	6: 528,
}

// DefaultPins is the pin set of the physical machine, in selection order.
var DefaultPins = []int{516, 517, 518, 524, 525, 528}

// SelectionMapper maps a rail's selection signal (trailing digit,
// memo code, emoji position) onto a vending pin. Total over all
// integer inputs: anything outside the table gets a uniformly random
// pin from the configured set, because an ambiguous but real payment
// should dispense something rather than be dropped.
type SelectionMapper struct {
	table map[int]int
	pins  []int
}

func NewSelectionMapper(pins []int) SelectionMapper {
	if len(pins) == 0 {
		pins = DefaultPins
	}
	return SelectionMapper{table: selectionToPin, pins: pins}
}

// Pin resolves a selection. The second return reports whether the
// selection was in the table, or a random fallback was taken.
func (m SelectionMapper) Pin(selection int) (int, bool) {
	if pin, ok := m.table[selection]; ok {
		return pin, true
	}
	return m.RandomPin(), false
}

// RandomPin picks a uniformly random pin from the configured set.
func (m SelectionMapper) RandomPin() int {
	return m.pins[rand.Intn(len(m.pins))]
}

// Pins returns the configured pin set, in selection order.
func (m SelectionMapper) Pins() []int {
	return m.pins
}
