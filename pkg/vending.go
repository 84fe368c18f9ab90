package bepsi

import (
	"log"
	"time"
)

// Dispenser actuates one physical vend. Implementations must be safe
// for concurrent use and report false when the request was dropped.
type Dispenser interface {
	Dispense(pin int) bool
}

// SaleRecorder receives confirmed sales for bookkeeping. Failures must
// be swallowed by implementations; recording never blocks a dispense.
type SaleRecorder interface {
	Record(c PaymentCandidate)
}

// VendingMachine ties the rails to the hardware: every observer hands
// recognized payments to Paid, which records the sale, notifies the
// bus (and through it the SSE feed), and actuates the dispenser.
type VendingMachine struct {
	slots     map[int]Slot
	dispenser Dispenser
	recorders []SaleRecorder
	bus       MessageBus
}

func NewVendingMachine(slots map[int]Slot, d Dispenser, bus MessageBus, recorders ...SaleRecorder) *VendingMachine {
	return &VendingMachine{slots: slots, dispenser: d, recorders: recorders, bus: bus}
}

// Paid implements PaymentSink. Recording failures never reach the
// dispense path; a busy dispense gate drops the actuation but the sale
// stays logged (known drop-on-contention policy).
func (v *VendingMachine) Paid(c PaymentCandidate) {
	if c.At.IsZero() {
		c.At = time.Now()
	}
	if slot, ok := v.slots[c.Pin]; ok && c.Item == "" {
		c.Item = slot.Item()
	}

	v.bus.Send(PAY_RECEIVED, PaymentNotification{
		Event:     "payment_received",
		Pin:       c.Pin,
		Address:   c.Address,
		Drink:     c.Item,
		Currency:  c.Currency,
		Amount:    c.Amount,
		Timestamp: c.At.UnixMilli(),
	})

	for _, r := range v.recorders {
		r.Record(c)
	}

	log.Printf("Dispensing pin %d (%s via %s)", c.Pin, c.Currency, c.Method)
	if v.dispenser.Dispense(c.Pin) {
		v.bus.Send(PAY_DISPENSED, c)
	} else {
		log.Printf("Dispense already in progress, dropping actuation for pin %d", c.Pin)
		v.bus.Send(PAY_DROPPED, c)
	}
}
