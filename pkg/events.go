package bepsi

// Bepsi event types.

// bus.Send(PAY_RECEIVED, candidate)
// bus.Send(RAIL_DISCONNECTED, info)

// Interface for any event
type EventType interface {
	Type() string
}

// slice of all event types for config funcs lookup
var EVENT_TYPES []EventType = []EventType{EVENT_ALL("ALL"),
	EVENT_SYS("SYS"),
	EVENT_PAY("PAY"),
	EVENT_RAIL("RAIL")}

// Special category, do not use directly, represents *
type EVENT_ALL string

func (e EVENT_ALL) Type() string {
	return "ALL"
}

// System Events
type EVENT_SYS string

func (e EVENT_SYS) Type() string {
	return "SYS"
}

const (
	SYS_STARTUP EVENT_SYS = "STARTUP"
	SYS_ERR     EVENT_SYS = "ERR"
	SYS_MSG     EVENT_SYS = "MSG"
)

// Payment Events
type EVENT_PAY string

func (e EVENT_PAY) Type() string {
	return "PAY"
}

const (
	PAY_RECEIVED  EVENT_PAY = "RECEIVED"  // qualifying payment recognized
	PAY_REJECTED  EVENT_PAY = "REJECTED"  // below minimum, no dispense
	PAY_DISPENSED EVENT_PAY = "DISPENSED" // relay pulsed
	PAY_DROPPED   EVENT_PAY = "DROPPED"   // dispense gate was busy
)

// Rail Events
type EVENT_RAIL string

func (e EVENT_RAIL) Type() string {
	return "RAIL"
}

const (
	RAIL_CONNECTED    EVENT_RAIL = "CONNECTED"
	RAIL_DISCONNECTED EVENT_RAIL = "DISCONNECTED"
	RAIL_DISABLED     EVENT_RAIL = "DISABLED"
	RAIL_SWEEP        EVENT_RAIL = "SWEEP"
)
