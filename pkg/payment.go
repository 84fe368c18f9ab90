package bepsi

import "time"

// PaymentCandidate is the normalized outcome of one rail observation:
// a pin the machine should vend from and how the payment arrived. It is
// never persisted; it drives one dispense decision and one log append.
type PaymentCandidate struct {
	Pin      int
	Item     string
	Currency string  // "sats", "USDC", "discord", token name...
	Amount   float64 // display units; zero when the rail doesn't report one
	Method   string  // "spark", "lightning", "arkade", network name...
	Address  string  // receiving address, when the rail has a dedicated one
	At       time.Time
}

// PaymentNotification is the JSON shape broadcast on the bus and the
// SSE feed for every recognized payment.
type PaymentNotification struct {
	Event     string  `json:"event"` // always "payment_received"
	Pin       int     `json:"pin"`
	Address   string  `json:"address"`
	Drink     string  `json:"drink"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Timestamp int64   `json:"timestamp"` // unix millis
}

// PaymentSink accepts recognized payments from rail observers.
// The production implementation records the sale and actuates the
// machine; tests substitute their own.
type PaymentSink interface {
	Paid(c PaymentCandidate)
}
