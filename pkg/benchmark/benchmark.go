package benchmark

import (
	"sort"
	"sync"
	"time"
)

// Payment is one test transfer and when each detection path saw it.
// A zero time means that path never fired for this payment.
type Payment struct {
	Kind    string // "sats" or "tokens"
	Num     int
	TxID    string
	SentAt  time.Time
	EventAt time.Time
	PollAt  time.Time
}

func (p *Payment) Detected() bool {
	return !p.EventAt.IsZero() || !p.PollAt.IsZero()
}

// DetectedAt returns the earliest detection across both paths.
func (p *Payment) DetectedAt() time.Time {
	switch {
	case p.EventAt.IsZero():
		return p.PollAt
	case p.PollAt.IsZero():
		return p.EventAt
	case p.EventAt.Before(p.PollAt):
		return p.EventAt
	default:
		return p.PollAt
	}
}

// Method names the path that detected this payment first.
func (p *Payment) Method() string {
	if !p.Detected() {
		return ""
	}
	if p.DetectedAt().Equal(p.EventAt) {
		return "events"
	}
	return "polling"
}

func (p *Payment) Latency() (time.Duration, bool) {
	if !p.Detected() {
		return 0, false
	}
	return p.DetectedAt().Sub(p.SentAt), true
}

// Ledger tracks every test payment for one benchmark run. Detection
// callbacks can't know which transfer they saw (a balance delta has no
// identity), so marks are matched to the oldest payment the path
// hasn't claimed yet, the same first-in-first-matched rule the machine
// itself lives by.
type Ledger struct {
	mu       sync.Mutex
	payments []*Payment
	counts   map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]int)}
}

// Sent records a new outbound payment.
func (l *Ledger) Sent(kind, txID string, at time.Time) *Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counts[kind]++
	p := &Payment{Kind: kind, Num: l.counts[kind], TxID: txID, SentAt: at}
	l.payments = append(l.payments, p)
	return p
}

// MarkEvent assigns an event-path detection to the oldest payment of
// the kind the event path hasn't seen.
func (l *Ledger) MarkEvent(kind string, at time.Time) *Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.payments {
		if p.Kind == kind && p.EventAt.IsZero() {
			p.EventAt = at
			return p
		}
	}
	return nil
}

// MarkPoll assigns up to n polling-path detections; a single balance
// delta can cover several queued payments.
func (l *Ledger) MarkPoll(kind string, at time.Time, n int) []*Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var marked []*Payment
	for _, p := range l.payments {
		if len(marked) == n {
			break
		}
		if p.Kind == kind && p.PollAt.IsZero() {
			p.PollAt = at
			marked = append(marked, p)
		}
	}
	return marked
}

// Of returns the recorded payments of one kind, in send order.
func (l *Ledger) Of(kind string) []*Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Payment
	for _, p := range l.payments {
		if p.Kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// Stats summarizes the detection latencies of one payment kind.
type Stats struct {
	Sent     int
	Detected int
	Min      time.Duration
	Max      time.Duration
	Avg      time.Duration
	Median   time.Duration
}

func Summarize(payments []*Payment) Stats {
	s := Stats{Sent: len(payments)}
	var latencies []time.Duration
	for _, p := range payments {
		if lat, ok := p.Latency(); ok {
			latencies = append(latencies, lat)
		}
	}
	s.Detected = len(latencies)
	if len(latencies) == 0 {
		return s
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	s.Min = latencies[0]
	s.Max = latencies[len(latencies)-1]
	var total time.Duration
	for _, lat := range latencies {
		total += lat
	}
	s.Avg = total / time.Duration(len(latencies))
	mid := len(latencies) / 2
	if len(latencies)%2 == 1 {
		s.Median = latencies[mid]
	} else {
		s.Median = (latencies[mid-1] + latencies[mid]) / 2
	}
	return s
}
