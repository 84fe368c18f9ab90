package spark

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

const (
	PollInterval  = 5 * time.Second
	SweepInterval = 10 * time.Minute
	RetryDelay    = 60 * time.Second // before re-attempting wallet startup
	DustSats      = 100              // sats below this aren't worth sweeping
	rpcTimeout    = 30 * time.Second
)

/*
Observer watches one dedicated Spark wallet per vending pin and runs
two detection strategies concurrently, one per asset class:

  - sats: event-driven. transfer:claimed pushes arrive fast and
    reliably, so a push triggers a balance re-fetch and the increase
    check.
  - tokens: poll-driven. The analogous balance:updated push proved too
    unreliable, so balances are polled on a fixed interval instead.

The asymmetry was established empirically by the benchmark harness and
is the point of this design; collapsing both paths onto one mechanism
loses either latency (polling sats) or payments (trusting token
events).

No path fires until the initial balance scan over every pin completes,
so pre-existing balances never vend on startup.
*/
type Observer struct {
	opener   Opener
	sink     bepsi.PaymentSink
	pins     []*pinState
	tokens   []bepsi.SparkTokenConfig
	treasury string

	pollEvery  time.Duration
	sweepEvery time.Duration
	retryDelay time.Duration

	scanned atomic.Bool // initial balance scan complete
}

// pinState is the per-slot detection state. Baselines are monotonically
// set to the latest observed balance after every observation, payment
// or not: the same increase can never be reported twice, and balances
// that later decrease (after a sweep) can't fire.
type pinState struct {
	mu         sync.Mutex
	cfg        bepsi.SparkPinConfig
	wallet     Wallet
	prevSats   int64
	prevTokens map[string]decimal.Decimal
	inEvent    atomic.Bool // re-entrancy guard for the event path
}

func NewObserver(conf bepsi.Config, opener Opener, sink bepsi.PaymentSink) *Observer {
	o := &Observer{
		opener:     opener,
		sink:       sink,
		tokens:     conf.Spark.Tokens,
		treasury:   conf.Spark.Treasury,
		pollEvery:  PollInterval,
		sweepEvery: SweepInterval,
		retryDelay: RetryDelay,
	}
	for _, p := range conf.Spark.Pins {
		o.pins = append(o.pins, &pinState{
			cfg:        p,
			prevTokens: make(map[string]decimal.Decimal),
		})
	}
	return o
}

// Implements conductor.Service
func (o *Observer) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		// the pin event pumps and the poll loop all need to see the
		// shutdown, so fan the single stop signal out via a context
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-stop
			cancel()
		}()
		started <- true
		for {
			if o.openWallets(ctx) {
				break
			}
			log.Printf("Spark: retrying wallet startup in %v", o.retryDelay)
			select {
			case <-ctx.Done():
				stopped <- true
				return
			case <-time.After(o.retryDelay):
			}
		}
		o.loop(ctx)
		o.closeWallets()
		stopped <- true
	}()
	return nil
}

// openWallets initializes every pin's wallet and its event pump.
// Individual pin failures are logged and skipped; reports false only
// when no wallet at all could be opened.
func (o *Observer) openWallets(ctx context.Context) bool {
	opened := 0
	for _, ps := range o.pins {
		if ps.wallet != nil {
			opened++
			continue
		}
		octx, cancel := context.WithTimeout(ctx, rpcTimeout)
		w, err := o.opener.Open(octx, ps.cfg.Mnemonic)
		cancel()
		if err != nil {
			log.Printf("Spark: failed to load pin %d: %v", ps.cfg.Pin, err)
			continue
		}
		ps.wallet = w
		opened++
		log.Printf("Spark: pin %d: send %d sats to %s", ps.cfg.Pin, ps.cfg.Sats, w.Address())
		go o.pumpEvents(ctx, ps)
	}
	return opened > 0
}

func (o *Observer) closeWallets() {
	for _, ps := range o.pins {
		if ps.wallet != nil {
			ps.wallet.Close()
		}
	}
}

// loop owns both timers: the 5s token poll and the 10min treasury
// sweep. The first poll pass seeds every baseline and completes the
// initial scan.
func (o *Observer) loop(ctx context.Context) {
	o.checkTokenPayments()

	poll := time.NewTicker(o.pollEvery)
	defer poll.Stop()

	var sweep <-chan time.Time
	if o.treasury != "" {
		log.Printf("Spark: treasury consolidation enabled: %s", o.treasury)
		t := time.NewTicker(o.sweepEvery)
		defer t.Stop()
		sweep = t.C
	} else {
		log.Printf("Spark: treasury consolidation disabled")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			o.checkTokenPayments()
		case <-sweep:
			o.sweepToTreasury()
		}
	}
}

// pumpEvents consumes one wallet's stream. Only transfer:claimed
// matters for detection; stream health events are just logged.
func (o *Observer) pumpEvents(ctx context.Context, ps *pinState) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ps.wallet.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case EventTransferClaimed:
				o.onTransferClaimed(ps, ev.TransferID)
			case EventStreamConnected:
				log.Printf("Spark: event stream connected for pin %d (sats detection active)", ps.cfg.Pin)
			case EventStreamDisconnected:
				log.Printf("Spark: event stream disconnected for pin %d: %s", ps.cfg.Pin, ev.Reason)
			}
		}
	}
}

// onTransferClaimed is the sats path: a push notification triggers a
// balance re-fetch, and the payment fires when the balance increased
// to at least the pin's required amount.
func (o *Observer) onTransferClaimed(ps *pinState, transferID string) {
	if !o.scanned.Load() {
		return
	}
	if !ps.inEvent.CompareAndSwap(false, true) {
		return
	}
	defer ps.inEvent.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	bal, err := ps.wallet.Balance(ctx)
	cancel()
	if err != nil {
		log.Printf("Spark: balance fetch after transfer event for pin %d: %v", ps.cfg.Pin, err)
		return
	}

	ps.mu.Lock()
	prev := ps.prevSats
	current := bal.Sats
	required := ps.cfg.Sats
	fire := current >= required && current > prev
	if fire {
		ps.prevSats = current
	}
	ps.mu.Unlock()

	if !fire {
		return
	}

	log.Printf("Spark: sats payment detected (event) for pin %d: +%d sats, balance %d, required %d, transfer %s",
		ps.cfg.Pin, current-prev, current, required, transferID)
	o.sink.Paid(bepsi.PaymentCandidate{
		Pin:      ps.cfg.Pin,
		Item:     ps.cfg.Name,
		Currency: "sats",
		Amount:   float64(current - prev),
		Method:   "spark",
		Address:  ps.wallet.Address(),
		At:       time.Now(),
	})
}

// checkTokenPayments is the token path: one polling pass over every
// pin and every configured token. Baselines always advance to the
// latest observation, payment or not. At most one token-driven
// dispense per pin per pass; the first qualifying token wins and the
// rest of that pin's tokens wait for the next pass.
func (o *Observer) checkTokenPayments() {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()

	for _, ps := range o.pins {
		if ps.wallet == nil {
			continue
		}
		bal, err := ps.wallet.Balance(ctx)
		if err != nil {
			log.Printf("Spark: balance poll for pin %d: %v", ps.cfg.Pin, err)
			continue
		}

		var paid *bepsi.PaymentCandidate

		ps.mu.Lock()
		// the poll pass also keeps the sats baseline current
		ps.prevSats = bal.Sats

		for _, tok := range o.tokens {
			required, ok := tok.Amount(ps.cfg.Pin)
			if !ok {
				continue
			}

			current := decimal.Zero
			if tb, found := bal.Tokens[tok.Identifier]; found && tb.Balance != nil {
				divisor := decimal.New(1, int32(tok.Decimals))
				current = decimal.NewFromBigInt(tb.Balance, 0).Div(divisor)
			}
			prev := ps.prevTokens[tok.Identifier]
			delta := current.Sub(prev)

			ps.prevTokens[tok.Identifier] = current

			if o.scanned.Load() && delta.GreaterThanOrEqual(required) && current.GreaterThan(prev) {
				log.Printf("Spark: token payment detected (polling) for pin %d: %s +%s (balance %s, required %s)",
					ps.cfg.Pin, tok.Name, delta.String(), current.String(), required.String())
				amt, _ := delta.Float64()
				paid = &bepsi.PaymentCandidate{
					Pin:      ps.cfg.Pin,
					Item:     ps.cfg.Name,
					Currency: tok.Name,
					Amount:   amt,
					Method:   "spark",
					Address:  ps.wallet.Address(),
					At:       time.Now(),
				}
				break
			}
		}
		ps.mu.Unlock()

		if paid != nil {
			o.sink.Paid(*paid)
		}
	}

	if !o.scanned.Load() {
		o.scanned.Store(true)
		log.Printf("Spark: initial balance scan complete (sats: events, tokens: %v polling)", o.pollEvery)
	}
}
