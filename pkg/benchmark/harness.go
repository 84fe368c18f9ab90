package benchmark

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/big"
	"sync"
	"time"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/rails/spark"
)

// Strategy is one detection approach under test.
type Strategy string

const (
	// Hybrid is the production approach: sats by events, tokens by
	// polling, no backups.
	Hybrid Strategy = "hybrid"
	// Experimental listens for balance events on both asset kinds,
	// with polling as a backup for each.
	Experimental Strategy = "experimental"
	// SatsRace runs events and polling side by side on the same sats
	// payments and scores which path saw each one first.
	SatsRace Strategy = "sats-race"
)

// paths is the detection matrix a strategy enables.
type paths struct {
	satsEvents  bool
	satsPoll    bool
	tokenEvents bool
	tokenPoll   bool
	sendTokens  bool
}

func (s Strategy) paths() (paths, error) {
	switch s {
	case Hybrid:
		return paths{satsEvents: true, tokenPoll: true, sendTokens: true}, nil
	case Experimental:
		return paths{satsEvents: true, satsPoll: true, tokenEvents: true, tokenPoll: true, sendTokens: true}, nil
	case SatsRace:
		return paths{satsEvents: true, satsPoll: true}, nil
	default:
		return paths{}, fmt.Errorf("unknown strategy %q", s)
	}
}

type Config struct {
	Payments      int
	SatsAmount    int64
	TokenID       string
	TokenDecimals int
	TestMnemonic  string
	PinAddress    string
	PinMnemonic   string
	SendGap       time.Duration
	SettleWait    time.Duration
	PollEvery     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Payments == 0 {
		c.Payments = 5
	}
	if c.SatsAmount == 0 {
		c.SatsAmount = 1000
	}
	if c.TokenDecimals == 0 {
		c.TokenDecimals = 6
	}
	if c.SendGap == 0 {
		c.SendGap = 8 * time.Second
	}
	if c.SettleWait == 0 {
		c.SettleWait = 20 * time.Second
	}
	if c.PollEvery == 0 {
		c.PollEvery = spark.PollInterval
	}
	return c
}

// Report is the outcome of one benchmark run.
type Report struct {
	Strategy  Strategy
	Sats      Stats
	Tokens    Stats
	EventWins int
	PollWins  int
}

func (r *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "strategy: %s\n", r.Strategy)
	writeStats(w, "sats", r.Sats)
	if r.Strategy != SatsRace {
		writeStats(w, "tokens", r.Tokens)
		return
	}
	fmt.Fprintf(w, "race: events won %d, polling won %d\n", r.EventWins, r.PollWins)
	switch {
	case r.EventWins > r.PollWins:
		fmt.Fprintln(w, "verdict: events")
	case r.PollWins > r.EventWins:
		fmt.Fprintln(w, "verdict: polling")
	default:
		fmt.Fprintln(w, "verdict: tie")
	}
}

func writeStats(w io.Writer, kind string, s Stats) {
	fmt.Fprintf(w, "%s: detected %d/%d", kind, s.Detected, s.Sent)
	if s.Detected > 0 {
		fmt.Fprintf(w, ", min %v, avg %v, median %v, max %v", s.Min, s.Avg, s.Median, s.Max)
	}
	fmt.Fprintln(w)
}

// Harness sends real payments from a funded test wallet into one pin
// wallet and measures how fast each detection path notices them.
type Harness struct {
	opener spark.Opener
	conf   Config
	out    io.Writer
}

func New(opener spark.Opener, conf Config, out io.Writer) *Harness {
	return &Harness{opener: opener, conf: conf.withDefaults(), out: out}
}

// tracker keeps the polling baselines for one run.
type tracker struct {
	mu        sync.Mutex
	prevSats  int64
	prevToken *big.Int
}

func (h *Harness) tokenUnit() *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(h.conf.TokenDecimals)), nil)
}

// Run executes one strategy end to end and returns its report.
func (h *Harness) Run(ctx context.Context, strategy Strategy) (*Report, error) {
	enabled, err := strategy.paths()
	if err != nil {
		return nil, err
	}

	testWallet, err := h.opener.Open(ctx, h.conf.TestMnemonic)
	if err != nil {
		return nil, fmt.Errorf("opening test wallet: %w", err)
	}
	defer testWallet.Close()

	pinWallet, err := h.opener.Open(ctx, h.conf.PinMnemonic)
	if err != nil {
		return nil, fmt.Errorf("opening pin wallet: %w", err)
	}
	defer pinWallet.Close()

	bal, err := testWallet.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("test wallet balance: %w", err)
	}
	fmt.Fprintf(h.out, "test wallet balance: %d sats\n", bal.Sats)

	initial, err := pinWallet.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin wallet balance: %w", err)
	}
	track := &tracker{prevSats: initial.Sats, prevToken: h.rawToken(initial)}

	ledger := NewLedger()
	mctx, stopMonitors := context.WithCancel(ctx)
	defer stopMonitors()
	go h.eventMonitor(mctx, pinWallet, ledger, enabled, track)
	go h.pollMonitor(mctx, pinWallet, ledger, enabled, track)

	fmt.Fprintf(h.out, "sending %d sats payments of %d sats\n", h.conf.Payments, h.conf.SatsAmount)
	for i := 0; i < h.conf.Payments; i++ {
		at := time.Now()
		if err := testWallet.TransferSats(ctx, h.conf.PinAddress, h.conf.SatsAmount); err != nil {
			log.Printf("benchmark: sats payment %d failed: %v", i+1, err)
			continue
		}
		ledger.Sent("sats", "", at)
		if err := sleep(ctx, h.conf.SendGap); err != nil {
			return nil, err
		}
	}
	if err := sleep(ctx, h.conf.SettleWait); err != nil {
		return nil, err
	}

	if enabled.sendTokens {
		fmt.Fprintf(h.out, "sending %d token payments of 1 token\n", h.conf.Payments)
		for i := 0; i < h.conf.Payments; i++ {
			at := time.Now()
			if err := testWallet.TransferTokens(ctx, h.conf.PinAddress, h.conf.TokenID, h.tokenUnit()); err != nil {
				log.Printf("benchmark: token payment %d failed: %v", i+1, err)
				continue
			}
			ledger.Sent("tokens", "", at)
			if err := sleep(ctx, h.conf.SendGap); err != nil {
				return nil, err
			}
		}
		if err := sleep(ctx, h.conf.SettleWait); err != nil {
			return nil, err
		}
	}

	report := h.report(strategy, ledger)
	report.Write(h.out)
	return report, nil
}

func (h *Harness) report(strategy Strategy, ledger *Ledger) *Report {
	r := &Report{
		Strategy: strategy,
		Sats:     Summarize(ledger.Of("sats")),
		Tokens:   Summarize(ledger.Of("tokens")),
	}
	for _, p := range ledger.Of("sats") {
		if p.EventAt.IsZero() || p.PollAt.IsZero() {
			continue
		}
		if p.EventAt.Before(p.PollAt) {
			r.EventWins++
		} else {
			r.PollWins++
		}
	}
	return r
}

func (h *Harness) eventMonitor(ctx context.Context, w spark.Wallet, ledger *Ledger, enabled paths, track *tracker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-w.Events():
			if !open {
				return
			}
			switch ev.Type {
			case spark.EventTransferClaimed:
				if enabled.satsEvents {
					if p := ledger.MarkEvent("sats", time.Now()); p != nil {
						fmt.Fprintf(h.out, "events: sats payment #%d detected\n", p.Num)
					}
				}
			case spark.EventBalanceUpdated:
				if !enabled.tokenEvents {
					continue
				}
				for i := 0; i < h.tokenDelta(ctx, w, track); i++ {
					if p := ledger.MarkEvent("tokens", time.Now()); p != nil {
						fmt.Fprintf(h.out, "events: token payment #%d detected\n", p.Num)
					}
				}
			}
		}
	}
}

func (h *Harness) pollMonitor(ctx context.Context, w spark.Wallet, ledger *Ledger, enabled paths, track *tracker) {
	ticker := time.NewTicker(h.conf.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bal, err := w.Balance(ctx)
			if err != nil {
				log.Printf("benchmark: poll balance: %v", err)
				continue
			}
			now := time.Now()

			track.mu.Lock()
			satsDelta := bal.Sats - track.prevSats
			track.prevSats = bal.Sats
			raw := h.rawToken(bal)
			tokenDelta := new(big.Int).Sub(raw, track.prevToken)
			track.prevToken = raw
			track.mu.Unlock()

			if enabled.satsPoll && satsDelta > 0 {
				n := int(satsDelta / h.conf.SatsAmount)
				for _, p := range ledger.MarkPoll("sats", now, n) {
					fmt.Fprintf(h.out, "polling: sats payment #%d detected\n", p.Num)
				}
			}
			if enabled.tokenPoll && tokenDelta.Sign() > 0 {
				n := int(new(big.Int).Div(tokenDelta, h.tokenUnit()).Int64())
				for _, p := range ledger.MarkPoll("tokens", now, n) {
					fmt.Fprintf(h.out, "polling: token payment #%d detected\n", p.Num)
				}
			}
		}
	}
}

// tokenDelta re-fetches the pin wallet balance and returns how many
// whole token payments arrived since the last observation.
func (h *Harness) tokenDelta(ctx context.Context, w spark.Wallet, track *tracker) int {
	bal, err := w.Balance(ctx)
	if err != nil {
		log.Printf("benchmark: event balance: %v", err)
		return 0
	}
	raw := h.rawToken(bal)
	track.mu.Lock()
	delta := new(big.Int).Sub(raw, track.prevToken)
	if delta.Sign() > 0 {
		track.prevToken = raw
	}
	track.mu.Unlock()
	if delta.Sign() <= 0 {
		return 0
	}
	return int(new(big.Int).Div(delta, h.tokenUnit()).Int64())
}

func (h *Harness) rawToken(bal spark.Balance) *big.Int {
	if tb, found := bal.Tokens[h.conf.TokenID]; found && tb.Balance != nil {
		return new(big.Int).Set(tb.Balance)
	}
	return big.NewInt(0)
}

// PreSweep returns every pin wallet's funds to the test wallet so a
// run doesn't starve for the next one.
func PreSweep(ctx context.Context, opener spark.Opener, pins []bepsi.SparkPinConfig, testAddress string, out io.Writer) int64 {
	var swept int64
	for _, pin := range pins {
		w, err := opener.Open(ctx, pin.Mnemonic)
		if err != nil {
			fmt.Fprintf(out, "pin %d: %v\n", pin.Pin, err)
			continue
		}
		bal, err := w.Balance(ctx)
		if err != nil {
			fmt.Fprintf(out, "pin %d: %v\n", pin.Pin, err)
			w.Close()
			continue
		}
		if bal.Sats > 0 {
			if err := w.TransferSats(ctx, testAddress, bal.Sats); err != nil {
				fmt.Fprintf(out, "pin %d: sweeping %d sats: %v\n", pin.Pin, bal.Sats, err)
			} else {
				fmt.Fprintf(out, "pin %d: swept %d sats\n", pin.Pin, bal.Sats)
				swept += bal.Sats
			}
		}
		for tokenID, tb := range bal.Tokens {
			if tb.Balance == nil || tb.Balance.Sign() <= 0 {
				continue
			}
			if err := w.TransferTokens(ctx, testAddress, tokenID, tb.Balance); err != nil {
				fmt.Fprintf(out, "pin %d: sweeping token %s: %v\n", pin.Pin, tokenID, err)
			} else {
				fmt.Fprintf(out, "pin %d: swept %s of token %s\n", pin.Pin, tb.Balance, tokenID)
			}
		}
		w.Close()
	}
	return swept
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
