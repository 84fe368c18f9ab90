package benchmark

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
	"github.com/dctrlwtf/bepsi/pkg/rails/spark"
)

func TestSummarize(t *testing.T) {
	base := time.Now()
	mk := func(lat time.Duration) *Payment {
		return &Payment{Kind: "sats", SentAt: base, EventAt: base.Add(lat)}
	}

	s := Summarize([]*Payment{
		mk(100 * time.Millisecond),
		mk(300 * time.Millisecond),
		mk(200 * time.Millisecond),
		{Kind: "sats", SentAt: base}, // never detected
	})
	require.Equal(t, 4, s.Sent)
	require.Equal(t, 3, s.Detected)
	require.Equal(t, 100*time.Millisecond, s.Min)
	require.Equal(t, 300*time.Millisecond, s.Max)
	require.Equal(t, 200*time.Millisecond, s.Avg)
	require.Equal(t, 200*time.Millisecond, s.Median)

	// even count: median is the midpoint of the middle pair
	s = Summarize([]*Payment{mk(100 * time.Millisecond), mk(200 * time.Millisecond)})
	require.Equal(t, 150*time.Millisecond, s.Median)

	require.Equal(t, Stats{Sent: 0}, Summarize(nil))
}

func TestLedgerMatching(t *testing.T) {
	base := time.Now()
	l := NewLedger()
	first := l.Sent("sats", "tx1", base)
	second := l.Sent("sats", "tx2", base)
	l.Sent("tokens", "tx3", base)

	// event marks claim payments oldest-first, per kind
	require.Same(t, first, l.MarkEvent("sats", base.Add(time.Second)))
	require.Same(t, second, l.MarkEvent("sats", base.Add(2*time.Second)))
	require.Nil(t, l.MarkEvent("sats", base.Add(3*time.Second)))

	// one poll delta can cover several payments
	marked := l.MarkPoll("sats", base.Add(4*time.Second), 5)
	require.Len(t, marked, 2)

	// both paths fired: the earlier one decides method and latency
	require.Equal(t, "events", first.Method())
	lat, ok := first.Latency()
	require.True(t, ok)
	require.Equal(t, time.Second, lat)
}

// fakeNetwork links wallets so transfers from one credit another and
// fire its transfer event, like the real thing but instant.
type fakeNetwork struct {
	mu      sync.Mutex
	wallets map[string]*fakeWallet
}

type fakeWallet struct {
	net    *fakeNetwork
	addr   string
	sats   int64
	tokens map[string]*big.Int
	events chan spark.Event
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{wallets: make(map[string]*fakeWallet)}
}

func (n *fakeNetwork) wallet(addr string) *fakeWallet {
	n.mu.Lock()
	defer n.mu.Unlock()
	if w, found := n.wallets[addr]; found {
		return w
	}
	w := &fakeWallet{
		net:    n,
		addr:   addr,
		tokens: make(map[string]*big.Int),
		events: make(chan spark.Event, 64),
	}
	n.wallets[addr] = w
	return w
}

// Open treats the mnemonic as the wallet address for test purposes.
func (n *fakeNetwork) Open(ctx context.Context, mnemonic string) (spark.Wallet, error) {
	return n.wallet(mnemonic), nil
}

func (w *fakeWallet) Address() string { return w.addr }

func (w *fakeWallet) Balance(ctx context.Context) (spark.Balance, error) {
	w.net.mu.Lock()
	defer w.net.mu.Unlock()
	bal := spark.Balance{Sats: w.sats, Tokens: make(map[string]spark.TokenBalance)}
	for id, raw := range w.tokens {
		bal.Tokens[id] = spark.TokenBalance{Balance: new(big.Int).Set(raw)}
	}
	return bal, nil
}

func (w *fakeWallet) TransferSats(ctx context.Context, to string, sats int64) error {
	dest := w.net.wallet(to)
	w.net.mu.Lock()
	if w.sats < sats {
		w.net.mu.Unlock()
		return fmt.Errorf("insufficient funds")
	}
	w.sats -= sats
	dest.sats += sats
	w.net.mu.Unlock()
	dest.events <- spark.Event{Type: spark.EventTransferClaimed, TransferID: "fake"}
	return nil
}

func (w *fakeWallet) TransferTokens(ctx context.Context, to, tokenID string, amount *big.Int) error {
	dest := w.net.wallet(to)
	w.net.mu.Lock()
	have, found := w.tokens[tokenID]
	if !found || have.Cmp(amount) < 0 {
		w.net.mu.Unlock()
		return fmt.Errorf("insufficient tokens")
	}
	have.Sub(have, amount)
	if _, ok := dest.tokens[tokenID]; !ok {
		dest.tokens[tokenID] = big.NewInt(0)
	}
	dest.tokens[tokenID].Add(dest.tokens[tokenID], amount)
	w.net.mu.Unlock()
	dest.events <- spark.Event{Type: spark.EventBalanceUpdated}
	return nil
}

func (w *fakeWallet) Events() <-chan spark.Event { return w.events }
func (w *fakeWallet) Close() error               { return nil }

func fastConfig() Config {
	return Config{
		Payments:     2,
		SatsAmount:   1000,
		TokenID:      "btkn1test",
		TestMnemonic: "test-wallet",
		PinAddress:   "pin-wallet",
		PinMnemonic:  "pin-wallet",
		SendGap:      time.Millisecond,
		SettleWait:   50 * time.Millisecond,
		PollEvery:    5 * time.Millisecond,
	}
}

func TestHybridRun(t *testing.T) {
	net := newFakeNetwork()
	test := net.wallet("test-wallet")
	test.sats = 10_000
	test.tokens["btkn1test"] = big.NewInt(10_000_000)

	var out bytes.Buffer
	h := New(net, fastConfig(), &out)
	report, err := h.Run(context.Background(), Hybrid)
	require.NoError(t, err)

	require.Equal(t, 2, report.Sats.Detected, "sats must arrive via events")
	require.Equal(t, 2, report.Tokens.Detected, "tokens must arrive via polling")
	pin := net.wallet("pin-wallet")
	require.Equal(t, int64(2000), pin.sats)
}

func TestSatsRaceRun(t *testing.T) {
	net := newFakeNetwork()
	net.wallet("test-wallet").sats = 10_000

	var out bytes.Buffer
	h := New(net, fastConfig(), &out)
	report, err := h.Run(context.Background(), SatsRace)
	require.NoError(t, err)

	require.Equal(t, 2, report.Sats.Detected)
	require.Equal(t, 0, report.Tokens.Sent, "race sends no tokens")
	require.Equal(t, 2, report.EventWins+report.PollWins, "every payment gets a winner")
}

func TestUnknownStrategyRejected(t *testing.T) {
	h := New(newFakeNetwork(), fastConfig(), &bytes.Buffer{})
	_, err := h.Run(context.Background(), Strategy("bogus"))
	require.Error(t, err)
}

func TestPreSweep(t *testing.T) {
	net := newFakeNetwork()
	pin := net.wallet("pin-m")
	pin.sats = 4000
	pin.tokens["btkn1test"] = big.NewInt(2_000_000)

	var out bytes.Buffer
	pins := []bepsi.SparkPinConfig{{Pin: 516, Mnemonic: "pin-m", Sats: 1000}}
	swept := PreSweep(context.Background(), net, pins, "test-wallet", &out)
	require.Equal(t, int64(4000), swept)
	require.Equal(t, int64(4000), net.wallet("test-wallet").sats)
	require.Equal(t, int64(0), pin.sats)
	require.Equal(t, 0, pin.tokens["btkn1test"].Sign())
}
