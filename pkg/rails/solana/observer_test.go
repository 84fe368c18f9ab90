package solana

import (
	"context"
	"strconv"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/stretchr/testify/require"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

const treasuryAddr = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"

type fakeSink struct {
	mu   sync.Mutex
	paid []bepsi.PaymentCandidate
}

func (s *fakeSink) Paid(c bepsi.PaymentCandidate) {
	s.mu.Lock()
	s.paid = append(s.paid, c)
	s.mu.Unlock()
}

type fakeFetcher struct {
	result *rpc.GetTransactionResult
	calls  int
}

func (f *fakeFetcher) GetTransaction(ctx context.Context, sig solanago.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.calls++
	return f.result, nil
}

func testObserver(t *testing.T) (*Observer, *fakeSink, *fakeFetcher) {
	t.Helper()
	conf := bepsi.Config{}
	conf.Solana.TreasuryAddress = treasuryAddr
	sink := &fakeSink{}
	o, err := NewObserver(conf, sink)
	require.NoError(t, err)
	fetcher := &fakeFetcher{}
	o.fetcher = fetcher
	return o, sink, fetcher
}

// usdcDelta builds a transaction result where the treasury's USDC
// balance moved from pre to post raw units.
func usdcDelta(o *Observer, pre, post uint64) *rpc.GetTransactionResult {
	owner := o.treasury
	balance := func(raw uint64) []rpc.TokenBalance {
		return []rpc.TokenBalance{{
			Mint:  o.mint,
			Owner: &owner,
			UiTokenAmount: &rpc.UiTokenAmount{
				Amount:   strconv.FormatUint(raw, 10),
				Decimals: 6,
			},
		}}
	}
	return &rpc.GetTransactionResult{
		Meta: &rpc.TransactionMeta{
			PreTokenBalances:  balance(pre),
			PostTokenBalances: balance(post),
		},
	}
}

func logResult(logs ...string) *ws.LogResult {
	res := &ws.LogResult{}
	res.Value.Logs = logs
	return res
}

func TestMemoSelectsSlot(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	fetcher.result = usdcDelta(o, 1_000_000, 6_000_000)

	o.handleLogs(context.Background(), logResult(
		"Program log: Instruction: Transfer",
		`Program log: Memo (len 13): "YVR-BEPSI:0:3"`,
	))

	require.Len(t, sink.paid, 1)
	require.Equal(t, 518, sink.paid[0].Pin)
	require.Equal(t, "USDC", sink.paid[0].Currency)
	require.InDelta(t, 5.0, sink.paid[0].Amount, 1e-9)
	require.Equal(t, treasuryAddr, sink.paid[0].Address)
}

func TestMissingMemoFallsBackToRandomPin(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	fetcher.result = usdcDelta(o, 0, 2_000_000)

	o.handleLogs(context.Background(), logResult("Program log: Instruction: Transfer"))

	require.Len(t, sink.paid, 1)
	require.Contains(t, bepsi.DefaultPins, sink.paid[0].Pin)
}

func TestUnmappedMemoFallsBackToRandomPin(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	fetcher.result = usdcDelta(o, 0, 2_000_000)

	o.handleLogs(context.Background(), logResult(`Program log: Memo (len 13): "YVR-BEPSI:0:9"`))

	require.Len(t, sink.paid, 1)
	require.Contains(t, bepsi.DefaultPins, sink.paid[0].Pin)
}

func TestBelowOneTokenRejected(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	fetcher.result = usdcDelta(o, 0, 999_999)

	o.handleLogs(context.Background(), logResult(`Program log: Memo (len 13): "YVR-BEPSI:0:1"`))
	require.Empty(t, sink.paid)
}

func TestOutboundTransferIgnored(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	fetcher.result = usdcDelta(o, 6_000_000, 1_000_000)

	o.handleLogs(context.Background(), logResult(`Program log: Memo (len 13): "YVR-BEPSI:0:1"`))
	require.Empty(t, sink.paid)
}

func TestFailedTransactionIgnored(t *testing.T) {
	o, sink, fetcher := testObserver(t)
	res := logResult(`Program log: Memo (len 13): "YVR-BEPSI:0:1"`)
	res.Value.Err = map[string]any{"InstructionError": []any{}}

	o.handleLogs(context.Background(), res)
	require.Empty(t, sink.paid)
	require.Equal(t, 0, fetcher.calls, "failed transactions must not be fetched")
}

func TestParseMemoSelection(t *testing.T) {
	sel, ok := parseMemoSelection([]string{
		"Program Memo111 invoke [1]",
		`Program log: Memo (len 13): "YVR-BEPSI:0:6"`,
	})
	require.True(t, ok)
	require.Equal(t, 6, sel)

	_, ok = parseMemoSelection([]string{`Program log: Memo (len 5): "hello"`})
	require.False(t, ok)

	_, ok = parseMemoSelection([]string{`Program log: Memo (len 13): "YVR-BEPSI:0:6" trailing`})
	require.False(t, ok, "garbage after the closing quote is not a selection memo")
}
