package solana

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"regexp"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/shopspring/decimal"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// ReconnectDelay before reopening the log subscription websocket.
const ReconnectDelay = 5 * time.Second

// Payments carry the slot selection in an SPL memo. Anything paying
// into the treasury's token account without one still vends, just not
// deterministically.
var memoPattern = regexp.MustCompile(`^Program log: Memo \(len \d+\): "YVR-BEPSI:0:(\d+)"$`)

// TransactionFetcher is the slice of the Solana RPC the observer needs.
// *rpc.Client satisfies it.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Observer watches the treasury's USDC associated token account via a
// log subscription. Each mentioning transaction is fetched and the
// treasury's token balance delta is the payment amount; the memo code
// picks the slot.
type Observer struct {
	treasury solana.PublicKey
	mint     solana.PublicKey
	ata      solana.PublicKey
	coin     bepsi.Stablecoin
	network  bepsi.Network
	mapper   bepsi.SelectionMapper
	sink     bepsi.PaymentSink
	fetcher  TransactionFetcher

	retryDelay time.Duration
}

func NewObserver(conf bepsi.Config, sink bepsi.PaymentSink) (*Observer, error) {
	treasury, err := solana.PublicKeyFromBase58(conf.Solana.TreasuryAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid SOLANA_TREASURY_ADDRESS: %w", err)
	}
	network := bepsi.SVMNetworks()[0]
	coin := network.Stablecoins[0]
	mint, err := solana.PublicKeyFromBase58(coin.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid %s mint: %w", coin.Symbol, err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(treasury, mint)
	if err != nil {
		return nil, fmt.Errorf("deriving %s token account: %w", coin.Symbol, err)
	}
	return &Observer{
		treasury:   treasury,
		mint:       mint,
		ata:        ata,
		coin:       coin,
		network:    network,
		mapper:     bepsi.NewSelectionMapper(conf.Pins()),
		sink:       sink,
		fetcher:    rpc.New(network.RPC),
		retryDelay: ReconnectDelay,
	}, nil
}

// Implements conductor.Service
func (o *Observer) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		go o.watch(ctx)
		started <- true
		<-stop
		cancel()
		stopped <- true
	}()
	return nil
}

func (o *Observer) watch(ctx context.Context) {
	for {
		err := o.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Solana: log subscription lost (%v), reconnecting in %v", err, o.retryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.retryDelay):
		}
	}
}

func (o *Observer) stream(ctx context.Context) error {
	client, err := ws.Connect(ctx, o.network.RPCSubscriptions)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.LogsSubscribeMentions(o.ata, rpc.CommitmentConfirmed)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Printf("Solana: watching %s token account %s", o.coin.Symbol, o.ata)

	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			return err
		}
		o.handleLogs(ctx, got)
	}
}

func (o *Observer) handleLogs(ctx context.Context, res *ws.LogResult) {
	if res == nil || res.Value.Err != nil {
		return
	}

	delta, err := o.transferredAmount(ctx, res.Value.Signature)
	if err != nil {
		log.Printf("Solana: fetching transaction %s: %v", res.Value.Signature, err)
		return
	}
	if delta.Sign() <= 0 {
		// mention without an inbound transfer (outgoing, or an
		// unrelated instruction touching the account)
		return
	}

	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(o.coin.Decimals)), nil)
	amount := decimal.NewFromBigInt(delta, -int32(o.coin.Decimals))
	if delta.Cmp(min) < 0 {
		log.Printf("Solana: ignoring %s %s payment: below the 1-token minimum", amount.String(), o.coin.Symbol)
		return
	}

	selection, found := parseMemoSelection(res.Value.Logs)
	pin, mapped := o.mapper.Pin(selection)
	if !found {
		log.Printf("Solana: payment %s carries no slot memo, picked pin %d at random", res.Value.Signature, pin)
	} else if !mapped {
		log.Printf("Solana: memo selection %d has no slot, picked pin %d at random", selection, pin)
	}

	amt, _ := amount.Float64()
	o.sink.Paid(bepsi.PaymentCandidate{
		Pin:      pin,
		Currency: o.coin.Symbol,
		Amount:   amt,
		Method:   o.network.Name,
		Address:  o.treasury.String(),
		At:       time.Now(),
	})
}

// transferredAmount returns the raw-unit increase of the treasury's
// token balance in the given transaction.
func (o *Observer) transferredAmount(ctx context.Context, sig solana.Signature) (*big.Int, error) {
	maxVersion := uint64(0)
	out, err := o.fetcher.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, err
	}
	if out == nil || out.Meta == nil {
		return nil, fmt.Errorf("transaction meta unavailable")
	}

	pre := o.ownBalance(out.Meta.PreTokenBalances)
	post := o.ownBalance(out.Meta.PostTokenBalances)
	return new(big.Int).Sub(post, pre), nil
}

func (o *Observer) ownBalance(balances []rpc.TokenBalance) *big.Int {
	for _, tb := range balances {
		if !tb.Mint.Equals(o.mint) {
			continue
		}
		if tb.Owner == nil || !tb.Owner.Equals(o.treasury) {
			continue
		}
		if tb.UiTokenAmount == nil {
			continue
		}
		raw, ok := new(big.Int).SetString(tb.UiTokenAmount.Amount, 10)
		if !ok {
			continue
		}
		return raw
	}
	return big.NewInt(0)
}

// parseMemoSelection scans the transaction logs for the vending memo
// and returns the slot selection it names.
func parseMemoSelection(logs []string) (int, bool) {
	for _, line := range logs {
		m := memoPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sel, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return sel, true
	}
	return -1, false
}
