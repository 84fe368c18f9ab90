package evm

import (
	"context"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// ReconnectDelay before redialing a chain's websocket endpoint.
const ReconnectDelay = 5 * time.Second

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Backend is the subset of the Ethereum RPC the observer uses.
// *ethclient.Client satisfies it; tests substitute their own.
type Backend interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

// DialFunc opens a Backend for one chain's subscription endpoint.
type DialFunc func(ctx context.Context, url string) (Backend, error)

func dialEthereum(ctx context.Context, url string) (Backend, error) {
	return ethclient.DialContext(ctx, url)
}

// Observer watches ERC-20 Transfer logs to the shared payment address
// on every configured EVM chain. All chains and all stablecoins pay
// into one address, so the slot selection rides in the amount itself:
// its last base-10 digit, in raw token units.
type Observer struct {
	address  common.Address
	networks []bepsi.Network
	mapper   bepsi.SelectionMapper
	sink     bepsi.PaymentSink

	dial       DialFunc
	retryDelay time.Duration
}

func NewObserver(conf bepsi.Config, sink bepsi.PaymentSink) *Observer {
	return &Observer{
		address:    common.HexToAddress(conf.EVM.PaymentAddress),
		networks:   bepsi.EVMNetworks(),
		mapper:     bepsi.NewSelectionMapper(conf.Pins()),
		sink:       sink,
		dial:       dialEthereum,
		retryDelay: ReconnectDelay,
	}
}

// Implements conductor.Service
func (o *Observer) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		for _, net := range o.networks {
			wg.Add(1)
			go func(n bepsi.Network) {
				defer wg.Done()
				o.watchNetwork(ctx, n)
			}(net)
		}
		started <- true
		<-stop
		cancel()
		wg.Wait()
		stopped <- true
	}()
	return nil
}

// watchNetwork keeps one chain's log subscription alive, redialing on
// a fixed delay whenever the stream drops.
func (o *Observer) watchNetwork(ctx context.Context, net bepsi.Network) {
	for {
		err := o.streamTransfers(ctx, net)
		if ctx.Err() != nil {
			return
		}
		log.Printf("EVM: %s subscription lost (%v), reconnecting in %v", net.Name, err, o.retryDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.retryDelay):
		}
	}
}

func (o *Observer) streamTransfers(ctx context.Context, net bepsi.Network) error {
	client, err := o.dial(ctx, net.RPCSubscriptions)
	if err != nil {
		return err
	}
	defer client.Close()

	contracts := make([]common.Address, 0, len(net.Stablecoins))
	for _, sc := range net.Stablecoins {
		contracts = append(contracts, common.HexToAddress(sc.Address))
	}
	query := ethereum.FilterQuery{
		Addresses: contracts,
		Topics: [][]common.Hash{
			{transferTopic},
			nil, // any sender
			{common.BytesToHash(common.LeftPadBytes(o.address.Bytes(), 32))},
		},
	}

	logs := make(chan types.Log, 16)
	sub, err := client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	log.Printf("EVM: watching %d stablecoin contracts on %s", len(contracts), net.Name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case lg := <-logs:
			o.handleLog(net, lg)
		}
	}
}

// handleLog applies the payment rules to one Transfer log: at least
// one whole token, and the last base-10 digit of the raw amount picks
// the slot.
func (o *Observer) handleLog(net bepsi.Network, lg types.Log) {
	if lg.Removed || len(lg.Topics) < 3 {
		return
	}
	var coin *bepsi.Stablecoin
	for i := range net.Stablecoins {
		if common.HexToAddress(net.Stablecoins[i].Address) == lg.Address {
			coin = &net.Stablecoins[i]
			break
		}
	}
	if coin == nil {
		return
	}

	value := new(big.Int).SetBytes(lg.Data)
	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(coin.Decimals)), nil)
	amount := decimal.NewFromBigInt(value, -int32(coin.Decimals))
	if value.Cmp(min) < 0 {
		log.Printf("EVM: ignoring %s %s payment on %s: below the 1-token minimum",
			amount.String(), coin.Symbol, net.Name)
		return
	}

	selection := int(new(big.Int).Mod(value, big.NewInt(10)).Int64())
	pin, mapped := o.mapper.Pin(selection)
	if !mapped {
		log.Printf("EVM: amount digit %d has no slot, picked pin %d at random", selection, pin)
	}

	amt, _ := amount.Float64()
	o.sink.Paid(bepsi.PaymentCandidate{
		Pin:      pin,
		Currency: coin.Symbol,
		Amount:   amt,
		Method:   net.Name,
		Address:  o.address.Hex(),
		At:       time.Now(),
	})
}
