package spark

import (
	"context"
	"math/big"
)

// EventType is a wallet stream notification kind.
type EventType string

const (
	// EventTransferClaimed fires when an incoming native transfer has
	// been claimed by the wallet. Low-latency and reliable enough to be
	// the sole sats detection path.
	EventTransferClaimed EventType = "transfer:claimed"
	// EventBalanceUpdated is the token-side push notification. Too
	// unreliable for production detection (see the benchmark harness);
	// only the experimental benchmark strategy listens for it.
	EventBalanceUpdated EventType = "balance:updated"

	EventStreamConnected    EventType = "stream:connected"
	EventStreamDisconnected EventType = "stream:disconnected"
)

// Event is one wallet stream notification.
type Event struct {
	Type       EventType `json:"type"`
	TransferID string    `json:"transferId,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// TokenBalance is a raw token holding. Balance is in base units; the
// decimal divisor comes from token config, not chain metadata.
type TokenBalance struct {
	Balance  *big.Int
	Decimals int
}

// Balance is a wallet's full holdings at one observation.
type Balance struct {
	Sats   int64
	Tokens map[string]TokenBalance // keyed by token identifier
}

// Wallet is the collaborator boundary around the Spark SDK. The
// observer treats it as a black box: fetch balances, move funds,
// consume stream events.
type Wallet interface {
	Address() string
	Balance(ctx context.Context) (Balance, error)
	TransferSats(ctx context.Context, to string, sats int64) error
	TransferTokens(ctx context.Context, to, tokenID string, amount *big.Int) error
	Events() <-chan Event
	Close() error
}

// Opener initializes a wallet from its mnemonic.
type Opener interface {
	Open(ctx context.Context, mnemonic string) (Wallet, error)
}
