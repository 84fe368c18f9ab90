package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// The Spark SDK only ships as a Node library, so production runs a
// small sidecar next to this process that holds the wallets and
// exposes them over HTTP plus a websocket event stream. BridgeOpener
// is the Go side of that bridge.
type BridgeOpener struct {
	baseURL string
	client  *http.Client
}

func NewBridgeOpener(baseURL string) *BridgeOpener {
	return &BridgeOpener{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type openRequest struct {
	Mnemonic string `json:"mnemonic"`
}

type openResponse struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// Open implements Opener.
func (b *BridgeOpener) Open(ctx context.Context, mnemonic string) (Wallet, error) {
	var out openResponse
	if err := b.post(ctx, "/wallets", openRequest{Mnemonic: mnemonic}, &out); err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}
	w := &bridgeWallet{
		opener:  b,
		id:      out.ID,
		address: out.Address,
		events:  make(chan Event, 16),
		done:    make(chan struct{}),
	}
	go w.streamEvents()
	return w, nil
}

func (b *BridgeOpener) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %s for %s", resp.Status, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (b *BridgeOpener) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bridge returned %s for %s", resp.Status, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type bridgeWallet struct {
	opener  *BridgeOpener
	id      string
	address string
	events  chan Event
	done    chan struct{}
}

func (w *bridgeWallet) Address() string { return w.address }

type balanceResponse struct {
	Sats   int64 `json:"sats"`
	Tokens map[string]struct {
		Balance  string `json:"balance"`
		Decimals int    `json:"decimals"`
	} `json:"tokens"`
}

func (w *bridgeWallet) Balance(ctx context.Context) (Balance, error) {
	var out balanceResponse
	if err := w.opener.get(ctx, "/wallets/"+w.id+"/balance", &out); err != nil {
		return Balance{}, err
	}
	bal := Balance{Sats: out.Sats, Tokens: make(map[string]TokenBalance)}
	for id, t := range out.Tokens {
		raw, ok := new(big.Int).SetString(t.Balance, 10)
		if !ok {
			return Balance{}, fmt.Errorf("bad token balance %q for %s", t.Balance, id)
		}
		bal.Tokens[id] = TokenBalance{Balance: raw, Decimals: t.Decimals}
	}
	return bal, nil
}

func (w *bridgeWallet) TransferSats(ctx context.Context, to string, sats int64) error {
	return w.opener.post(ctx, "/wallets/"+w.id+"/transfer", map[string]interface{}{
		"to":   to,
		"sats": sats,
	}, nil)
}

func (w *bridgeWallet) TransferTokens(ctx context.Context, to, tokenID string, amount *big.Int) error {
	return w.opener.post(ctx, "/wallets/"+w.id+"/transfer-tokens", map[string]interface{}{
		"to":     to,
		"token":  tokenID,
		"amount": amount.String(),
	}, nil)
}

func (w *bridgeWallet) Events() <-chan Event { return w.events }

func (w *bridgeWallet) Close() error {
	close(w.done)
	return nil
}

// streamEvents keeps the sidecar's event websocket open for the life
// of the wallet, reconnecting on a fixed delay like every other rail.
func (w *bridgeWallet) streamEvents() {
	wsURL := strings.Replace(w.opener.baseURL, "http", "ws", 1) + "/wallets/" + w.id + "/events"
	for {
		select {
		case <-w.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			log.Printf("Spark: bridge event stream dial: %v", err)
			w.deliver(Event{Type: EventStreamDisconnected, Reason: err.Error()})
			if !w.sleep(RetryDelay) {
				return
			}
			continue
		}
		w.deliver(Event{Type: EventStreamConnected})

		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				conn.Close()
				w.deliver(Event{Type: EventStreamDisconnected, Reason: err.Error()})
				break
			}
			w.deliver(ev)
		}

		if !w.sleep(RetryDelay) {
			return
		}
	}
}

func (w *bridgeWallet) deliver(ev Event) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *bridgeWallet) sleep(d time.Duration) bool {
	select {
	case <-w.done:
		return false
	case <-time.After(d):
		return true
	}
}
