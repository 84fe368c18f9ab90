package socket

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// Per-rail reconnect cadence. Arkade drops often and comes back fast;
// the lnbits relay rate-limits reconnections, so it gets a long fuse.
const (
	ArkadeReconnect    = 1 * time.Second
	LightningReconnect = 60 * time.Second
	PingInterval       = 30 * time.Second
)

// Listener consumes a push websocket that emits pre-resolved payments
// as "<pin>-<amount>" text frames. The upstream relay already did the
// invoice or vtxo matching, so every parseable frame is a settled
// payment and is forwarded as-is.
type Listener struct {
	rail      string
	url       string
	sink      bepsi.PaymentSink
	reconnect time.Duration
	dial      func(ctx context.Context, url string) (*websocket.Conn, error)
}

func NewArkade(conf bepsi.Config, sink bepsi.PaymentSink) *Listener {
	return newListener(bepsi.RailArkade, conf.Arkade.URL, sink, ArkadeReconnect)
}

func NewLightning(conf bepsi.Config, sink bepsi.PaymentSink) *Listener {
	return newListener(bepsi.RailLightning, conf.Lightning.URL, sink, LightningReconnect)
}

func newListener(rail, url string, sink bepsi.PaymentSink, reconnect time.Duration) *Listener {
	return &Listener{
		rail:      rail,
		url:       url,
		sink:      sink,
		reconnect: reconnect,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Implements conductor.Service
func (l *Listener) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		go l.listen(ctx)
		started <- true
		<-stop
		cancel()
		stopped <- true
	}()
	return nil
}

func (l *Listener) listen(ctx context.Context) {
	for {
		err := l.stream(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("%s: socket closed (%v), reconnecting in %v", l.rail, err, l.reconnect)
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.reconnect):
		}
	}
}

func (l *Listener) stream(ctx context.Context) error {
	conn, err := l.dial(ctx, l.url)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		// unblocks ReadMessage on shutdown and keeps the
		// connection alive in between
		ping := time.NewTicker(PingInterval)
		defer ping.Stop()
		for {
			select {
			case <-cctx.Done():
				conn.Close()
				return
			case <-ping.C:
				conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			}
		}
	}()

	log.Printf("%s: connected to %s", l.rail, l.url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		l.handleMessage(string(data))
	}
}

func (l *Listener) handleMessage(msg string) {
	pin, amount, err := parsePayment(msg)
	if err != nil {
		log.Printf("%s: ignoring frame %q: %v", l.rail, msg, err)
		return
	}
	l.sink.Paid(bepsi.PaymentCandidate{
		Pin:      pin,
		Currency: "sats",
		Amount:   amount,
		Method:   l.rail,
		At:       time.Now(),
	})
}

// parsePayment splits a "<pin>-<amount>" frame.
func parsePayment(msg string) (pin int, amount float64, err error) {
	pinStr, amtStr, found := strings.Cut(strings.TrimSpace(msg), "-")
	if !found {
		return 0, 0, fmt.Errorf("not a pin-amount frame")
	}
	pin, err = strconv.Atoi(pinStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad pin %q", pinStr)
	}
	amount, err = strconv.ParseFloat(amtStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad amount %q", amtStr)
	}
	return pin, amount, nil
}
