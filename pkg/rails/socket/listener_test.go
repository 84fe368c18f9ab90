package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type fakeSink struct {
	mu   sync.Mutex
	paid []bepsi.PaymentCandidate
}

func (s *fakeSink) Paid(c bepsi.PaymentCandidate) {
	s.mu.Lock()
	s.paid = append(s.paid, c)
	s.mu.Unlock()
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.paid)
}

func TestParsePayment(t *testing.T) {
	pin, amount, err := parsePayment("516-1000")
	require.NoError(t, err)
	require.Equal(t, 516, pin)
	require.Equal(t, float64(1000), amount)

	pin, amount, err = parsePayment(" 524-1500.5\n")
	require.NoError(t, err)
	require.Equal(t, 524, pin)
	require.Equal(t, 1500.5, amount)

	_, _, err = parsePayment("516")
	require.Error(t, err)
	_, _, err = parsePayment("abc-1000")
	require.Error(t, err)
	_, _, err = parsePayment("516-abc")
	require.Error(t, err)
}

func TestHandleMessage(t *testing.T) {
	sink := &fakeSink{}
	l := NewLightning(bepsi.Config{}, sink)

	l.handleMessage("517-2100")
	require.Equal(t, 1, sink.count())
	require.Equal(t, 517, sink.paid[0].Pin)
	require.Equal(t, "sats", sink.paid[0].Currency)
	require.Equal(t, "lightning", sink.paid[0].Method)

	// the relay settled the payment, so frames are trusted as-is:
	// a pin outside the configured set still records as a payment
	l.handleMessage("999-2100")
	require.Equal(t, 2, sink.count())
	require.Equal(t, 999, sink.paid[1].Pin)

	// garbage frames are dropped
	l.handleMessage("hello")
	require.Equal(t, 2, sink.count())
}

func TestReconnectCadencePerRail(t *testing.T) {
	require.Equal(t, ArkadeReconnect, NewArkade(bepsi.Config{}, &fakeSink{}).reconnect)
	require.Equal(t, LightningReconnect, NewLightning(bepsi.Config{}, &fakeSink{}).reconnect)
}

func TestStreamDeliversFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("528-5000"))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &fakeSink{}
	conf := bepsi.Config{}
	conf.Arkade.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	l := NewArkade(conf, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = l.stream(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 528, sink.paid[0].Pin)
	require.Equal(t, float64(5000), sink.paid[0].Amount)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop on context cancel")
	}
}
