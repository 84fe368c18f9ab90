package webapi

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

func testAPI() *WebAPI {
	conf := bepsi.Config{}
	conf.Spark.Pins = []bepsi.SparkPinConfig{
		{Pin: 516, Name: "green", Address: "sp1pin516", Mnemonic: "m", Sats: 1000},
	}
	return NewWebAPI(conf)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(testAPI().router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "application/json", res.Header.Get("Content-Type"))
}

func TestSlotQR(t *testing.T) {
	srv := httptest.NewServer(testAPI().router())
	defer srv.Close()

	res, err := http.Get(srv.URL + "/slot/516/qr.png")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "image/png", res.Header.Get("Content-Type"))

	res, err = http.Get(srv.URL + "/slot/999/qr.png")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, 404, res.StatusCode)

	res, err = http.Get(srv.URL + "/slot/abc/qr.png")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, 400, res.StatusCode)
}

func TestPaymentEventsStream(t *testing.T) {
	api := testAPI()
	srv := httptest.NewServer(api.router())
	defer srv.Close()

	stop := make(chan bool)
	defer close(stop)
	go api.pump(stop)

	res, err := http.Get(srv.URL + "/payment-events")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	reader := bufio.NewReader(res.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "data: {\"event\":\"connected\"}\n", line)

	// wait until the stream handler registered itself before sending
	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.clients) == 1
	}, time.Second, 10*time.Millisecond)

	api.rec <- bepsi.Message{
		EventType: bepsi.PAY_RECEIVED,
		Message:   []byte(`{"event":"payment_received","pin":516}`),
		ID:        "t1",
	}

	reader.ReadString('\n') // blank line after the connected frame
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "data: {\"event\":\"payment_received\",\"pin\":516}\n", line)
}

func TestBroadcastPrunesDeadClients(t *testing.T) {
	api := testAPI()
	ch := api.addClient()

	// fill the client buffer without draining
	for i := 0; i < cap(ch)+1; i++ {
		api.broadcast([]byte(": heartbeat\n\n"))
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Empty(t, api.clients, "stalled client should be dropped")
}

func TestPumpSurvivesBusUnregister(t *testing.T) {
	api := testAPI()
	ch := api.addClient()

	stop := make(chan bool)
	done := make(chan struct{})
	go func() { api.pump(stop); close(done) }()

	api.rec <- bepsi.Message{EventType: bepsi.PAY_RECEIVED, Message: []byte(`{"x":1}`)}
	require.Equal(t, "data: {\"x\":1}\n\n", string(<-ch))

	// the bus closes a subscriber's channel on unregister; the pump
	// must idle instead of flooding clients with zero-value messages
	close(api.rec)
	time.Sleep(20 * time.Millisecond)
	select {
	case frame := <-ch:
		t.Fatalf("unexpected frame after unregister: %q", frame)
	default:
	}
	api.mu.Lock()
	still := api.clients[ch]
	api.mu.Unlock()
	require.True(t, still, "connected clients survive the unregister")

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
}
