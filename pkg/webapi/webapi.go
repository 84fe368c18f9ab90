package webapi

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// HeartbeatInterval between SSE comment frames. Keeps idle proxies
// from reaping the payment feed.
const HeartbeatInterval = 30 * time.Second

// WebAPI serves the kiosk surface: the live payment feed the display
// listens on, QR codes for the per-slot Spark addresses, and a health
// probe. It subscribes to the bus for payment events and fans them out
// to every connected SSE client.
type WebAPI struct {
	srv       *http.Server
	bind      string
	port      string
	addresses map[int]string // pin -> spark address

	rec     chan bepsi.Message
	mu      sync.Mutex
	clients map[chan []byte]bool
}

func NewWebAPI(conf bepsi.Config) *WebAPI {
	addresses := make(map[int]string)
	for _, p := range conf.Spark.Pins {
		addresses[p.Pin] = p.Address
	}
	return &WebAPI{
		bind:      conf.WebAPI.Bind,
		port:      conf.WebAPI.Port,
		addresses: addresses,
		rec:       make(chan bepsi.Message, 100),
		clients:   make(map[chan []byte]bool),
	}
}

// Implements bepsi.MessageSubscriber
func (t *WebAPI) GetChan() chan bepsi.Message {
	return t.rec
}

// Implements conductor.Service
func (t *WebAPI) Run(started, stopped chan bool, stop chan context.Context) error {
	go func() {
		t.srv = &http.Server{Addr: t.bind + ":" + t.port, Handler: t.router()}
		go func() {
			if err := t.srv.ListenAndServe(); err != http.ErrServerClosed {
				log.Fatalf("HTTP server ListenAndServe: %v", err)
			}
		}()

		pumpStop := make(chan bool)
		go t.pump(pumpStop)

		started <- true
		ctx := <-stop
		close(pumpStop)
		t.srv.Shutdown(ctx)
		stopped <- true
	}()
	return nil
}

func (t *WebAPI) router() *httprouter.Router {
	mux := httprouter.New()

	// GET /payment-events -> SSE stream of payment notifications
	mux.GET("/payment-events", t.paymentEvents)

	// GET /slot/:pin/qr.png -> QR code of the slot's spark address
	mux.GET("/slot/:pin/qr.png", t.slotQR)

	// GET /health -> liveness probe
	mux.GET("/health", t.health)

	return mux
}

// pump fans bus messages out to the connected SSE clients and emits
// the keepalive heartbeat.
func (t *WebAPI) pump(stop chan bool) {
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	rec := t.rec
	for {
		select {
		case <-stop:
			return
		case msg, ok := <-rec:
			if !ok {
				// unregistered by the bus; heartbeats continue
				rec = nil
				continue
			}
			t.broadcast([]byte(fmt.Sprintf("data: %s\n\n", msg.Message)))
		case <-heartbeat.C:
			t.broadcast([]byte(": heartbeat\n\n"))
		}
	}
}

func (t *WebAPI) broadcast(frame []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for ch := range t.clients {
		select {
		case ch <- frame:
		default:
			// client stopped draining; drop it
			delete(t.clients, ch)
			close(ch)
		}
	}
}

func (t *WebAPI) addClient() chan []byte {
	ch := make(chan []byte, 16)
	t.mu.Lock()
	t.clients[ch] = true
	t.mu.Unlock()
	return ch
}

func (t *WebAPI) removeClient(ch chan []byte) {
	t.mu.Lock()
	if t.clients[ch] {
		delete(t.clients, ch)
		close(ch)
	}
	t.mu.Unlock()
}

func (t *WebAPI) paymentEvents(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendErrorResponse(w, 500, "internal", "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := t.addClient()
	defer t.removeClient(ch)

	fmt.Fprint(w, "data: {\"event\":\"connected\"}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, open := <-ch:
			if !open {
				return
			}
			w.Write(frame)
			flusher.Flush()
		}
	}
}

func (t *WebAPI) slotQR(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := strconv.Atoi(p.ByName("pin"))
	if err != nil {
		sendErrorResponse(w, 400, "bad-request", "bad request: pin must be a number")
		return
	}
	address, found := t.addresses[pin]
	if !found || address == "" {
		sendErrorResponse(w, 404, "not-found", fmt.Sprintf("no spark address for pin %d", pin))
		return
	}
	png, err := qrcode.Encode(address, qrcode.Medium, 256)
	if err != nil {
		sendErrorResponse(w, 500, "internal", fmt.Sprintf("generating QR code: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(png)
}

func (t *WebAPI) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	sendResponse(w, map[string]string{"status": "ok"})
}
