package recorder

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"time"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

// NocoDB appends confirmed sales to the shared purchases table.
// Failures are logged and swallowed, never retried: bookkeeping must
// never block or delay a dispense.
type NocoDB struct {
	URL    string
	Token  string
	client *http.Client
}

func NewNocoDB(url, token string) *NocoDB {
	return &NocoDB{
		URL:    url,
		Token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type purchaseRow struct {
	Currency      string   `json:"currency"`
	Amount        *float64 `json:"amount,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
	Timestamp     string   `json:"timestamp"`
	Item          string   `json:"item"`
}

// Record implements bepsi.SaleRecorder.
func (n *NocoDB) Record(c bepsi.PaymentCandidate) {
	row := purchaseRow{
		Currency:      c.Currency,
		PaymentMethod: c.Method,
		Timestamp:     c.At.UTC().Format(time.RFC3339),
		Item:          c.Item,
	}
	if c.Amount > 0 {
		amt := c.Amount
		row.Amount = &amt
	}

	body, err := json.Marshal(row)
	if err != nil {
		log.Printf("Recorder: marshal purchase: %v", err)
		return
	}
	req, err := http.NewRequest("POST", n.URL, bytes.NewReader(body))
	if err != nil {
		log.Printf("Recorder: build request: %v", err)
		return
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xc-token", n.Token)

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("Recorder: POST to nocodb failed: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("Recorder: nocodb returned %s for %s purchase", resp.Status, c.Currency)
	}
}
