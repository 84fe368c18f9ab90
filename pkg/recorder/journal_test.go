package recorder

import (
	"testing"
	"time"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

func TestJournal(t *testing.T) {
	j, err := NewJournal(":memory:")
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer j.Close()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	j.Record(bepsi.PaymentCandidate{Pin: 516, Item: "green", Currency: "sats", Amount: 1000, Method: "spark", At: at})
	j.Record(bepsi.PaymentCandidate{Pin: 524, Item: "cherry", Currency: "discord", Method: "discord", At: at.Add(time.Minute)})

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 purchases, got %d", len(got))
	}
	// newest first
	if got[0].Pin != 524 || got[1].Pin != 516 {
		t.Fatalf("wrong order: %+v", got)
	}
	if got[1].Amount != 1000 || got[1].Currency != "sats" {
		t.Fatalf("wrong row: %+v", got[1])
	}
	// discord trigger has no monetary amount
	if got[0].Amount != 0 {
		t.Fatalf("discord amount should be 0, got %v", got[0].Amount)
	}
}
