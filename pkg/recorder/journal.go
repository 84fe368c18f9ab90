package recorder

import (
	"database/sql"
	"log"

	_ "github.com/mattn/go-sqlite3"

	bepsi "github.com/dctrlwtf/bepsi/pkg"
)

/*
Journal keeps a local copy of every sale in sqlite, so the kiosk
retains its history when the nocodb endpoint is unreachable. It is
bookkeeping only: like the remote recorder, failures are logged and
swallowed.
*/
type Journal struct {
	db *sql.DB
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS purchases (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pin INTEGER NOT NULL,
	item TEXT NOT NULL,
	currency TEXT NOT NULL,
	amount REAL,
	payment_method TEXT,
	created_at DATETIME NOT NULL
);
`

func NewJournal(dbFile string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record implements bepsi.SaleRecorder.
func (j *Journal) Record(c bepsi.PaymentCandidate) {
	var amount interface{}
	if c.Amount > 0 {
		amount = c.Amount
	}
	_, err := j.db.Exec(
		"INSERT INTO purchases (pin, item, currency, amount, payment_method, created_at) VALUES (?,?,?,?,?,?)",
		c.Pin, c.Item, c.Currency, amount, c.Method, c.At.UTC())
	if err != nil {
		log.Printf("Journal: insert purchase: %v", err)
	}
}

// Recent returns the latest n purchases, newest first.
func (j *Journal) Recent(n int) ([]bepsi.PaymentCandidate, error) {
	rows, err := j.db.Query(
		"SELECT pin, item, currency, COALESCE(amount, 0), COALESCE(payment_method, ''), created_at FROM purchases ORDER BY id DESC LIMIT ?", n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []bepsi.PaymentCandidate
	for rows.Next() {
		var c bepsi.PaymentCandidate
		if err := rows.Scan(&c.Pin, &c.Item, &c.Currency, &c.Amount, &c.Method, &c.At); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
