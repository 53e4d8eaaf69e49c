package domain

import (
	"fmt"
	"strings"
	"time"
)

// Transaction is a single money transfer between two accounts. It is the edge
// of the transaction multigraph: several transactions may exist between the
// same ordered pair of accounts. Immutable once ingested.
type Transaction struct {
	ID         string    `json:"transaction_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Amount     float64   `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransactionRecord is the wire form of a transaction as produced by the
// ingestion layer. The timestamp stays a string so a malformed row can be
// skipped with a warning instead of failing the whole decode.
type TransactionRecord struct {
	ID         string  `json:"transaction_id"`
	SenderID   string  `json:"sender_id"`
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
	Timestamp  string  `json:"timestamp"`
}

// timestampLayouts are the accepted ledger timestamp formats, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a ledger timestamp in any of the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ToTransaction validates a record and converts it to a typed Transaction.
func (r *TransactionRecord) ToTransaction() (Transaction, error) {
	if r.ID == "" {
		return Transaction{}, fmt.Errorf("transaction_id is required")
	}
	if r.SenderID == "" || r.ReceiverID == "" {
		return Transaction{}, fmt.Errorf("transaction %s: sender_id and receiver_id are required", r.ID)
	}
	if r.Amount < 0 {
		return Transaction{}, fmt.Errorf("transaction %s: amount must be non-negative", r.ID)
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", r.ID, err)
	}
	return Transaction{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Amount:     r.Amount,
		Timestamp:  ts,
	}, nil
}
