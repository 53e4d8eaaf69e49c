package domain

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 1, 15, 8, 30, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input string
	}{
		{"RFC3339", "2026-01-15T08:30:00Z"},
		{"SpaceSeparated", "2026-01-15 08:30:00"},
		{"TSeparatedNoZone", "2026-01-15T08:30:00"},
		{"Whitespace", "  2026-01-15 08:30:00  "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, err := ParseTimestamp(tc.input)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !ts.Equal(want) {
				t.Errorf("expected %v, got %v", want, ts)
			}
		})
	}

	t.Run("DateOnly", func(t *testing.T) {
		ts, err := ParseTimestamp("2026-01-15")
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if ts.Hour() != 0 || ts.Day() != 15 {
			t.Errorf("unexpected date-only parse: %v", ts)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		if _, err := ParseTimestamp("15/01/2026"); err == nil {
			t.Fatal("expected an error for an unsupported layout")
		}
	})
}

func TestToTransaction(t *testing.T) {
	valid := TransactionRecord{
		ID: "t1", SenderID: "A", ReceiverID: "B", Amount: 50, Timestamp: "2026-01-15 08:30:00",
	}

	t.Run("Valid", func(t *testing.T) {
		tx, err := valid.ToTransaction()
		if err != nil {
			t.Fatalf("conversion failed: %v", err)
		}
		if tx.ID != "t1" || tx.SenderID != "A" || tx.Amount != 50 {
			t.Errorf("unexpected transaction: %+v", tx)
		}
	})

	t.Run("MissingID", func(t *testing.T) {
		r := valid
		r.ID = ""
		if _, err := r.ToTransaction(); err == nil {
			t.Fatal("expected an error for missing transaction_id")
		}
	})

	t.Run("MissingParties", func(t *testing.T) {
		r := valid
		r.ReceiverID = ""
		if _, err := r.ToTransaction(); err == nil {
			t.Fatal("expected an error for missing receiver_id")
		}
	})

	t.Run("NegativeAmount", func(t *testing.T) {
		r := valid
		r.Amount = -1
		if _, err := r.ToTransaction(); err == nil {
			t.Fatal("expected an error for negative amount")
		}
	})
}
