package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientBalance is returned when a debit would take the balance below zero.
	ErrInsufficientBalance = errors.New("insufficient points balance")
	// ErrDuplicateEntry is returned when an entry with the same order and type already exists.
	ErrDuplicateEntry = errors.New("ledger entry already recorded")
)

// EntryType classifies ledger history rows.
type EntryType string

const (
	EntryEarned   EntryType = "earned"
	EntryRedeemed EntryType = "redeemed"
	EntryRefunded EntryType = "refunded"
)

// Entry is one append-only history row. Points is always positive; the
// direction is implied by Type.
type Entry struct {
	Type        EntryType `json:"type"`
	Points      float64   `json:"points"`
	OrderID     string    `json:"orderId"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// dedupKey identifies an entry for idempotency. Entries without an order id
// are never deduplicated.
func (e Entry) dedupKey() string {
	if e.OrderID == "" {
		return ""
	}
	return e.OrderID + "|" + string(e.Type)
}

// Account is the per-user view returned to the shopper.
type Account struct {
	UserID  string  `json:"userId"`
	Balance float64 `json:"pointsBalance"`
	History []Entry `json:"history"`
}

// LedgerStore is the transactional boundary for balance changes. ApplyDelta
// must apply the delta and append the entry atomically, reject debits beyond
// the current balance with ErrInsufficientBalance and reject a repeated
// (orderId, type) pair with ErrDuplicateEntry.
type LedgerStore interface {
	ApplyDelta(ctx context.Context, userID string, delta decimal.Decimal, entry Entry) (decimal.Decimal, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}
