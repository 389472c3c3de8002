package loyalty

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
	"github.com/noah-isme/backend-blinds/internal/obs"
)

const defaultHistoryLimit = 50

// Service applies award, redeem and refund operations to the ledger. Guests
// (empty user id) are ignored by every operation.
type Service struct {
	Store        LedgerStore
	Rates        Rates
	HistoryLimit int
	Now          func() time.Time
}

// Award credits the points earned for orderTotal. A repeated award for the
// same order is treated as already applied and returns zero.
func (s *Service) Award(ctx context.Context, userID string, orderTotal float64, orderID string) (float64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}
	if math.IsNaN(orderTotal) || math.IsInf(orderTotal, 0) {
		return 0, fmt.Errorf("loyalty: invalid order total %v", orderTotal)
	}
	earned := s.Rates.Earned(numeric.Dec(orderTotal))
	if !earned.IsPositive() {
		return 0, nil
	}
	entry := s.entry(EntryEarned, earned, orderID, fmt.Sprintf("Earned from order %s", orderID))
	if _, err := s.Store.ApplyDelta(ctx, userID, earned, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return 0, nil
		}
		return 0, err
	}
	record(EntryEarned, earned)
	return numeric.Float(earned), nil
}

// Redeem debits points for an order. The store rejects a debit larger than
// the balance with ErrInsufficientBalance. It returns the new balance.
func (s *Service) Redeem(ctx context.Context, userID string, points float64, orderID string) (float64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	userID = strings.TrimSpace(userID)
	amount := clampPoints(points)
	if userID == "" || !amount.IsPositive() {
		return 0, nil
	}
	entry := s.entry(EntryRedeemed, amount, orderID, fmt.Sprintf("Redeemed on order %s", orderID))
	balance, err := s.Store.ApplyDelta(ctx, userID, amount.Neg(), entry)
	if err != nil {
		return numeric.Float(balance), err
	}
	record(EntryRedeemed, amount)
	return numeric.Float(balance), nil
}

// Refund credits back points whose redemption was not followed by a durable
// order. Refunding the same order twice is a no-op.
func (s *Service) Refund(ctx context.Context, userID string, points float64, orderID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	amount := clampPoints(points)
	if userID == "" || !amount.IsPositive() {
		return nil
	}
	entry := s.entry(EntryRefunded, amount, orderID, fmt.Sprintf("Refunded for order %s", orderID))
	if _, err := s.Store.ApplyDelta(ctx, userID, amount, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			return nil
		}
		return err
	}
	record(EntryRefunded, amount)
	return nil
}

// Balance returns the current balance for the user.
func (s *Service) Balance(ctx context.Context, userID string) (float64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(userID) == "" {
		return 0, nil
	}
	balance, err := s.Store.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return numeric.Float(balance), nil
}

// Account returns the balance and recent history.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	if err := s.ready(); err != nil {
		return Account{}, err
	}
	balance, err := s.Store.Balance(ctx, userID)
	if err != nil {
		return Account{}, err
	}
	limit := s.HistoryLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	history, err := s.Store.History(ctx, userID, limit)
	if err != nil {
		return Account{}, err
	}
	return Account{UserID: userID, Balance: numeric.Float(balance), History: history}, nil
}

// MaxRedeemable is the largest redemption allowed for the user on total.
func (s *Service) MaxRedeemable(ctx context.Context, userID string, total float64) (float64, error) {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return numeric.Float(s.Rates.MaxRedeemable(numeric.Dec(balance), numeric.Dec(total))), nil
}

func (s *Service) entry(t EntryType, points decimal.Decimal, orderID, description string) Entry {
	return Entry{
		Type:        t,
		Points:      numeric.Float(points),
		OrderID:     orderID,
		Description: description,
		Timestamp:   s.now().UTC(),
	}
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("loyalty service not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func clampPoints(points float64) decimal.Decimal {
	if math.IsNaN(points) || math.IsInf(points, 0) || points <= 0 {
		return decimal.Zero
	}
	return numeric.FloorTenth(numeric.Dec(points))
}

func record(t EntryType, points decimal.Decimal) {
	if obs.LoyaltyPointsTotal != nil {
		obs.LoyaltyPointsTotal.WithLabelValues(string(t)).Add(numeric.Float(points))
	}
}
