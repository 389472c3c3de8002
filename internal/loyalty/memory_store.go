package loyalty

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
)

type memoryAccount struct {
	tenths  int64
	history []Entry
	seen    map[string]struct{}
}

// MemoryStore is a process-local LedgerStore used in tests and single node setups.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: map[string]*memoryAccount{}}
}

func (s *MemoryStore) account(userID string) *memoryAccount {
	if s.accounts == nil {
		s.accounts = map[string]*memoryAccount{}
	}
	acc, ok := s.accounts[userID]
	if !ok {
		acc = &memoryAccount{seen: map[string]struct{}{}}
		s.accounts[userID] = acc
	}
	return acc
}

// ApplyDelta implements LedgerStore.
func (s *MemoryStore) ApplyDelta(_ context.Context, userID string, delta decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.account(userID)
	key := entry.dedupKey()
	if key != "" {
		if _, dup := acc.seen[key]; dup {
			return numeric.FromTenths(acc.tenths), ErrDuplicateEntry
		}
	}
	next := acc.tenths + numeric.Tenths(delta)
	if next < 0 {
		return numeric.FromTenths(acc.tenths), ErrInsufficientBalance
	}
	acc.tenths = next
	if key != "" {
		acc.seen[key] = struct{}{}
	}
	acc.history = append([]Entry{entry}, acc.history...)
	return numeric.FromTenths(acc.tenths), nil
}

// Balance implements LedgerStore.
func (s *MemoryStore) Balance(_ context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return numeric.FromTenths(s.account(userID).tenths), nil
}

// History implements LedgerStore, newest first.
func (s *MemoryStore) History(_ context.Context, userID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := s.account(userID).history
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return append([]Entry(nil), history...), nil
}
