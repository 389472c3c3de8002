package loyalty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-blinds/internal/numeric"
)

// applyDeltaScript checks the dedup set and the balance, then increments and
// appends in one step. Balances are integer tenths of a point.
var applyDeltaScript = redis.NewScript(`
local balance = tonumber(redis.call("GET", KEYS[1]) or "0")
local delta = tonumber(ARGV[1])
if ARGV[2] ~= "" and redis.call("SISMEMBER", KEYS[3], ARGV[2]) == 1 then
	return {2, balance}
end
if balance + delta < 0 then
	return {1, balance}
end
local updated = redis.call("INCRBY", KEYS[1], delta)
if ARGV[2] ~= "" then
	redis.call("SADD", KEYS[3], ARGV[2])
end
redis.call("LPUSH", KEYS[2], ARGV[3])
return {0, updated}
`)

// RedisStore keeps balances, history and the dedup set in Redis.
type RedisStore struct {
	Client redis.UniversalClient
	Prefix string
}

func (s RedisStore) prefix() string {
	p := strings.TrimSpace(s.Prefix)
	if p == "" {
		p = "loyalty"
	}
	return p
}

func (s RedisStore) balanceKey(userID string) string {
	return fmt.Sprintf("%s:%s:balance", s.prefix(), userID)
}

func (s RedisStore) historyKey(userID string) string {
	return fmt.Sprintf("%s:%s:history", s.prefix(), userID)
}

func (s RedisStore) entriesKey(userID string) string {
	return fmt.Sprintf("%s:%s:entries", s.prefix(), userID)
}

// ApplyDelta implements LedgerStore.
func (s RedisStore) ApplyDelta(ctx context.Context, userID string, delta decimal.Decimal, entry Entry) (decimal.Decimal, error) {
	if s.Client == nil {
		return decimal.Zero, errors.New("loyalty: redis client not configured")
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return decimal.Zero, err
	}
	keys := []string{s.balanceKey(userID), s.historyKey(userID), s.entriesKey(userID)}
	res, err := applyDeltaScript.Run(ctx, s.Client, keys, numeric.Tenths(delta), entry.dedupKey(), string(payload)).Int64Slice()
	if err != nil {
		return decimal.Zero, err
	}
	if len(res) != 2 {
		return decimal.Zero, fmt.Errorf("loyalty: unexpected script reply %v", res)
	}
	balance := numeric.FromTenths(res[1])
	switch res[0] {
	case 0:
		return balance, nil
	case 1:
		return balance, ErrInsufficientBalance
	default:
		return balance, ErrDuplicateEntry
	}
}

// Balance implements LedgerStore.
func (s RedisStore) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s.Client == nil {
		return decimal.Zero, errors.New("loyalty: redis client not configured")
	}
	tenths, err := s.Client.Get(ctx, s.balanceKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.FromTenths(tenths), nil
}

// History implements LedgerStore, newest first.
func (s RedisStore) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if s.Client == nil {
		return nil, errors.New("loyalty: redis client not configured")
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	rows, err := s.Client.LRange(ctx, s.historyKey(userID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		var e Entry
		if err := json.Unmarshal([]byte(row), &e); err != nil {
			return nil, fmt.Errorf("loyalty: decode history: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
