package coupon

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads coupons from the coupons table.
type PGRepository struct {
	Pool *pgxpool.Pool
}

// FindByCode implements Repository.
func (r PGRepository) FindByCode(ctx context.Context, code string) (Coupon, error) {
	if r.Pool == nil {
		return Coupon{}, errors.New("coupon: pool not configured")
	}
	var (
		c         Coupon
		kind      string
		validFrom *time.Time
		validTo   *time.Time
	)
	err := r.Pool.QueryRow(ctx, `SELECT code, kind, value, valid_from, valid_to FROM coupons WHERE code = $1 AND active`, NormalizeCode(code)).
		Scan(&c.Code, &kind, &c.Value, &validFrom, &validTo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Coupon{}, ErrUnknownCode
		}
		return Coupon{}, err
	}
	c.Kind = Kind(kind)
	c.ValidFrom = validFrom
	c.ValidTo = validTo
	return c, nil
}

// Chain tries each repository in order and returns the first match. Errors
// other than ErrUnknownCode stop the search.
type Chain []Repository

// FindByCode implements Repository.
func (c Chain) FindByCode(ctx context.Context, code string) (Coupon, error) {
	for _, repo := range c {
		if repo == nil {
			continue
		}
		found, err := repo.FindByCode(ctx, code)
		if err == nil {
			return found, nil
		}
		if !errors.Is(err, ErrUnknownCode) {
			return Coupon{}, err
		}
	}
	return Coupon{}, ErrUnknownCode
}
