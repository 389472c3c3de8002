package coupon

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// StaticRegistry is an in-memory coupon set, typically loaded from the
// COUPONS setting.
type StaticRegistry struct {
	mu      sync.RWMutex
	coupons map[string]Coupon
}

// NewStaticRegistry builds a registry from the given coupons.
func NewStaticRegistry(coupons ...Coupon) (*StaticRegistry, error) {
	r := &StaticRegistry{coupons: make(map[string]Coupon, len(coupons))}
	for _, c := range coupons {
		if err := r.Put(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ParseRegistry reads "CODE:type:value" entries separated by commas, e.g.
// "WELCOME10:percent:10,SAVE25:amount:25".
func ParseRegistry(spec string) (*StaticRegistry, error) {
	r := &StaticRegistry{coupons: map[string]Coupon{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: entry %q must be CODE:type:value", ErrInvalidCoupon, entry)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %q: %v", ErrInvalidCoupon, entry, err)
		}
		c := Coupon{
			Code:  parts[0],
			Kind:  Kind(strings.ToLower(strings.TrimSpace(parts[1]))),
			Value: value,
		}
		if err := r.Put(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put adds or replaces a coupon.
func (r *StaticRegistry) Put(c Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.Code = NormalizeCode(c.Code)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.coupons == nil {
		r.coupons = map[string]Coupon{}
	}
	r.coupons[c.Code] = c
	return nil
}

// FindByCode implements Repository.
func (r *StaticRegistry) FindByCode(_ context.Context, code string) (Coupon, error) {
	if r == nil {
		return Coupon{}, ErrUnknownCode
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.coupons[NormalizeCode(code)]
	if !ok {
		return Coupon{}, ErrUnknownCode
	}
	return c, nil
}

// Len returns the number of registered coupons.
func (r *StaticRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.coupons)
}
