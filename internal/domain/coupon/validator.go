package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/avelios/promo-service/internal/domain/cart"
)

// Result is a successful validation: the matched coupon and its discount.
type Result struct {
	Coupon   *Coupon
	Discount Discount
}

// Validator validates a coupon code against a cart and returns the computed
// discount. userID is empty for anonymous callers.
type Validator interface {
	Validate(ctx context.Context, code, userID string, items []cart.LineItem) (*Result, error)
}

// RepoValidator implements Validator by looking up coupons from a Repository.
// It never mutates usage state; redemptions are recorded separately by the
// Recorder after order confirmation, so abandoned carts reserve nothing.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate runs the full check sequence: lookup, validity window, global
// exhaustion, minimum purchase, per-user limit, then discount computation.
// Window bounds are inclusive. Anonymous callers skip the per-user check:
// only identified users are rate-limited per coupon.
func (v *RepoValidator) Validate(ctx context.Context, code, userID string, items []cart.LineItem) (*Result, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrNotYetActive
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrExpired
	}

	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, ErrExhausted
	}

	subtotal := cart.Subtotal(items)
	if c.MinPurchase != nil && subtotal.LessThan(*c.MinPurchase) {
		return nil, ErrBelowMinimum
	}

	if userID != "" && c.PerUserLimit > 0 {
		used, err := v.repo.CountUserUsage(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usage")
		}
		if used >= c.PerUserLimit {
			return nil, ErrPerUserLimit
		}
	}

	d, err := discountFor(c, subtotal)
	if err != nil {
		return nil, err
	}

	return &Result{Coupon: c, Discount: d}, nil
}
