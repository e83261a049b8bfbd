package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the cart
	// subtotal, optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixedAmount applies a fixed monetary discount capped at the subtotal.
	DiscountFixedAmount DiscountType = "fixed_amount"
	// DiscountFreeShipping grants no direct discount; it signals the caller
	// to zero out shipping cost separately.
	DiscountFreeShipping DiscountType = "free_shipping"
)

// Validation failures, in the order the checks run. Every failure is surfaced
// to the caller: coupon codes are an explicit user action and must never
// silently under- or over-apply.
var (
	// ErrNotFound is returned when no active coupon matches the code.
	ErrNotFound = errors.New("coupon not found")
	// ErrNotYetActive is returned when the coupon's validity window has not opened.
	ErrNotYetActive = errors.New("coupon not yet active")
	// ErrExpired is returned when the coupon's validity window has closed.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when the global usage limit has been reached.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrBelowMinimum is returned when the cart subtotal is under the coupon's floor.
	ErrBelowMinimum = errors.New("cart total below coupon minimum")
	// ErrPerUserLimit is returned when the user has already redeemed the
	// coupon the maximum number of times.
	ErrPerUserLimit = errors.New("per-user coupon limit reached")
)

// Coupon is a user-entered discount code and its eligibility constraints.
type Coupon struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	// MinPurchase is a floor on the cart subtotal. Nil means no floor.
	MinPurchase *decimal.Decimal
	// MaxDiscount caps percentage discounts. Nil means uncapped.
	MaxDiscount *decimal.Decimal
	// UsageLimit is the global redemption cap. Zero means unlimited.
	UsageLimit int
	// UsageCount is the monotonic redemption counter. It must never exceed
	// UsageLimit once set; the conditional increment in the usage recorder
	// enforces this.
	UsageCount int
	// PerUserLimit caps redemptions per identified user. Zero means unlimited.
	PerUserLimit int
	ValidFrom    *time.Time
	ValidUntil   *time.Time
	Active       bool
}

// Usage is one append-only redemption record, written exactly once per
// confirmed order that used a coupon.
type Usage struct {
	CouponID string
	// UserID is empty for anonymous redemptions.
	UserID  string
	OrderID string
	Amount  decimal.Decimal
	UsedAt  time.Time
}

// Repository provides coupon lookup and redemption bookkeeping.
type Repository interface {
	// FindByCode looks up an active coupon by code, case-insensitively.
	// Returns ErrNotFound when no active coupon matches.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CountUserUsage counts prior redemptions of the coupon by the given user.
	CountUserUsage(ctx context.Context, couponID, userID string) (int, error)
	// RecordUsage atomically increments the coupon's usage counter and appends
	// the usage record. Returns ErrExhausted when the counter has already
	// reached the usage limit (a late rejection under concurrent redemptions).
	RecordUsage(ctx context.Context, u Usage) error
}
