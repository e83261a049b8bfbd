// Package promo implements automatic, rule-driven promotions: definitions,
// their type-specific rule payloads, and cart evaluation.
package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Type enumerates the supported promotion kinds.
type Type string

const (
	// TypeCategoryDiscount discounts the subtotal of items in one category.
	TypeCategoryDiscount Type = "category_discount"
	// TypeBuyXGetY grants free units of a product for every X purchased.
	TypeBuyXGetY Type = "buy_x_get_y"
	// TypeFlashSale discounts the entire cart subtotal.
	TypeFlashSale Type = "flash_sale"
	// TypeMinPurchase discounts carts whose subtotal meets a floor.
	TypeMinPurchase Type = "min_purchase"
)

// DiscountType enumerates how a promotion's value is applied.
type DiscountType string

const (
	// DiscountPercentage applies Value as a percentage of the target subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies Value as a flat amount.
	DiscountFixed DiscountType = "fixed"
)

// ErrNotFound is returned when a promotion id does not exist.
var ErrNotFound = errors.New("promotion not found")

// Promotion is an automatically-applied discount definition. Promotions are
// created and updated by admin action and read-only at evaluation time.
type Promotion struct {
	ID           string
	Name         string
	Description  string
	Type         Type
	DiscountType DiscountType
	Value        decimal.Decimal
	// Rules is the type-specific payload, nil when the stored payload could
	// not be decoded for the promotion's type. Evaluation treats nil as a
	// zero-contribution promotion.
	Rules Rules
	// Priority orders evaluation and reporting, higher first. It never
	// changes the numeric outcome: discounts are independently summed.
	Priority int
	StartsAt *time.Time
	EndsAt   *time.Time
	Active   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Patch is a partial promotion update. Nil fields are left untouched.
// Rules, when non-nil, replaces the whole payload; there is no partial merge.
// The promotion type itself is immutable after creation.
type Patch struct {
	Name         *string
	Description  *string
	DiscountType *DiscountType
	Value        *decimal.Decimal
	Rules        Rules
	Priority     *int
	StartsAt     *time.Time
	EndsAt       *time.Time
	Active       *bool
}

// Apply writes the patch onto the promotion. The patched rules payload must
// match the promotion's type.
func (p *Promotion) Apply(patch Patch) error {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.DiscountType != nil {
		p.DiscountType = *patch.DiscountType
	}
	if patch.Value != nil {
		p.Value = *patch.Value
	}
	if patch.Rules != nil {
		if !rulesMatchType(p.Type, patch.Rules) {
			return errors.Errorf("rules payload does not match promotion type %q", p.Type)
		}
		p.Rules = patch.Rules
	}
	if patch.Priority != nil {
		p.Priority = *patch.Priority
	}
	if patch.StartsAt != nil {
		p.StartsAt = patch.StartsAt
	}
	if patch.EndsAt != nil {
		p.EndsAt = patch.EndsAt
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	return nil
}

// Repository defines persistence operations for promotions.
type Repository interface {
	// ListActive returns promotions that are active and inside their validity
	// window at the given instant, ordered by priority descending.
	ListActive(ctx context.Context, now time.Time) ([]Promotion, error)
	GetByID(ctx context.Context, id string) (*Promotion, error)
	Create(ctx context.Context, p *Promotion) error
	// Update applies a partial patch and returns the updated promotion.
	Update(ctx context.Context, id string, patch Patch) (*Promotion, error)
	// Delete hard-deletes a promotion. Historical orders keep their applied
	// promotion snapshots, so no dependency check is performed.
	Delete(ctx context.Context, id string) error
}
