package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount holds the computed discount for a validated coupon.
type Discount struct {
	Amount decimal.Decimal
	// FreeShipping tells the caller to zero out shipping cost separately;
	// Amount is zero when it is set.
	FreeShipping bool
}

// discountFor computes the discount a coupon grants against the cart subtotal.
func discountFor(c *Coupon, subtotal decimal.Decimal) (Discount, error) {
	switch c.DiscountType {
	case DiscountPercentage:
		amount := subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
		return Discount{Amount: floorAtZero(amount).Round(2)}, nil
	case DiscountFixedAmount:
		// Never discounts below zero net.
		amount := decimal.Min(c.Value, subtotal)
		return Discount{Amount: floorAtZero(amount).Round(2)}, nil
	case DiscountFreeShipping:
		return Discount{Amount: decimal.Zero, FreeShipping: true}, nil
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
