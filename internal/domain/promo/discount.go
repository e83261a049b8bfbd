package promo

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/avelios/promo-service/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// discountFor computes the discount one promotion grants against the cart.
// Zero means the promotion is not applicable; an error means the definition
// itself is unusable (the evaluator logs it and moves on).
func discountFor(p *Promotion, items []cart.LineItem) (decimal.Decimal, error) {
	switch rules := p.Rules.(type) {
	case CategoryDiscountRules:
		return discountAgainst(p, categorySubtotal(items, rules.CategoryID))
	case BuyXGetYRules:
		return buyXGetYDiscount(rules, items)
	case FlashSaleRules:
		return discountAgainst(p, cart.Subtotal(items))
	case MinPurchaseRules:
		return minPurchaseDiscount(p, rules, items)
	case nil:
		return decimal.Zero, errors.New("missing or malformed rules payload")
	default:
		return decimal.Zero, errors.Errorf("unsupported rules payload %T", rules)
	}
}

// discountAgainst applies the promotion's discount to a base subtotal.
// Fixed discounts are capped at the base so a narrow category promotion
// never discounts more than the items it targets.
func discountAgainst(p *Promotion, base decimal.Decimal) (decimal.Decimal, error) {
	switch p.DiscountType {
	case DiscountPercentage:
		return base.Mul(p.Value).Div(hundred), nil
	case DiscountFixed:
		return decimal.Min(p.Value, base), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", p.DiscountType)
	}
}

// buyXGetYDiscount grants floor(quantity/buyQuantity) * getQuantity free
// units of the matching product. Quantities below buyQuantity earn nothing.
func buyXGetYDiscount(rules BuyXGetYRules, items []cart.LineItem) (decimal.Decimal, error) {
	if rules.BuyQuantity <= 0 {
		return decimal.Zero, errors.New("buyQuantity must be greater than 0")
	}
	for _, item := range items {
		if item.ProductID != rules.ProductID {
			continue
		}
		freeSets := item.Quantity / rules.BuyQuantity
		freeUnits := int64(freeSets * rules.GetQuantity)
		return item.Price.Mul(decimal.NewFromInt(freeUnits)), nil
	}
	return decimal.Zero, nil
}

// minPurchaseDiscount applies the full discount once the cart subtotal meets
// the floor. The fixed value is deliberately not capped at the subtotal and
// the percentage has no max field on this type.
func minPurchaseDiscount(p *Promotion, rules MinPurchaseRules, items []cart.LineItem) (decimal.Decimal, error) {
	subtotal := cart.Subtotal(items)
	if subtotal.LessThan(rules.MinAmount) {
		return decimal.Zero, nil
	}
	switch p.DiscountType {
	case DiscountPercentage:
		return subtotal.Mul(p.Value).Div(hundred), nil
	case DiscountFixed:
		return p.Value, nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", p.DiscountType)
	}
}

// categorySubtotal sums price * quantity over items in the given category.
func categorySubtotal(items []cart.LineItem, categoryID string) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		if item.CategoryID != categoryID {
			continue
		}
		sum = sum.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}
