// Package cart holds the line item shape shared by coupon validation and
// promotion evaluation. The engine has no ownership over cart lifecycle;
// items are supplied by the checkout collaborator on every call.
package cart

import "github.com/shopspring/decimal"

// LineItem is a single cart line as supplied by the caller.
type LineItem struct {
	ProductID  string
	CategoryID string
	Price      decimal.Decimal
	Quantity   int
}

// Subtotal returns the sum of price * quantity across all items.
func Subtotal(items []LineItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		line := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		sum = sum.Add(line)
	}
	return sum
}
