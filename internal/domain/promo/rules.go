package promo

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Rules is the type-specific promotion rule payload. The concrete types form
// a closed set, one per promotion Type; DecodeRules rejects payloads that do
// not match their promotion type at construction time rather than letting
// malformed rules surface during evaluation.
type Rules interface {
	isRules()
	// Validate reports whether the payload is internally consistent.
	Validate() error
}

// CategoryDiscountRules targets items in a single category.
type CategoryDiscountRules struct {
	CategoryID string `json:"categoryId"`
}

func (CategoryDiscountRules) isRules() {}

func (r CategoryDiscountRules) Validate() error {
	if r.CategoryID == "" {
		return errors.New("categoryId is required")
	}
	return nil
}

// BuyXGetYRules grants GetQuantity free units of ProductID for every
// BuyQuantity purchased. Quantities below BuyQuantity earn nothing.
type BuyXGetYRules struct {
	ProductID   string `json:"productId"`
	BuyQuantity int    `json:"buyQuantity"`
	GetQuantity int    `json:"getQuantity"`
}

func (BuyXGetYRules) isRules() {}

func (r BuyXGetYRules) Validate() error {
	if r.ProductID == "" {
		return errors.New("productId is required")
	}
	if r.BuyQuantity <= 0 {
		return errors.New("buyQuantity must be greater than 0")
	}
	if r.GetQuantity <= 0 {
		return errors.New("getQuantity must be greater than 0")
	}
	return nil
}

// FlashSaleRules has no parameters; the discount applies to the whole cart.
type FlashSaleRules struct{}

func (FlashSaleRules) isRules() {}

func (FlashSaleRules) Validate() error { return nil }

// MinPurchaseRules gates the discount on a cart subtotal floor.
type MinPurchaseRules struct {
	MinAmount decimal.Decimal `json:"minAmount"`
}

func (MinPurchaseRules) isRules() {}

func (r MinPurchaseRules) Validate() error {
	if !r.MinAmount.IsPositive() {
		return errors.New("minAmount must be greater than 0")
	}
	return nil
}

// DecodeRules parses and validates a raw rules payload for the given
// promotion type.
func DecodeRules(typ Type, raw []byte) (Rules, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}

	var r Rules
	switch typ {
	case TypeCategoryDiscount:
		var v CategoryDiscountRules
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decode category_discount rules")
		}
		r = v
	case TypeBuyXGetY:
		var v BuyXGetYRules
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decode buy_x_get_y rules")
		}
		r = v
	case TypeFlashSale:
		var v FlashSaleRules
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decode flash_sale rules")
		}
		r = v
	case TypeMinPurchase:
		var v MinPurchaseRules
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, errors.Wrap(err, "decode min_purchase rules")
		}
		r = v
	default:
		return nil, errors.Errorf("unknown promotion type: %q", typ)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// EncodeRules serializes a rules payload for JSONB storage.
func EncodeRules(r Rules) ([]byte, error) {
	if r == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r)
}

// rulesMatchType reports whether the concrete rules type belongs to the
// given promotion type.
func rulesMatchType(typ Type, r Rules) bool {
	switch r.(type) {
	case CategoryDiscountRules:
		return typ == TypeCategoryDiscount
	case BuyXGetYRules:
		return typ == TypeBuyXGetY
	case FlashSaleRules:
		return typ == TypeFlashSale
	case MinPurchaseRules:
		return typ == TypeMinPurchase
	default:
		return false
	}
}
