package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avelios/promo-service/internal/domain/coupon"
)

type validateCouponRequest struct {
	Code   string            `json:"code"`
	UserID string            `json:"userId"`
	Items  []lineItemRequest `json:"items"`
}

type couponResponse struct {
	ID           string  `json:"id"`
	Code         string  `json:"code"`
	DiscountType string  `json:"discountType"`
	Value        string  `json:"discountValue"`
	MinPurchase  *string `json:"minPurchaseAmount,omitempty"`
	MaxDiscount  *string `json:"maxDiscountAmount,omitempty"`
}

type validateCouponResponse struct {
	Valid          bool            `json:"valid"`
	Coupon         *couponResponse `json:"coupon,omitempty"`
	DiscountAmount string          `json:"discountAmount,omitempty"`
	FreeShipping   bool            `json:"freeShipping,omitempty"`
	Error          string          `json:"error,omitempty"`
}

type recordUsageRequest struct {
	CouponID       string          `json:"couponId"`
	UserID         string          `json:"userId"`
	OrderID        string          `json:"orderId"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// ValidateCoupon checks a coupon code against the supplied cart. Validation
// failures are results, not HTTP errors: the response is 200 with valid=false
// and a message. Only unexpected failures map to 5xx.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		respondJSON(w, r, http.StatusOK, validateCouponResponse{Valid: false, Error: "coupon code is required"})
		return
	}

	result, err := h.validator.Validate(r.Context(), req.Code, req.UserID, toLineItems(req.Items))
	if err != nil {
		if msg, ok := couponFailureMessage(err); ok {
			respondJSON(w, r, http.StatusOK, validateCouponResponse{Valid: false, Error: msg})
			return
		}
		zctx.From(r.Context()).Error("validate coupon", zap.String("code", req.Code), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, r, http.StatusOK, validateCouponResponse{
		Valid:          true,
		Coupon:         toCouponResponse(result.Coupon),
		DiscountAmount: result.Discount.Amount.StringFixed(2),
		FreeShipping:   result.Discount.FreeShipping,
	})
}

// RecordCouponUsage records a confirmed redemption. A late rejection (the
// usage limit was raced to exhaustion after validation) maps to 409 so the
// checkout caller knows to unwind the discount.
func (h *Handler) RecordCouponUsage(w http.ResponseWriter, r *http.Request) {
	var req recordUsageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CouponID == "" || req.OrderID == "" {
		respondError(w, r, http.StatusBadRequest, "couponId and orderId are required")
		return
	}

	err := h.recorder.Record(r.Context(), req.CouponID, req.UserID, req.OrderID, req.DiscountAmount)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, coupon.ErrNotFound):
		respondError(w, r, http.StatusNotFound, "coupon not found")
	case errors.Is(err, coupon.ErrExhausted):
		respondError(w, r, http.StatusConflict, "coupon usage limit reached")
	default:
		zctx.From(r.Context()).Error("record coupon usage",
			zap.String("coupon_id", req.CouponID),
			zap.String("order_id", req.OrderID),
			zap.Error(err),
		)
		respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// couponFailureMessage maps validation sentinels to caller-facing messages.
func couponFailureMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, coupon.ErrNotFound):
		return "coupon not found", true
	case errors.Is(err, coupon.ErrNotYetActive):
		return "coupon is not active yet", true
	case errors.Is(err, coupon.ErrExpired):
		return "coupon has expired", true
	case errors.Is(err, coupon.ErrExhausted):
		return "coupon usage limit reached", true
	case errors.Is(err, coupon.ErrBelowMinimum):
		return "cart total is below the coupon minimum", true
	case errors.Is(err, coupon.ErrPerUserLimit):
		return "coupon already used the maximum number of times", true
	}
	return "", false
}

func toCouponResponse(c *coupon.Coupon) *couponResponse {
	resp := &couponResponse{
		ID:           c.ID,
		Code:         c.Code,
		DiscountType: string(c.DiscountType),
		Value:        c.Value.StringFixed(2),
	}
	if c.MinPurchase != nil {
		s := c.MinPurchase.StringFixed(2)
		resp.MinPurchase = &s
	}
	if c.MaxDiscount != nil {
		s := c.MaxDiscount.StringFixed(2)
		resp.MaxDiscount = &s
	}
	return resp
}

// timeNow is overridable in tests.
var timeNow = time.Now
