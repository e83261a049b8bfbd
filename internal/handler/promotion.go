package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avelios/promo-service/internal/domain/promo"
)

type applyPromotionsRequest struct {
	Items []lineItemRequest `json:"items"`
}

type appliedPromotionResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	DiscountAmount string `json:"discountAmount"`
}

type applyPromotionsResponse struct {
	TotalDiscount     string                     `json:"totalDiscount"`
	AppliedPromotions []appliedPromotionResponse `json:"appliedPromotions"`
}

type promotionResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	DiscountType string          `json:"discountType"`
	Value        string          `json:"discountValue"`
	Rules        json.RawMessage `json:"rules"`
	Priority     int             `json:"priority"`
	StartsAt     *time.Time      `json:"startsAt,omitempty"`
	EndsAt       *time.Time      `json:"endsAt,omitempty"`
	Active       bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type createPromotionRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Type         string          `json:"type"`
	DiscountType string          `json:"discountType"`
	Value        decimal.Decimal `json:"discountValue"`
	Rules        json.RawMessage `json:"rules"`
	Priority     int             `json:"priority"`
	StartsAt     *time.Time      `json:"startsAt"`
	EndsAt       *time.Time      `json:"endsAt"`
	Active       *bool           `json:"isActive"`
}

type updatePromotionRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	DiscountType *string          `json:"discountType"`
	Value        *decimal.Decimal `json:"discountValue"`
	Rules        json.RawMessage  `json:"rules"`
	Priority     *int             `json:"priority"`
	StartsAt     *time.Time       `json:"startsAt"`
	EndsAt       *time.Time       `json:"endsAt"`
	Active       *bool            `json:"isActive"`
}

// ApplyPromotions evaluates all active automatic promotions against the cart.
// The endpoint never fails on promotion problems; the evaluator degrades to
// a zero discount instead.
func (h *Handler) ApplyPromotions(w http.ResponseWriter, r *http.Request) {
	var req applyPromotionsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	eval := h.evaluator.Apply(r.Context(), toLineItems(req.Items))

	applied := make([]appliedPromotionResponse, len(eval.Applied))
	for i, a := range eval.Applied {
		applied[i] = appliedPromotionResponse{
			ID:             a.ID,
			Name:           a.Name,
			Type:           string(a.Type),
			DiscountAmount: a.Amount.StringFixed(2),
		}
	}

	respondJSON(w, r, http.StatusOK, applyPromotionsResponse{
		TotalDiscount:     eval.TotalDiscount.StringFixed(2),
		AppliedPromotions: applied,
	})
}

// ListActivePromotions returns promotions currently inside their validity
// window, ordered by priority.
func (h *Handler) ListActivePromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := h.promos.ListActive(r.Context(), timeNow())
	if err != nil {
		zctx.From(r.Context()).Error("list active promotions", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]promotionResponse, len(promos))
	for i := range promos {
		resp[i] = toPromotionResponse(&promos[i])
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// CreatePromotion persists a new promotion. The rules payload is decoded and
// validated against the promotion type before anything is stored.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	var req createPromotionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, r, http.StatusBadRequest, "name is required")
		return
	}

	typ := promo.Type(req.Type)
	rules, err := promo.DecodeRules(typ, req.Rules)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	discountType, err := parseDiscountType(req.DiscountType)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	p := &promo.Promotion{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		Type:         typ,
		DiscountType: discountType,
		Value:        req.Value,
		Rules:        rules,
		Priority:     req.Priority,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
		Active:       active,
	}

	if err := h.promos.Create(r.Context(), p); err != nil {
		zctx.From(r.Context()).Error("create promotion", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := toPromotionResponse(p)
	respondJSON(w, r, http.StatusCreated, resp)
}

// UpdatePromotion applies a partial patch. Absent fields are untouched; a
// rules payload, when present, replaces the stored one wholesale.
func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updatePromotionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	patch := promo.Patch{
		Name:        req.Name,
		Description: req.Description,
		Value:       req.Value,
		Priority:    req.Priority,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Active:      req.Active,
	}
	if req.DiscountType != nil {
		dt, err := parseDiscountType(*req.DiscountType)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		patch.DiscountType = &dt
	}
	if len(req.Rules) > 0 {
		// The stored promotion type governs how the payload is decoded.
		existing, err := h.promos.GetByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, promo.ErrNotFound) {
				respondError(w, r, http.StatusNotFound, "promotion not found")
				return
			}
			zctx.From(r.Context()).Error("get promotion", zap.String("id", id), zap.Error(err))
			respondError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		rules, err := promo.DecodeRules(existing.Type, req.Rules)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		patch.Rules = rules
	}

	updated, err := h.promos.Update(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "promotion not found")
			return
		}
		zctx.From(r.Context()).Error("update promotion", zap.String("id", id), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	resp := toPromotionResponse(updated)
	respondJSON(w, r, http.StatusOK, resp)
}

// DeletePromotion hard-deletes a promotion definition.
func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.promos.Delete(r.Context(), id); err != nil {
		if errors.Is(err, promo.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, "promotion not found")
			return
		}
		zctx.From(r.Context()).Error("delete promotion", zap.String("id", id), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseDiscountType(s string) (promo.DiscountType, error) {
	switch dt := promo.DiscountType(s); dt {
	case promo.DiscountPercentage, promo.DiscountFixed:
		return dt, nil
	default:
		return "", errors.Errorf("unknown discount type: %q", s)
	}
}

func toPromotionResponse(p *promo.Promotion) promotionResponse {
	rules, err := promo.EncodeRules(p.Rules)
	if err != nil {
		rules = []byte("{}")
	}
	return promotionResponse{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Type:         string(p.Type),
		DiscountType: string(p.DiscountType),
		Value:        p.Value.StringFixed(2),
		Rules:        rules,
		Priority:     p.Priority,
		StartsAt:     p.StartsAt,
		EndsAt:       p.EndsAt,
		Active:       p.Active,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
