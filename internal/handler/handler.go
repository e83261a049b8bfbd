// Package handler exposes the promotion engine over a JSON HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avelios/promo-service/internal/domain/auth"
	"github.com/avelios/promo-service/internal/domain/cart"
	"github.com/avelios/promo-service/internal/domain/coupon"
	"github.com/avelios/promo-service/internal/domain/promo"
)

// Evaluator applies active automatic promotions to a cart.
type Evaluator interface {
	Apply(ctx context.Context, items []cart.LineItem) promo.Evaluation
}

// Handler wires the domain services to HTTP routes.
type Handler struct {
	validator coupon.Validator
	recorder  coupon.Recorder
	evaluator Evaluator
	promos    promo.Repository
	apikeys   auth.Repository
	pepper    []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
// pepper is the HMAC secret used to hash admin API keys.
func NewHandler(
	validator coupon.Validator,
	recorder coupon.Recorder,
	evaluator Evaluator,
	promos promo.Repository,
	apikeys auth.Repository,
	pepper []byte,
) *Handler {
	return &Handler{
		validator: validator,
		recorder:  recorder,
		evaluator: evaluator,
		promos:    promos,
		apikeys:   apikeys,
		pepper:    pepper,
	}
}

// Routes builds the API router. Admin routes require a valid API key.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/validate", h.ValidateCoupon)
		r.Post("/usage", h.RecordCouponUsage)
	})

	r.Route("/promotions", func(r chi.Router) {
		r.Post("/apply", h.ApplyPromotions)
		r.Get("/active", h.ListActivePromotions)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.RequireAPIKey)
		r.Post("/promotions", h.CreatePromotion)
		r.Patch("/promotions/{id}", h.UpdatePromotion)
		r.Delete("/promotions/{id}", h.DeletePromotion)
	})

	return r
}

// lineItemRequest mirrors cart.LineItem on the wire. Prices arrive as JSON
// numbers or strings; decimal.Decimal accepts both.
type lineItemRequest struct {
	ProductID  string          `json:"productId"`
	CategoryID string          `json:"categoryId"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
}

func toLineItems(reqs []lineItemRequest) []cart.LineItem {
	items := make([]cart.LineItem, len(reqs))
	for i, it := range reqs {
		items[i] = cart.LineItem{
			ProductID:  it.ProductID,
			CategoryID: it.CategoryID,
			Price:      it.Price,
			Quantity:   it.Quantity,
		}
	}
	return items
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, r, status, errorResponse{Error: msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
