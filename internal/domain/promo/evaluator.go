package promo

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avelios/promo-service/internal/domain/cart"
)

// Applied describes one promotion that contributed to an evaluation. Orders
// store these as snapshots, not live references, so deleting a promotion
// later does not touch historical totals.
type Applied struct {
	ID     string
	Name   string
	Type   Type
	Amount decimal.Decimal
}

// Evaluation is the outcome of applying all active promotions to a cart.
// Discounts are independently summed: stacked promotions never compound.
// The combined total is deliberately not clamped to the cart subtotal;
// that is the checkout caller's decision.
type Evaluation struct {
	TotalDiscount decimal.Decimal
	Applied       []Applied
}

// Evaluator applies all currently-active automatic promotions to a cart.
type Evaluator struct {
	repo Repository
	lg   *zap.Logger
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository, lg *zap.Logger) *Evaluator {
	return &Evaluator{repo: repo, lg: lg, now: time.Now}
}

// Apply evaluates every active promotion against the cart in priority order.
// It never fails: a promotion that cannot be evaluated is logged and
// contributes zero, and a storage failure yields an empty evaluation.
// Automatic promotions are a convenience, not a checkout precondition.
func (e *Evaluator) Apply(ctx context.Context, items []cart.LineItem) Evaluation {
	eval := Evaluation{TotalDiscount: decimal.Zero}

	promos, err := e.repo.ListActive(ctx, e.now())
	if err != nil {
		e.lg.Error("list active promotions", zap.Error(err))
		return eval
	}

	for i := range promos {
		p := &promos[i]

		amount, err := discountFor(p, items)
		if err != nil {
			e.lg.Warn("skipping promotion",
				zap.String("promotion_id", p.ID),
				zap.String("promotion_type", string(p.Type)),
				zap.Error(err),
			)
			continue
		}

		amount = amount.Round(2)
		if !amount.IsPositive() {
			continue
		}

		eval.TotalDiscount = eval.TotalDiscount.Add(amount)
		eval.Applied = append(eval.Applied, Applied{
			ID:     p.ID,
			Name:   p.Name,
			Type:   p.Type,
			Amount: amount,
		})
	}

	return eval
}
