package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Recorder records confirmed coupon redemptions. It is invoked exactly once
// per confirmed order that used a coupon, never on validation alone.
type Recorder interface {
	Record(ctx context.Context, couponID, userID, orderID string, amount decimal.Decimal) error
}

// RepoRecorder implements Recorder on top of a Repository.
type RepoRecorder struct {
	repo Repository
	now  func() time.Time
}

// NewRepoRecorder creates a RepoRecorder backed by the given Repository.
func NewRepoRecorder(repo Repository) *RepoRecorder {
	return &RepoRecorder{repo: repo, now: time.Now}
}

// Record bumps the coupon's usage counter and appends one usage row in a
// single transaction. Failures are surfaced unchanged and never retried:
// a charged order without a recorded usage needs operator reconciliation,
// not silent continuation. ErrExhausted here is a late rejection (the limit
// was raced to exhaustion between validation and confirmation) and the
// caller must unwind the order's discount.
func (r *RepoRecorder) Record(ctx context.Context, couponID, userID, orderID string, amount decimal.Decimal) error {
	err := r.repo.RecordUsage(ctx, Usage{
		CouponID: couponID,
		UserID:   userID,
		OrderID:  orderID,
		Amount:   amount.Round(2),
		UsedAt:   r.now(),
	})
	if err != nil {
		if errors.Is(err, ErrExhausted) || errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "record coupon usage")
	}
	return nil
}
