package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/avelios/promo-service/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT id, code, discount_type, value, min_purchase, max_discount,
		usage_limit, usage_count, usage_limit_per_user, valid_from, valid_until, active
		FROM coupons WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	countUserUsageSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	// Conditional increment: zero rows means the limit is already exhausted.
	// usage_count can never pass usage_limit through this statement, even
	// under concurrent redemptions.
	incrementUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND (usage_limit = 0 OR usage_count < usage_limit)`

	couponExistsSQL = `SELECT EXISTS (SELECT 1 FROM coupons WHERE id = $1)`

	insertUsageSQL = `INSERT INTO coupon_usages (coupon_id, user_id, order_id, discount_amount, used_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)`

	// usage_count is preserved on conflict so re-seeding never resets limits.
	upsertCouponSQL = `INSERT INTO coupons
		(code, discount_type, value, min_purchase, max_discount, usage_limit,
		 usage_limit_per_user, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (UPPER(code)) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_purchase = EXCLUDED.min_purchase,
			max_discount = EXCLUDED.max_discount,
			usage_limit = EXCLUDED.usage_limit,
			usage_limit_per_user = EXCLUDED.usage_limit_per_user,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its code (case-insensitive).
// Returns coupon.ErrNotFound when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// CountUserUsage counts prior redemptions of the coupon by the given user.
func (r *CouponRepository) CountUserUsage(ctx context.Context, couponID, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countUserUsageSQL, couponID, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage for coupon %q: %w", couponID, err)
	}
	return count, nil
}

// RecordUsage increments the coupon's usage counter and appends the audit row
// in one transaction. The increment is conditional on the usage limit; a
// zero-row update on an existing coupon surfaces as coupon.ErrExhausted so
// the caller can unwind a redemption that raced past validation.
func (r *CouponRepository) RecordUsage(ctx context.Context, u coupon.Usage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, incrementUsageSQL, u.CouponID)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", u.CouponID, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, couponExistsSQL, u.CouponID).Scan(&exists); err != nil {
			return fmt.Errorf("checking coupon %q: %w", u.CouponID, err)
		}
		if !exists {
			return coupon.ErrNotFound
		}
		return coupon.ErrExhausted
	}

	_, err = tx.Exec(ctx, insertUsageSQL, u.CouponID, u.UserID, u.OrderID, u.Amount, u.UsedAt)
	if err != nil {
		return fmt.Errorf("inserting usage for coupon %q: %w", u.CouponID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing usage for coupon %q: %w", u.CouponID, err)
	}
	return nil
}

// Upsert inserts or refreshes a coupon definition keyed by its code.
// Used by the seed and bulk ingest tools.
func (r *CouponRepository) Upsert(ctx context.Context, c coupon.Coupon) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		c.Code, string(c.DiscountType), c.Value, c.MinPurchase, c.MaxDiscount,
		c.UsageLimit, c.PerUserLimit, c.ValidFrom, c.ValidUntil, c.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
		minPurchase  *decimal.Decimal
		maxDiscount  *decimal.Decimal
		usageLimit   int32
		usageCount   int32
		perUserLimit int32
		validFrom    *time.Time
		validUntil   *time.Time
	)
	err := row.Scan(
		&c.ID, &c.Code, &discountType, &c.Value, &minPurchase, &maxDiscount,
		&usageLimit, &usageCount, &perUserLimit, &validFrom, &validUntil, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	c.MinPurchase = minPurchase
	c.MaxDiscount = maxDiscount
	c.UsageLimit = int(usageLimit)
	c.UsageCount = int(usageCount)
	c.PerUserLimit = int(perUserLimit)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
