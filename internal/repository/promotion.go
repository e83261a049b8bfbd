package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/avelios/promo-service/internal/domain/promo"
)

const (
	promotionColumns = `id, name, description, promo_type, discount_type, value, rules,
		priority, starts_at, ends_at, active, created_at, updated_at`

	listActivePromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions
		WHERE active = TRUE
		  AND (starts_at IS NULL OR starts_at <= $1)
		  AND (ends_at IS NULL OR ends_at >= $1)
		ORDER BY priority DESC, created_at`

	getPromotionByIDSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	getPromotionForUpdateSQL = getPromotionByIDSQL + ` FOR UPDATE`

	insertPromotionSQL = `INSERT INTO promotions
		(id, name, description, promo_type, discount_type, value, rules, priority, starts_at, ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	updatePromotionSQL = `UPDATE promotions
		SET name = $2, description = $3, discount_type = $4, value = $5, rules = $6,
			priority = $7, starts_at = $8, ends_at = $9, active = $10, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	deletePromotionSQL = `DELETE FROM promotions WHERE id = $1`

	upsertPromotionSQL = `INSERT INTO promotions
		(id, name, description, promo_type, discount_type, value, rules, priority, starts_at, ends_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			promo_type = EXCLUDED.promo_type,
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			rules = EXCLUDED.rules,
			priority = EXCLUDED.priority,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ promo.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promo.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListActive returns promotions active at the given instant, ordered by
// priority descending. Storage order breaks priority ties.
func (r *PromotionRepository) ListActive(ctx context.Context, now time.Time) ([]promo.Promotion, error) {
	rows, err := r.pool.Query(ctx, listActivePromotionsSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanPromotion)
}

// GetByID returns a single promotion. Returns promo.ErrNotFound when the id
// does not exist.
func (r *PromotionRepository) GetByID(ctx context.Context, id string) (*promo.Promotion, error) {
	rows, err := r.pool.Query(ctx, getPromotionByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}
	return &p, nil
}

// Create persists a new promotion definition.
func (r *PromotionRepository) Create(ctx context.Context, p *promo.Promotion) error {
	rules, err := promo.EncodeRules(p.Rules)
	if err != nil {
		return fmt.Errorf("encoding rules for promotion %q: %w", p.ID, err)
	}

	err = r.pool.QueryRow(ctx, insertPromotionSQL,
		p.ID, p.Name, p.Description, string(p.Type), string(p.DiscountType),
		p.Value, rules, p.Priority, p.StartsAt, p.EndsAt, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating promotion %q: %w", p.ID, err)
	}
	return nil
}

// Upsert inserts or replaces a promotion with a fixed id. Used by the seed
// tool so repeated runs converge on the same rows.
func (r *PromotionRepository) Upsert(ctx context.Context, p *promo.Promotion) error {
	rules, err := promo.EncodeRules(p.Rules)
	if err != nil {
		return fmt.Errorf("encoding rules for promotion %q: %w", p.ID, err)
	}

	_, err = r.pool.Exec(ctx, upsertPromotionSQL,
		p.ID, p.Name, p.Description, string(p.Type), string(p.DiscountType),
		p.Value, rules, p.Priority, p.StartsAt, p.EndsAt, p.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", p.ID, err)
	}
	return nil
}

// Update applies a partial patch under a row lock and returns the updated
// promotion. Fields absent from the patch keep their stored values.
func (r *PromotionRepository) Update(ctx context.Context, id string, patch promo.Patch) (*promo.Promotion, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, getPromotionForUpdateSQL, id)
	if err != nil {
		return nil, fmt.Errorf("locking promotion %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromotion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("locking promotion %q: %w", id, err)
	}

	if err := p.Apply(patch); err != nil {
		return nil, err
	}

	rules, err := promo.EncodeRules(p.Rules)
	if err != nil {
		return nil, fmt.Errorf("encoding rules for promotion %q: %w", id, err)
	}

	err = tx.QueryRow(ctx, updatePromotionSQL,
		p.ID, p.Name, p.Description, string(p.DiscountType), p.Value,
		rules, p.Priority, p.StartsAt, p.EndsAt, p.Active,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updating promotion %q: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing update for promotion %q: %w", id, err)
	}
	return &p, nil
}

// Delete hard-deletes a promotion. Returns promo.ErrNotFound when the id
// does not exist.
func (r *PromotionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deletePromotionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// scanPromotion maps a row to the domain type. A rules payload that fails to
// decode for its promotion type is kept as nil so the evaluator can skip the
// promotion instead of the whole listing failing.
func scanPromotion(row pgx.CollectableRow) (promo.Promotion, error) {
	var (
		p            promo.Promotion
		promoType    string
		discountType string
		rawRules     []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &promoType, &discountType, &p.Value,
		&rawRules, &p.Priority, &p.StartsAt, &p.EndsAt, &p.Active,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}

	p.Type = promo.Type(promoType)
	p.DiscountType = promo.DiscountType(discountType)
	if rules, derr := promo.DecodeRules(p.Type, rawRules); derr == nil {
		p.Rules = rules
	}
	return p, nil
}
