//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/avelios/promo-service/internal/domain/coupon"
	"github.com/avelios/promo-service/internal/domain/promo"
)

// startPostgres spins up a throwaway postgres container and returns a pool
// with migrations applied.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "promo",
				"POSTGRES_PASSWORD": "promo",
				"POSTGRES_DB":       "promo",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	host, err := pg.Host(ctx)
	require.NoError(t, err)
	port, err := pg.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://promo:promo@%s:%s/promo?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	return pool
}

func mustDec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCouponRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewCouponRepository(pool)
	ctx := context.Background()

	t.Run("upsert and case-insensitive lookup", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, coupon.Coupon{
			Code:         "Save10",
			DiscountType: coupon.DiscountPercentage,
			Value:        mustDec("10"),
			PerUserLimit: 1,
			Active:       true,
		}))

		c, err := repo.FindByCode(ctx, "save10")
		require.NoError(t, err)
		assert.Equal(t, "Save10", c.Code)
		assert.True(t, mustDec("10").Equal(c.Value))

		// Re-upserting the same code must not create a second row.
		require.NoError(t, repo.Upsert(ctx, coupon.Coupon{
			Code:         "SAVE10",
			DiscountType: coupon.DiscountPercentage,
			Value:        mustDec("12"),
			Active:       true,
		}))
		c, err = repo.FindByCode(ctx, "SAVE10")
		require.NoError(t, err)
		assert.True(t, mustDec("12").Equal(c.Value))
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "NOPE")
		assert.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("usage limit enforced under concurrency", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, coupon.Coupon{
			Code:         "LIMITED5",
			DiscountType: coupon.DiscountFixedAmount,
			Value:        mustDec("5"),
			UsageLimit:   5,
			Active:       true,
		}))
		c, err := repo.FindByCode(ctx, "LIMITED5")
		require.NoError(t, err)

		const attempts = 10
		errs := make([]error, attempts)
		var wg sync.WaitGroup
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.RecordUsage(ctx, coupon.Usage{
					CouponID: c.ID,
					UserID:   fmt.Sprintf("user-%d", i),
					OrderID:  uuid.New().String(),
					Amount:   mustDec("5.00"),
					UsedAt:   time.Now(),
				})
			}(i)
		}
		wg.Wait()

		var ok, exhausted int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, coupon.ErrExhausted):
				exhausted++
			}
		}
		assert.Equal(t, 5, ok, "exactly the limit succeeds")
		assert.Equal(t, 5, exhausted)

		c, err = repo.FindByCode(ctx, "LIMITED5")
		require.NoError(t, err)
		assert.Equal(t, 5, c.UsageCount, "usage_count never passes usage_limit")
	})

	t.Run("record usage for unknown coupon", func(t *testing.T) {
		err := repo.RecordUsage(ctx, coupon.Usage{
			CouponID: uuid.New().String(),
			OrderID:  "order-x",
			Amount:   mustDec("1.00"),
			UsedAt:   time.Now(),
		})
		assert.ErrorIs(t, err, coupon.ErrNotFound)
	})

	t.Run("per-user usage count", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, coupon.Coupon{
			Code:         "PERUSER",
			DiscountType: coupon.DiscountPercentage,
			Value:        mustDec("10"),
			Active:       true,
		}))
		c, err := repo.FindByCode(ctx, "PERUSER")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			require.NoError(t, repo.RecordUsage(ctx, coupon.Usage{
				CouponID: c.ID,
				UserID:   "alice",
				OrderID:  uuid.New().String(),
				Amount:   mustDec("2.00"),
				UsedAt:   time.Now(),
			}))
		}
		// Anonymous redemption must not count against any user.
		require.NoError(t, repo.RecordUsage(ctx, coupon.Usage{
			CouponID: c.ID,
			OrderID:  uuid.New().String(),
			Amount:   mustDec("2.00"),
			UsedAt:   time.Now(),
		}))

		n, err := repo.CountUserUsage(ctx, c.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = repo.CountUserUsage(ctx, c.ID, "bob")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestPromotionRepository(t *testing.T) {
	pool := startPostgres(t)
	repo := NewPromotionRepository(pool)
	ctx := context.Background()

	newPromotion := func(name string, priority int) *promo.Promotion {
		return &promo.Promotion{
			ID:           uuid.New().String(),
			Name:         name,
			Type:         promo.TypeCategoryDiscount,
			DiscountType: promo.DiscountPercentage,
			Value:        mustDec("10"),
			Rules:        promo.CategoryDiscountRules{CategoryID: "books"},
			Priority:     priority,
			Active:       true,
		}
	}

	t.Run("create and get", func(t *testing.T) {
		p := newPromotion("Books 10%", 1)
		require.NoError(t, repo.Create(ctx, p))
		assert.False(t, p.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Books 10%", got.Name)
		assert.Equal(t, promo.CategoryDiscountRules{CategoryID: "books"}, got.Rules)
	})

	t.Run("list active respects window and priority", func(t *testing.T) {
		now := time.Now()
		past := now.Add(-time.Hour)
		future := now.Add(time.Hour)

		high := newPromotion("high", 100)
		low := newPromotion("low", 50)
		expired := newPromotion("expired", 200)
		expired.EndsAt = &past
		upcoming := newPromotion("upcoming", 200)
		upcoming.StartsAt = &future
		inactive := newPromotion("inactive", 200)
		inactive.Active = false

		for _, p := range []*promo.Promotion{high, low, expired, upcoming, inactive} {
			require.NoError(t, repo.Create(ctx, p))
		}

		active, err := repo.ListActive(ctx, now)
		require.NoError(t, err)

		var names []string
		for _, p := range active {
			if p.Priority >= 50 {
				names = append(names, p.Name)
			}
		}
		assert.Equal(t, []string{"high", "low"}, names)
	})

	t.Run("partial update", func(t *testing.T) {
		p := newPromotion("before", 1)
		require.NoError(t, repo.Create(ctx, p))

		name := "after"
		value := mustDec("20")
		updated, err := repo.Update(ctx, p.ID, promo.Patch{Name: &name, Value: &value})
		require.NoError(t, err)
		assert.Equal(t, "after", updated.Name)
		assert.True(t, mustDec("20").Equal(updated.Value))
		assert.Equal(t, promo.CategoryDiscountRules{CategoryID: "books"}, updated.Rules, "rules untouched")
	})

	t.Run("update unknown id", func(t *testing.T) {
		name := "x"
		_, err := repo.Update(ctx, uuid.New().String(), promo.Patch{Name: &name})
		assert.ErrorIs(t, err, promo.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		p := newPromotion("doomed", 1)
		require.NoError(t, repo.Create(ctx, p))

		require.NoError(t, repo.Delete(ctx, p.ID))
		assert.ErrorIs(t, repo.Delete(ctx, p.ID), promo.ErrNotFound)

		_, err := repo.GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, promo.ErrNotFound)
	})
}
