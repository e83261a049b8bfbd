package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/promo-service/internal/domain/cart"
)

type mockCouponRepo struct {
	coupon    *Coupon
	err       error
	userUses  int
	countErr  error
	recordErr error

	lastUsage  *Usage
	countedFor string
}

func (m *mockCouponRepo) FindByCode(_ context.Context, _ string) (*Coupon, error) {
	return m.coupon, m.err
}

func (m *mockCouponRepo) CountUserUsage(_ context.Context, _, userID string) (int, error) {
	m.countedFor = userID
	return m.userUses, m.countErr
}

func (m *mockCouponRepo) RecordUsage(_ context.Context, u Usage) error {
	m.lastUsage = &u
	return m.recordErr
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func singleItem(price string, qty int) []cart.LineItem {
	return []cart.LineItem{
		{ProductID: "p1", CategoryID: "c1", Price: dec(price), Quantity: qty},
	}
}

func TestRepoValidator_Validate(t *testing.T) {
	fixedNow := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	pastTime := fixedNow.Add(-24 * time.Hour)
	futureTime := fixedNow.Add(24 * time.Hour)

	tests := []struct {
		name             string
		repo             *mockCouponRepo
		userID           string
		items            []cart.LineItem
		wantAmount       decimal.Decimal
		wantFreeShipping bool
		wantErr          error
	}{
		{
			name: "percentage without cap",
			repo: &mockCouponRepo{
				coupon: &Coupon{ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage, Value: dec("10")},
			},
			items:      singleItem("100.00", 1),
			wantAmount: dec("10.00"),
		},
		{
			name: "percentage clamped to max discount",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "SAVE10", DiscountType: DiscountPercentage,
					Value: dec("10"), MaxDiscount: decPtr("5"),
				},
			},
			items:      singleItem("100.00", 1),
			wantAmount: dec("5.00"),
		},
		{
			name: "fixed amount capped at subtotal",
			repo: &mockCouponRepo{
				coupon: &Coupon{ID: "c1", Code: "TAKE50", DiscountType: DiscountFixedAmount, Value: dec("50")},
			},
			items:      singleItem("30.00", 1),
			wantAmount: dec("30.00"),
		},
		{
			name: "free shipping yields zero amount and flag",
			repo: &mockCouponRepo{
				coupon: &Coupon{ID: "c1", Code: "SHIPFREE", DiscountType: DiscountFreeShipping, Value: dec("0")},
			},
			items:            singleItem("30.00", 1),
			wantAmount:       decimal.Zero,
			wantFreeShipping: true,
		},
		{
			name:    "unknown code",
			repo:    &mockCouponRepo{err: ErrNotFound},
			items:   singleItem("30.00", 1),
			wantErr: ErrNotFound,
		},
		{
			name: "not yet active",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "SOON", DiscountType: DiscountPercentage,
					Value: dec("10"), ValidFrom: &futureTime,
				},
			},
			items:   singleItem("100.00", 1),
			wantErr: ErrNotYetActive,
		},
		{
			name: "expired regardless of other fields",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "OLD", DiscountType: DiscountPercentage,
					Value: dec("10"), ValidUntil: &pastTime,
				},
			},
			items:   singleItem("100.00", 1),
			wantErr: ErrExpired,
		},
		{
			name: "boundary instants are valid",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "EDGE", DiscountType: DiscountPercentage,
					Value: dec("10"), ValidFrom: &fixedNow, ValidUntil: &fixedNow,
				},
			},
			items:      singleItem("100.00", 1),
			wantAmount: dec("10.00"),
		},
		{
			name: "usage count at limit fails exhausted",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "LIM", DiscountType: DiscountPercentage,
					Value: dec("10"), UsageLimit: 100, UsageCount: 100,
				},
			},
			items:   singleItem("100.00", 1),
			wantErr: ErrExhausted,
		},
		{
			name: "zero usage limit means unlimited",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "NOLIM", DiscountType: DiscountPercentage,
					Value: dec("10"), UsageCount: 9999,
				},
			},
			items:      singleItem("100.00", 1),
			wantAmount: dec("10.00"),
		},
		{
			name: "subtotal below minimum purchase",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "MIN50", DiscountType: DiscountPercentage,
					Value: dec("10"), MinPurchase: decPtr("50"),
				},
			},
			items:   singleItem("49.99", 1),
			wantErr: ErrBelowMinimum,
		},
		{
			name: "subtotal at minimum purchase passes",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "MIN50", DiscountType: DiscountPercentage,
					Value: dec("10"), MinPurchase: decPtr("50"),
				},
			},
			items:      singleItem("50.00", 1),
			wantAmount: dec("5.00"),
		},
		{
			name: "per-user limit reached despite global headroom",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "ONCE", DiscountType: DiscountPercentage,
					Value: dec("10"), UsageLimit: 100, UsageCount: 3, PerUserLimit: 1,
				},
				userUses: 1,
			},
			userID:  "u1",
			items:   singleItem("100.00", 1),
			wantErr: ErrPerUserLimit,
		},
		{
			name: "per-user limit with headroom passes",
			repo: &mockCouponRepo{
				coupon: &Coupon{
					ID: "c1", Code: "TWICE", DiscountType: DiscountPercentage,
					Value: dec("10"), PerUserLimit: 2,
				},
				userUses: 1,
			},
			userID:     "u1",
			items:      singleItem("100.00", 1),
			wantAmount: dec("10.00"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewRepoValidator(tt.repo)
			v.now = func() time.Time { return fixedNow }

			got, err := v.Validate(context.Background(), "CODE", tt.userID, tt.items)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, got)
			assert.True(t, tt.wantAmount.Equal(got.Discount.Amount),
				"expected amount %s, got %s", tt.wantAmount, got.Discount.Amount)
			assert.Equal(t, tt.wantFreeShipping, got.Discount.FreeShipping)
			assert.Nil(t, tt.repo.lastUsage, "validation must not record usage")
		})
	}
}

func TestRepoValidator_AnonymousSkipsPerUserCheck(t *testing.T) {
	repo := &mockCouponRepo{
		coupon: &Coupon{
			ID: "c1", Code: "ONCE", DiscountType: DiscountFixedAmount,
			Value: dec("5"), PerUserLimit: 1,
		},
		userUses: 99,
	}

	v := NewRepoValidator(repo)
	got, err := v.Validate(context.Background(), "ONCE", "", singleItem("20.00", 1))

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, repo.countedFor, "anonymous validation must not query per-user usage")
}

func TestRepoValidator_RepoErrorPropagates(t *testing.T) {
	repo := &mockCouponRepo{err: errors.New("db down")}

	v := NewRepoValidator(repo)
	_, err := v.Validate(context.Background(), "ANY", "", singleItem("20.00", 1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup coupon")
}
