// Command seed-db runs migrations and loads demo coupons, promotions, and an
// admin API key into the database. Safe to run repeatedly: every write is an
// upsert.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/avelios/promo-service/internal/domain/auth"
	"github.com/avelios/promo-service/internal/domain/coupon"
	"github.com/avelios/promo-service/internal/domain/promo"
	"github.com/avelios/promo-service/internal/repository"
)

func main() {
	var (
		databaseURL  string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or PROMO_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or PROMO_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("PROMO_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or PROMO_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("PROMO_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCoupons(ctx, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedPromotions(ctx, repository.NewPromotionRepository(pool)); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedAPIKey(ctx, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding demo coupons")

	coupons := []coupon.Coupon{
		{
			Code:         "SAVE10",
			DiscountType: coupon.DiscountPercentage,
			Value:        decimal.NewFromInt(10),
			MaxDiscount:  decPtr("25.00"),
			PerUserLimit: 1,
			Active:       true,
		},
		{
			Code:         "WELCOME5",
			DiscountType: coupon.DiscountFixedAmount,
			Value:        decimal.NewFromInt(5),
			MinPurchase:  decPtr("20.00"),
			UsageLimit:   1000,
			PerUserLimit: 1,
			Active:       true,
		},
		{
			Code:         "SHIPFREE",
			DiscountType: coupon.DiscountFreeShipping,
			Value:        decimal.Zero,
			MinPurchase:  decPtr("50.00"),
			Active:       true,
		},
	}

	for _, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code))
	}

	return nil
}

// Fixed ids so repeated seeding updates rather than duplicates.
const (
	booksPromoID = "8f5a1c0e-0d3f-4a67-9b28-2e4a5f6c7d81"
	bogoPromoID  = "3b9e2d71-64c8-4f0a-8c55-1d7e8a9b0c42"
	flashPromoID = "c1d2e3f4-a5b6-4c7d-8e9f-0a1b2c3d4e5f"
)

func seedPromotions(ctx context.Context, repo *repository.PromotionRepository) error {
	slog.Info("seeding demo promotions")

	promotions := []promo.Promotion{
		{
			ID:           booksPromoID,
			Name:         "Books 15% off",
			Description:  "15% off everything in the books category",
			Type:         promo.TypeCategoryDiscount,
			DiscountType: promo.DiscountPercentage,
			Value:        decimal.NewFromInt(15),
			Rules:        promo.CategoryDiscountRules{CategoryID: "books"},
			Priority:     10,
			Active:       true,
		},
		{
			ID:           bogoPromoID,
			Name:         "Buy 2 get 1 coffee",
			Description:  "Every third bag of coffee is free",
			Type:         promo.TypeBuyXGetY,
			DiscountType: promo.DiscountFixed,
			Value:        decimal.Zero,
			Rules:        promo.BuyXGetYRules{ProductID: "coffee-250g", BuyQuantity: 2, GetQuantity: 1},
			Priority:     5,
			Active:       true,
		},
		{
			ID:           flashPromoID,
			Name:         "Flash sale 5% off",
			Description:  "5% off the whole cart",
			Type:         promo.TypeFlashSale,
			DiscountType: promo.DiscountPercentage,
			Value:        decimal.NewFromInt(5),
			Rules:        promo.FlashSaleRules{},
			Priority:     1,
			Active:       true,
		},
	}

	for i := range promotions {
		if err := repo.Upsert(ctx, &promotions[i]); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", promotions[i].Name)
		}
		slog.Info("upserted promotion", slog.String("name", promotions[i].Name))
	}

	return nil
}

func seedAPIKey(ctx context.Context, repo *repository.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	err := repo.Upsert(ctx, auth.APIKeyInfo{
		KeyHash: keyHash,
		Name:    "Default admin key",
		Scopes:  []string{"manage_promotions"},
	})
	if err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("name", "Default admin key"))
	return nil
}
