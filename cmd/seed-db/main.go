package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/storage/postgres"
)

type itemJSON struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Title          string          `json:"title"`
	Images         []string        `json:"images"`
	BasePrice      decimal.Decimal `json:"base_price"`
	PriceUnit      string          `json:"price_unit"`
	DepositPerUnit decimal.Decimal `json:"deposit_per_unit"`
	Quantity       int             `json:"quantity"`
}

func main() {
	var (
		databaseURL string
		itemsFile   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&itemsFile, "items-file", "db/seed/items.json", "path to items JSON file")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, itemsFile); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}

	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, itemsFile string) error {
	lg.Info("Connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	lg.Info("Running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	db := postgres.New(pool)

	items, err := loadItems(itemsFile)
	if err != nil {
		return errors.Wrap(err, "load items")
	}
	if err := seedItems(ctx, lg, db.Items(), items); err != nil {
		return errors.Wrap(err, "seed items")
	}

	if err := seedDiscounts(ctx, lg, db.Discounts()); err != nil {
		return errors.Wrap(err, "seed discounts")
	}

	return nil
}

// loadItems reads and validates the seed listings.
func loadItems(path string) ([]item.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read items file")
	}

	var raw []itemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse items JSON")
	}

	now := time.Now()
	items := make([]item.Item, 0, len(raw))
	for _, r := range raw {
		it := item.Item{
			ID:                r.ID,
			OwnerID:           r.OwnerID,
			Title:             r.Title,
			Images:            r.Images,
			BasePrice:         r.BasePrice,
			PriceUnit:         item.PriceUnit(r.PriceUnit),
			DepositPerUnit:    r.DepositPerUnit,
			Quantity:          r.Quantity,
			AvailableQuantity: r.Quantity,
			Status:            item.StatusAvailable,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		switch {
		case it.ID == "" || it.OwnerID == "":
			return nil, errors.Errorf("item %q: id and owner_id are required", r.Title)
		case it.Quantity < 1:
			return nil, errors.Errorf("item %s: quantity must be at least 1", it.ID)
		case !it.BasePrice.IsPositive():
			return nil, errors.Errorf("item %s: base price must be positive", it.ID)
		}
		if _, err := it.PriceUnit.Duration(); err != nil {
			return nil, errors.Wrapf(err, "item %s", it.ID)
		}
		items = append(items, it)
	}
	return items, nil
}

type itemCreator interface {
	Create(ctx context.Context, it *item.Item) error
}

func seedItems(ctx context.Context, lg *zap.Logger, repo itemCreator, items []item.Item) error {
	lg.Info("Upserting items", zap.Int("count", len(items)))

	for i := range items {
		it := &items[i]
		if err := repo.Create(ctx, it); err != nil {
			return errors.Wrapf(err, "upsert item %s", it.ID)
		}
		lg.Info("Upserted item", zap.String("id", it.ID), zap.String("title", it.Title))
	}
	return nil
}

// demoDiscounts are the codes used in the API walkthrough.
func demoDiscounts() []discount.Discount {
	return []discount.Discount{
		{
			Code:              "WELCOME10",
			Type:              discount.TypePercent,
			Value:             decimal.NewFromInt(10),
			MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
			Active:            true,
			IsPublic:          true,
			Description:       "10% off your first rental, up to 20000",
		},
		{
			Code:           "BIKE5K",
			Type:           discount.TypeFixed,
			Value:          decimal.NewFromInt(5000),
			MinOrderAmount: decimal.NewNullDecimal(decimal.NewFromInt(50000)),
			UsageLimit:     100,
			ItemID:         "item-road-bike",
			Active:         true,
			IsPublic:       true,
			Description:    "5000 off road bike rentals over 50000",
		},
		{
			Code:         "BOBVIP",
			Type:         discount.TypePercent,
			Value:        decimal.NewFromInt(25),
			OwnerID:      "owner-bob",
			Active:       true,
			IsPublic:     false,
			AllowedUsers: []string{"renter-carol"},
			Description:  "Private 25% off Bob's listings",
		},
	}
}

func seedDiscounts(ctx context.Context, lg *zap.Logger, repo discount.Repository) error {
	lg.Info("Seeding demo discounts")

	for _, d := range demoDiscounts() {
		if err := repo.Upsert(ctx, &d); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.Code)
		}
		lg.Info("Upserted discount", zap.String("code", d.Code), zap.String("description", d.Description))
	}
	return nil
}
