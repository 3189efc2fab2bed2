//go:build integration

package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/xenking/rentkart/internal/core"
	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/ledger"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
	"github.com/xenking/rentkart/internal/payment"
	"github.com/xenking/rentkart/internal/storage/postgres"
)

const (
	owner  = "owner-1"
	renter = "renter-1"
)

var db *postgres.DB

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("rentkart"),
		tcpostgres.WithUsername("rentkart"),
		tcpostgres.WithPassword("rentkart"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		panic(err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		panic(err)
	}
	db = postgres.New(pool)

	code := m.Run()

	pool.Close()
	_ = testcontainers.TerminateContainer(container)
	os.Exit(code)
}

func newCore(t *testing.T) (*core.Core, *payment.Sandbox) {
	t.Helper()
	policy := order.DefaultPolicy()
	policy.Retry = txn.Policy{Attempts: 5, InitialInterval: 5 * time.Millisecond}
	sandbox := payment.NewSandbox()
	return core.New(core.Postgres(db), sandbox, policy), sandbox
}

func addItem(t *testing.T, c *core.Core, id string, quantity int) {
	t.Helper()
	require.NoError(t, c.Items.Create(context.Background(), &item.Item{
		ID:                id,
		OwnerID:           owner,
		Title:             "Camping tent",
		Images:            []string{"tent.jpg"},
		BasePrice:         decimal.NewFromInt(100000),
		PriceUnit:         item.PerDay,
		DepositPerUnit:    decimal.NewFromInt(50000),
		Quantity:          quantity,
		AvailableQuantity: quantity,
		Status:            item.StatusAvailable,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}))
}

func window() (time.Time, time.Time) {
	start := time.Now().Add(72 * time.Hour).Truncate(time.Hour).UTC()
	return start, start.Add(72 * time.Hour)
}

func TestLifecycle(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()
	addItem(t, c, "tent-lifecycle", 2)

	require.NoError(t, db.Discounts().Upsert(ctx, &discount.Discount{
		Code:              "CAMP10",
		Type:              discount.TypePercent,
		Value:             decimal.NewFromInt(10),
		MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(20000)),
		Active:            true,
		IsPublic:          true,
	}))

	start, end := window()
	o, err := c.Orders.Create(ctx, order.CreateRequest{
		RenterID:     renter,
		ItemID:       "tent-lifecycle",
		UnitCount:    1,
		StartAt:      start,
		EndAt:        end,
		DiscountCode: "camp10",
	})
	require.NoError(t, err)
	assert.True(t, o.DiscountAmount.Equal(decimal.NewFromInt(20000)))
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(330000)))

	it, err := c.Items.Get(ctx, "tent-lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 1, it.AvailableQuantity)

	o, err = c.Orders.ConfirmPayment(ctx, o.ID, o.TotalAmount)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	_, err = c.Contracts.Sign(ctx, o.ID, contract.RoleOwner, owner)
	require.NoError(t, err)
	k, err := c.Contracts.Sign(ctx, o.ID, contract.RoleRenter, renter)
	require.NoError(t, err)
	assert.Equal(t, contract.StatusActive, k.Status)
	assert.Len(t, k.Signatures, 2)

	o, err = c.Orders.Start(ctx, o.ID)
	require.NoError(t, err)
	o, err = c.Orders.Complete(ctx, o.ID, order.ConditionReport{Condition: "good"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, o.Status)
	require.NotNil(t, o.Condition)

	entries, err := c.Ledger.OrderEntries(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.TypePayment, entries[0].Type)
	assert.Equal(t, ledger.TypeRefund, entries[1].Type)
	assert.Less(t, entries[0].Seq, entries[1].Seq)

	balance, err := c.Ledger.BalanceOf(ctx, renter)
	require.NoError(t, err)
	assert.True(t, balance.GreaterThan(decimal.Zero))

	it, err = c.Items.Get(ctx, "tent-lifecycle")
	require.NoError(t, err)
	assert.Equal(t, 2, it.AvailableQuantity)
}

func TestConcurrentReservations(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()
	addItem(t, c, "tent-race", 3)
	start, end := window()

	const attempts = 12
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		exceeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Orders.Create(ctx, order.CreateRequest{
				RenterID:  renter,
				ItemID:    "tent-race",
				UnitCount: 1,
				StartAt:   start,
				EndAt:     end,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, failure.ErrCapacityExceeded):
				exceeded++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, created)
	assert.Equal(t, attempts-3, exceeded)

	it, err := c.Items.Get(ctx, "tent-race")
	require.NoError(t, err)
	assert.Equal(t, 0, it.AvailableQuantity)
	assert.Equal(t, item.StatusRented, it.Status)
}

func TestConcurrentRedemptions(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()
	require.NoError(t, db.Discounts().Upsert(ctx, &discount.Discount{
		Code:       "LIMITED",
		Type:       discount.TypeFixed,
		Value:      decimal.NewFromInt(1000),
		UsageLimit: 4,
		Active:     true,
		IsPublic:   true,
	}))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		redeemed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Discounts.Redeem(ctx, discount.Request{
				Code:       "LIMITED",
				BaseAmount: decimal.NewFromInt(10000),
				UserID:     renter,
				OwnerID:    owner,
				ItemID:     "any",
			})
			if err == nil {
				mu.Lock()
				redeemed++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, discount.ErrUsageLimitReached)
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, redeemed)
	d, err := db.Discounts().FindByCode(ctx, "limited")
	require.NoError(t, err)
	assert.Equal(t, 4, d.UsedCount)
}

func TestLedgerRetryAfterProviderFailure(t *testing.T) {
	c, sandbox := newCore(t)
	ctx := context.Background()
	addItem(t, c, "tent-flaky", 1)
	start, end := window()

	o, err := c.Orders.Create(ctx, order.CreateRequest{
		RenterID: renter, ItemID: "tent-flaky", UnitCount: 1, StartAt: start, EndAt: end,
	})
	require.NoError(t, err)

	sandbox.FailNext(10)
	_, err = c.Orders.ConfirmPayment(ctx, o.ID, o.TotalAmount)
	require.ErrorIs(t, err, failure.ErrProviderFailure)

	o, err = c.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentFailed, o.PaymentStatus)

	sandbox.FailNext(0)
	o, err = c.Orders.ConfirmPayment(ctx, o.ID, o.TotalAmount)
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, o.Status)

	entries, err := c.Ledger.OrderEntries(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.StatusCompleted, entries[0].Status)
}

func TestDisputeResolvedOnce(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()
	addItem(t, c, "tent-dispute", 1)
	start, end := window()

	o, err := c.Orders.Create(ctx, order.CreateRequest{
		RenterID: renter, ItemID: "tent-dispute", UnitCount: 1, StartAt: start, EndAt: end,
	})
	require.NoError(t, err)
	o, err = c.Orders.ConfirmPayment(ctx, o.ID, o.TotalAmount)
	require.NoError(t, err)

	d, err := c.Disputes.Open(ctx, o.ID, renter, "item never delivered")
	require.NoError(t, err)
	_, err = c.Disputes.Open(ctx, o.ID, owner, "second")
	require.ErrorIs(t, err, dispute.ErrDuplicateDispute)

	refund := decimal.NewFromInt(100000)
	for range 2 {
		d, err = c.Disputes.Resolve(ctx, d.ID, order.DecisionPartialRefund, refund, "half")
		require.NoError(t, err)
	}
	assert.Equal(t, dispute.StatusResolved, d.Status)
	require.NotNil(t, d.Resolution)
	assert.True(t, d.Resolution.RefundAmount.Equal(refund))

	entries, err := c.Ledger.OrderEntries(ctx, o.ID)
	require.NoError(t, err)
	refunds := 0
	for _, e := range entries {
		if e.Type == ledger.TypeRefund {
			refunds++
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestConcurrentDisputeOpen(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()
	addItem(t, c, "tent-dispute-race", 1)
	start, end := window()

	o, err := c.Orders.Create(ctx, order.CreateRequest{
		RenterID: renter, ItemID: "tent-dispute-race", UnitCount: 1, StartAt: start, EndAt: end,
	})
	require.NoError(t, err)
	o, err = c.Orders.ConfirmPayment(ctx, o.ID, o.TotalAmount)
	require.NoError(t, err)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		opened     int
		duplicates int
	)
	for i := 0; i < 8; i++ {
		reporter := renter
		if i%2 == 1 {
			reporter = owner
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Disputes.Open(ctx, o.ID, reporter, "race")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				opened++
			case errors.Is(err, dispute.ErrDuplicateDispute):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, opened)
	assert.Equal(t, 7, duplicates)

	o, err = c.Orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDisputed, o.Status)
}
