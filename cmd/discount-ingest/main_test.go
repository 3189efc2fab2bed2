package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/storage/memory"
)

func writeFeed(t *testing.T, dir, name string, codes ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(codes, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestCollectCodes(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeFeed(t, dir, "a.gz", "SUMMER24", "bike2024", "ONLYINA1", "abc"),
		writeFeed(t, dir, "b.gz", "summer24", "TENT2024", "ONLYINB1"),
		writeFeed(t, dir, "c.gz", " BIKE2024 ", "TENT2024", "SUMMER24"),
	}
	lg := zaptest.NewLogger(t)

	tests := []struct {
		name     string
		minFeeds int
		want     []string
	}{
		{name: "TwoFeeds", minFeeds: 2, want: []string{"BIKE2024", "SUMMER24", "TENT2024"}},
		{name: "AllFeeds", minFeeds: 3, want: []string{"SUMMER24"}},
		{name: "AnyFeed", minFeeds: 1, want: []string{"BIKE2024", "ONLYINA1", "ONLYINB1", "SUMMER24", "TENT2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectCodes(context.Background(), lg, files, tt.minFeeds)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCollectCodes_NotEnoughFeeds(t *testing.T) {
	dir := t.TempDir()
	files := []string{writeFeed(t, dir, "a.gz", "SUMMER24")}

	_, err := collectCodes(context.Background(), zaptest.NewLogger(t), files, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "need at least 2")

	_, err = collectCodes(context.Background(), zaptest.NewLogger(t), files, 0)
	require.Error(t, err)
}

func TestCampaignTemplate(t *testing.T) {
	valid := campaign{Type: "percent", Value: "15", MaxAmount: "20000", UsageLimit: 1}

	d, err := valid.template()
	require.NoError(t, err)
	assert.Equal(t, discount.TypePercent, d.Type)
	assert.True(t, d.Value.Equal(decimal.NewFromInt(15)))
	require.True(t, d.MaxDiscountAmount.Valid)
	assert.True(t, d.MaxDiscountAmount.Decimal.Equal(decimal.NewFromInt(20000)))
	assert.False(t, d.MinOrderAmount.Valid)
	assert.True(t, d.Active)
	assert.True(t, d.IsPublic)

	tests := []struct {
		name   string
		modify func(c *campaign)
	}{
		{name: "UnknownType", modify: func(c *campaign) { c.Type = "bogo" }},
		{name: "PercentOver100", modify: func(c *campaign) { c.Value = "101" }},
		{name: "ZeroFixed", modify: func(c *campaign) { c.Type, c.Value = "fixed", "0" }},
		{name: "BadValue", modify: func(c *campaign) { c.Value = "ten" }},
		{name: "NegativeLimit", modify: func(c *campaign) { c.UsageLimit = -1 }},
		{name: "BadStart", modify: func(c *campaign) { c.StartAt = "tomorrow" }},
		{
			name: "EndBeforeStart",
			modify: func(c *campaign) {
				c.StartAt, c.EndAt = "2026-02-01T00:00:00Z", "2026-01-01T00:00:00Z"
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.modify(&c)
			_, err := c.template()
			require.Error(t, err)
		})
	}
}

func TestWriteDiscounts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := store.Discounts()

	tmpl, err := campaign{Type: "fixed", Value: "5000", UsageLimit: 1, Description: "Partner"}.template()
	require.NoError(t, err)

	codes := []string{"BIKE2024", "SUMMER24", "TENT2024"}
	require.NoError(t, writeDiscounts(ctx, zaptest.NewLogger(t), repo, tmpl, codes, 2))

	for _, code := range codes {
		d, err := repo.FindByCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, discount.TypeFixed, d.Type)
		assert.Equal(t, 1, d.UsageLimit)
		assert.Equal(t, "Partner", d.Description)
	}

	// A re-import keeps the usage count.
	_, err = repo.IncrementUsage(ctx, "BIKE2024")
	require.NoError(t, err)
	require.NoError(t, writeDiscounts(ctx, zaptest.NewLogger(t), repo, tmpl, codes[:1], 1))

	d, err := repo.FindByCode(ctx, "BIKE2024")
	require.NoError(t, err)
	assert.Equal(t, 1, d.UsedCount)
}
