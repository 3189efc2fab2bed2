// Command discount-ingest imports campaign discount codes from partner feeds.
//
// Each feed is a gzip file with one code per line. A code is issued only
// when it appears in at least -min-feeds distinct feeds, which filters out
// typos and codes a single partner generated on its own. Feeds can hold
// hundreds of millions of lines, so membership across feeds is first
// estimated with one bloom filter per feed and then confirmed exactly for
// the surviving candidates.
package main

import (
	"bufio"
	"context"
	"flag"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 10_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
	// maxFeeds is bounded by the width of the per-code feed bitmask.
	maxFeeds = bits.UintSize
)

// campaign describes the discount every imported code receives.
type campaign struct {
	Type        string
	Value       string
	MaxAmount   string
	MinOrder    string
	UsageLimit  int
	StartAt     string
	EndAt       string
	OwnerID     string
	ItemID      string
	Description string
}

// template validates the campaign and returns the discount shared by all
// imported codes.
func (c campaign) template() (discount.Discount, error) {
	d := discount.Discount{
		Type:        discount.Type(c.Type),
		UsageLimit:  c.UsageLimit,
		OwnerID:     c.OwnerID,
		ItemID:      c.ItemID,
		Active:      true,
		IsPublic:    true,
		Description: c.Description,
	}

	var err error
	if d.Value, err = decimal.NewFromString(c.Value); err != nil {
		return d, errors.Wrap(err, "value")
	}
	switch d.Type {
	case discount.TypePercent:
		if d.Value.LessThanOrEqual(decimal.Zero) || d.Value.GreaterThan(decimal.NewFromInt(100)) {
			return d, errors.Errorf("percent value %s out of (0, 100]", d.Value)
		}
	case discount.TypeFixed:
		if !d.Value.IsPositive() {
			return d, errors.Errorf("fixed value %s must be positive", d.Value)
		}
	default:
		return d, errors.Errorf("unknown discount type %q", c.Type)
	}
	if c.UsageLimit < 0 {
		return d, errors.Errorf("usage limit %d must not be negative", c.UsageLimit)
	}
	if d.MaxDiscountAmount, err = optDecimal(c.MaxAmount); err != nil {
		return d, errors.Wrap(err, "max amount")
	}
	if d.MinOrderAmount, err = optDecimal(c.MinOrder); err != nil {
		return d, errors.Wrap(err, "min order")
	}
	if d.StartAt, err = optTime(c.StartAt); err != nil {
		return d, errors.Wrap(err, "start")
	}
	if d.EndAt, err = optTime(c.EndAt); err != nil {
		return d, errors.Wrap(err, "end")
	}
	if !d.StartAt.IsZero() && !d.EndAt.IsZero() && !d.StartAt.Before(d.EndAt) {
		return d, errors.New("start must be before end")
	}
	return d, nil
}

func optDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(v), nil
}

func optTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// fileResult holds candidate codes found in a single feed during pass 2.
type fileResult struct {
	candidates map[string]uint
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
		minFeeds    int
		workers     int
		c           campaign
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing partner feeds")
	flag.StringVar(&pattern, "pattern", "*.gz", "glob of feed files inside data-dir")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&minFeeds, "min-feeds", 2, "feeds a code must appear in to be issued")
	flag.IntVar(&workers, "workers", 8, "concurrent database writers")
	flag.StringVar(&c.Type, "type", string(discount.TypePercent), "discount type: percent or fixed")
	flag.StringVar(&c.Value, "value", "10", "percent or fixed amount")
	flag.StringVar(&c.MaxAmount, "max-amount", "", "cap for percent discounts")
	flag.StringVar(&c.MinOrder, "min-order", "", "minimum rental subtotal")
	flag.IntVar(&c.UsageLimit, "usage-limit", 1, "redemptions per code, 0 for unlimited")
	flag.StringVar(&c.StartAt, "start", "", "validity start (RFC3339)")
	flag.StringVar(&c.EndAt, "end", "", "validity end (RFC3339)")
	flag.StringVar(&c.OwnerID, "owner", "", "restrict codes to items of this owner")
	flag.StringVar(&c.ItemID, "item", "", "restrict codes to this item")
	flag.StringVar(&c.Description, "description", "Partner campaign", "description shown to renters")
	flag.Parse()

	lg, err := zap.NewProduction()
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

	if err := run(ctx, lg, dataDir, pattern, databaseURL, minFeeds, workers, c); err != nil {
		lg.Fatal("Discount ingest failed", zap.Error(err))
	}

	lg.Info("Discount ingest completed")
}

func run(ctx context.Context, lg *zap.Logger, dataDir, pattern, databaseURL string, minFeeds, workers int, c campaign) error {
	tmpl, err := c.template()
	if err != nil {
		return errors.Wrap(err, "campaign")
	}

	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	sort.Strings(files)

	codes, err := collectCodes(ctx, lg, files, minFeeds)
	if err != nil {
		return err
	}
	lg.Info("Codes selected", zap.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return writeDiscounts(ctx, lg, postgres.New(pool).Discounts(), tmpl, codes, workers)
}

// collectCodes returns the normalized codes that appear in at least
// minFeeds of files.
func collectCodes(ctx context.Context, lg *zap.Logger, files []string, minFeeds int) ([]string, error) {
	switch {
	case minFeeds < 1:
		return nil, errors.Errorf("min feeds %d must be at least 1", minFeeds)
	case len(files) < minFeeds:
		return nil, errors.Errorf("found %d feeds, need at least %d", len(files), minFeeds)
	case len(files) > maxFeeds:
		return nil, errors.Errorf("found %d feeds, at most %d supported", len(files), maxFeeds)
	}

	// Pass 1: Build bloom filters concurrently.
	lg.Info("Pass 1: building bloom filters", zap.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, lg, files)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find candidate codes that may appear in enough feeds.
	lg.Info("Pass 2: finding candidate codes")

	codes, err := findValidCodes(ctx, lg, files, filters, minFeeds)
	if err != nil {
		return nil, errors.Wrap(err, "find valid codes")
	}
	return codes, nil
}

// buildBloomFilters creates one bloom filter per file, concurrently. Each
// filter is sized from the file's line count estimate.
func buildBloomFilters(ctx context.Context, lg *zap.Logger, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, lg, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, lg *zap.Logger, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		// Count first so small feeds get small filters.
		var total uint
		if err := streamGzFile(ctx, path, func(string) { total++ }); err != nil {
			return errors.Wrapf(err, "count file %s", path)
		}

		filter := bloom.NewWithEstimates(max(total, 1), bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			filter.AddString(code)
			count++
			if count%progressEvery == 0 {
				lg.Info("Pass 1 progress", zap.String("file", path), zap.Uint64("codes", count))
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for %s", path)
		}

		lg.Info("Pass 1 complete", zap.String("file", path), zap.Uint64("total_codes", count))

		filters[idx] = filter
		return nil
	}
}

// findValidCodes re-streams each file and checks codes against the other
// files' bloom filters. Each file only sets its own bit, so the merged mask
// counts feeds exactly and bloom false positives never produce a code.
func findValidCodes(ctx context.Context, lg *zap.Logger, files []string, filters []*bloom.BloomFilter, minFeeds int) ([]string, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findCandidatesInFile(ctx, lg, i, f, filters, minFeeds, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all files.
	merged := make(map[string]uint)
	for _, r := range results {
		for code, mask := range r.candidates {
			merged[code] |= mask
		}
	}

	var valid []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= minFeeds {
			valid = append(valid, code)
		}
	}
	sort.Strings(valid)

	return valid, nil
}

func findCandidatesInFile(
	ctx context.Context,
	lg *zap.Logger,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	minFeeds int,
	results []fileResult,
) func() error {
	return func() error {
		candidates := make(map[string]uint)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			count++
			if count%progressEvery == 0 {
				lg.Info("Pass 2 progress", zap.String("file", path), zap.Uint64("codes", count))
			}

			seen := 1
			for j, f := range filters {
				if j != idx && f.TestString(code) {
					seen++
				}
			}
			if seen >= minFeeds {
				candidates[code] |= fileBit
			}
		}); err != nil {
			return errors.Wrapf(err, "scan %s for candidates", path)
		}

		lg.Info("Pass 2 complete",
			zap.String("file", path),
			zap.Uint64("total_codes", count),
			zap.Int("candidates", len(candidates)),
		)

		results[idx] = fileResult{candidates: candidates}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each
// normalized code of acceptable length.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := discount.NormalizeCode(scanner.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeDiscounts upserts every code with the campaign template. Usage
// counts of codes imported earlier are kept.
func writeDiscounts(ctx context.Context, lg *zap.Logger, repo discount.Repository, tmpl discount.Discount, codes []string, workers int) error {
	lg.Info("Writing discounts", zap.Int("count", len(codes)), zap.Int("workers", workers))

	var written atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, code := range codes {
		g.Go(func() error {
			d := tmpl
			d.Code = code
			if err := repo.Upsert(ctx, &d); err != nil {
				return errors.Wrapf(err, "upsert discount %s", code)
			}
			if n := written.Add(1); n%1000 == 0 || int(n) == len(codes) {
				lg.Info("Write progress", zap.Int64("written", n), zap.Int("total", len(codes)))
			}
			return nil
		})
	}
	return g.Wait()
}
