package memory

import (
	"context"
	"slices"

	"github.com/xenking/rentkart/internal/domain/discount"
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository on a Store.
type DiscountRepository struct{ s *Store }

func copyDiscount(d *discount.Discount) *discount.Discount {
	cp := *d
	cp.AllowedUsers = slices.Clone(d.AllowedUsers)
	return &cp
}

func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Discount, error) {
	st, done := r.s.view(ctx)
	defer done()

	d, ok := st.discounts[discount.NormalizeCode(code)]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return copyDiscount(d), nil
}

func (r *DiscountRepository) IncrementUsage(ctx context.Context, code string) (*discount.Discount, error) {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.discounts[discount.NormalizeCode(code)]
	if !ok {
		return nil, discount.ErrNotFound
	}
	if cur.Exhausted() {
		return nil, discount.ErrUsageLimitReached
	}

	next := copyDiscount(cur)
	next.UsedCount++
	st.discounts[next.Code] = next
	return copyDiscount(next), nil
}

// Upsert stores d, keeping the usage count of an existing code.
func (r *DiscountRepository) Upsert(ctx context.Context, d *discount.Discount) error {
	st, done := r.s.view(ctx)
	defer done()

	next := copyDiscount(d)
	next.Code = discount.NormalizeCode(d.Code)
	if cur, ok := st.discounts[next.Code]; ok {
		next.UsedCount = cur.UsedCount
	}
	st.discounts[next.Code] = next
	return nil
}
