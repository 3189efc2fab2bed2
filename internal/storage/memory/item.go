package memory

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/item"
)

var _ item.Repository = (*ItemRepository)(nil)

// ItemRepository implements item.Repository on a Store.
type ItemRepository struct{ s *Store }

func copyItem(it *item.Item) *item.Item {
	cp := *it
	cp.Images = slices.Clone(it.Images)
	return &cp
}

func (r *ItemRepository) Get(ctx context.Context, id string) (*item.Item, error) {
	st, done := r.s.view(ctx)
	defer done()

	it, ok := st.items[id]
	if !ok || it.Deleted {
		return nil, item.ErrNotFound
	}
	return copyItem(it), nil
}

func (r *ItemRepository) Create(ctx context.Context, it *item.Item) error {
	st, done := r.s.view(ctx)
	defer done()

	st.items[it.ID] = copyItem(it)
	return nil
}

func (r *ItemRepository) Reserve(ctx context.Context, id string, units int) (*item.Item, error) {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.items[id]
	if !ok || cur.Deleted {
		return nil, item.ErrNotFound
	}
	if cur.AvailableQuantity < units {
		return nil, errors.Wrapf(failure.ErrCapacityExceeded, "requested %d, available %d", units, cur.AvailableQuantity)
	}

	next := copyItem(cur)
	next.AvailableQuantity -= units
	next.Status = cur.StatusFor(next.AvailableQuantity)
	st.items[id] = next
	return copyItem(next), nil
}

func (r *ItemRepository) Release(ctx context.Context, id string, units int) (*item.Item, error) {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.items[id]
	if !ok {
		return nil, item.ErrNotFound
	}

	next := copyItem(cur)
	next.AvailableQuantity = min(cur.Quantity, cur.AvailableQuantity+units)
	next.Status = cur.StatusFor(next.AvailableQuantity)
	st.items[id] = next
	return copyItem(next), nil
}
