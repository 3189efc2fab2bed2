package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on a Store.
type OrderRepository struct{ s *Store }

func copyOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Snapshot.Images = slices.Clone(o.Snapshot.Images)
	cp.Reviews = slices.Clone(o.Reviews)
	if o.Condition != nil {
		c := *o.Condition
		cp.Condition = &c
	}
	return &cp
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	st, done := r.s.view(ctx)
	defer done()

	if _, ok := st.orders[o.ID]; ok {
		return errors.Wrapf(failure.ErrDuplicateOperation, "order %s exists", o.ID)
	}
	st.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	st, done := r.s.view(ctx)
	defer done()

	o, ok := st.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return copyOrder(o), nil
}

// GetForUpdate is Get: units of work already run one at a time.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*order.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if cur.Version != o.Version {
		return errors.Wrapf(failure.ErrConcurrencyConflict, "order %s version %d, have %d", o.ID, cur.Version, o.Version)
	}
	o.Version++
	st.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status, createdBefore time.Time, limit int) ([]order.Order, error) {
	st, done := r.s.view(ctx)
	defer done()

	var out []order.Order
	for _, o := range st.orders {
		if o.Status == status && o.CreatedAt.Before(createdBefore) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
