package memory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/failure"
)

var _ dispute.Repository = (*DisputeRepository)(nil)

// DisputeRepository implements dispute.Repository on a Store.
type DisputeRepository struct{ s *Store }

func copyDispute(d *dispute.Dispute) *dispute.Dispute {
	cp := *d
	if d.Resolution != nil {
		res := *d.Resolution
		cp.Resolution = &res
	}
	return &cp
}

func (r *DisputeRepository) Create(ctx context.Context, d *dispute.Dispute) error {
	st, done := r.s.view(ctx)
	defer done()

	for _, cur := range st.disputes {
		if cur.OrderID == d.OrderID && !cur.Status.Terminal() {
			return dispute.ErrDuplicateDispute
		}
	}
	st.disputes[d.ID] = copyDispute(d)
	return nil
}

func (r *DisputeRepository) Get(ctx context.Context, id string) (*dispute.Dispute, error) {
	st, done := r.s.view(ctx)
	defer done()

	d, ok := st.disputes[id]
	if !ok {
		return nil, dispute.ErrNotFound
	}
	return copyDispute(d), nil
}

// GetForUpdate is Get: units of work already run one at a time.
func (r *DisputeRepository) GetForUpdate(ctx context.Context, id string) (*dispute.Dispute, error) {
	return r.Get(ctx, id)
}

func (r *DisputeRepository) Update(ctx context.Context, d *dispute.Dispute) error {
	st, done := r.s.view(ctx)
	defer done()

	cur, ok := st.disputes[d.ID]
	if !ok {
		return dispute.ErrNotFound
	}
	if cur.Version != d.Version {
		return errors.Wrapf(failure.ErrConcurrencyConflict, "dispute %s", d.ID)
	}
	d.Version++
	st.disputes[d.ID] = copyDispute(d)
	return nil
}

func (r *DisputeRepository) FindOpenByOrder(ctx context.Context, orderID string) (*dispute.Dispute, error) {
	st, done := r.s.view(ctx)
	defer done()

	for _, d := range st.disputes {
		if d.OrderID == orderID && !d.Status.Terminal() {
			return copyDispute(d), nil
		}
	}
	return nil, dispute.ErrNotFound
}
