package memory

import (
	"context"
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements ledger.Repository on a Store.
type LedgerRepository struct{ s *Store }

func copyEntry(t *ledger.Transaction) *ledger.Transaction {
	cp := *t
	return &cp
}

// LockAccount is a no-op: units of work already run one at a time.
func (r *LedgerRepository) LockAccount(context.Context, string) error {
	return nil
}

func (r *LedgerRepository) FindByKey(ctx context.Context, key string) (*ledger.Transaction, error) {
	st, done := r.s.view(ctx)
	defer done()

	for _, t := range st.entries {
		if t.IdempotencyKey == key {
			return copyEntry(t), nil
		}
	}
	return nil, ledger.ErrNotFound
}

func (r *LedgerRepository) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	st, done := r.s.view(ctx)
	defer done()

	var latest *ledger.Transaction
	for _, t := range st.entries {
		if t.UserID != userID || t.Status != ledger.StatusCompleted {
			continue
		}
		if latest == nil || t.Seq > latest.Seq {
			latest = t
		}
	}
	if latest == nil {
		return decimal.Zero, nil
	}
	return latest.BalanceAfter, nil
}

func (r *LedgerRepository) Create(ctx context.Context, t *ledger.Transaction) error {
	st, done := r.s.view(ctx)
	defer done()

	for _, e := range st.entries {
		if e.IdempotencyKey == t.IdempotencyKey {
			return errors.Wrapf(failure.ErrDuplicateOperation, "idempotency key %q", t.IdempotencyKey)
		}
	}
	st.seq++
	t.Seq = st.seq
	st.entries[t.ID] = copyEntry(t)
	return nil
}

func (r *LedgerRepository) Reopen(ctx context.Context, t *ledger.Transaction) error {
	st, done := r.s.view(ctx)
	defer done()

	if _, ok := st.entries[t.ID]; !ok {
		return ledger.ErrNotFound
	}
	st.seq++
	t.Seq = st.seq
	st.entries[t.ID] = copyEntry(t)
	return nil
}

func (r *LedgerRepository) Update(ctx context.Context, t *ledger.Transaction) error {
	st, done := r.s.view(ctx)
	defer done()

	if _, ok := st.entries[t.ID]; !ok {
		return ledger.ErrNotFound
	}
	st.entries[t.ID] = copyEntry(t)
	return nil
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	return r.list(ctx, func(t *ledger.Transaction) bool { return t.UserID == userID })
}

func (r *LedgerRepository) ListByOrder(ctx context.Context, orderID string) ([]ledger.Transaction, error) {
	return r.list(ctx, func(t *ledger.Transaction) bool { return t.OrderID == orderID })
}

func (r *LedgerRepository) list(ctx context.Context, match func(*ledger.Transaction) bool) ([]ledger.Transaction, error) {
	st, done := r.s.view(ctx)
	defer done()

	var out []ledger.Transaction
	for _, t := range st.entries {
		if match(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
