package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/rentkart/internal/domain/ledger"
)

const ledgerColumns = `id, seq, user_id, order_id, type, amount, status, balance_after,
	idempotency_key, provider_ref, failure_reason, created_at, settled_at`

const (
	lockAccountSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	findEntryByKeySQL = `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE idempotency_key = $1`

	balanceSQL = `SELECT balance_after FROM ledger_transactions
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY seq DESC
		LIMIT 1`

	createEntrySQL = `INSERT INTO ledger_transactions (
			id, user_id, order_id, type, amount, status, balance_after,
			idempotency_key, provider_ref, failure_reason, created_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq`

	reopenEntrySQL = `UPDATE ledger_transactions
		SET status = $2, failure_reason = '', created_at = $3, seq = nextval('ledger_seq')
		WHERE id = $1
		RETURNING seq`

	updateEntrySQL = `UPDATE ledger_transactions SET
			status = $2, balance_after = $3, provider_ref = $4, failure_reason = $5, settled_at = $6
		WHERE id = $1`

	listEntriesByUserSQL  = `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE user_id = $1 ORDER BY seq`
	listEntriesByOrderSQL = `SELECT ` + ledgerColumns + ` FROM ledger_transactions WHERE order_id = $1 ORDER BY seq`
)

var _ ledger.Repository = (*LedgerRepository)(nil)

// LedgerRepository implements ledger.Repository backed by PostgreSQL.
type LedgerRepository struct {
	db *DB
}

// LockAccount takes a transaction-scoped advisory lock on the user's
// account. It must run inside DB.WithTx.
func (r *LedgerRepository) LockAccount(ctx context.Context, userID string) error {
	if _, err := r.db.conn(ctx).Exec(ctx, lockAccountSQL, "ledger:"+userID); err != nil {
		return errors.Wrapf(mapErr(err), "lock account %s", userID)
	}
	return nil
}

func (r *LedgerRepository) FindByKey(ctx context.Context, key string) (*ledger.Transaction, error) {
	rows, err := r.db.conn(ctx).Query(ctx, findEntryByKeySQL, key)
	if err != nil {
		return nil, errors.Wrap(err, "query entry")
	}

	t, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan entry")
	}
	return &t, nil
}

func (r *LedgerRepository) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.conn(ctx).QueryRow(ctx, balanceSQL, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "balance of %s", userID)
	}
	return balance, nil
}

func (r *LedgerRepository) Create(ctx context.Context, t *ledger.Transaction) error {
	err := r.db.conn(ctx).QueryRow(ctx, createEntrySQL,
		t.ID, t.UserID, t.OrderID, string(t.Type), t.Amount, string(t.Status), t.BalanceAfter,
		t.IdempotencyKey, t.ProviderRef, t.FailureReason, t.CreatedAt, nullTime(t.SettledAt),
	).Scan(&t.Seq)
	if err != nil {
		return errors.Wrapf(mapErr(err), "create entry %q", t.IdempotencyKey)
	}
	return nil
}

func (r *LedgerRepository) Reopen(ctx context.Context, t *ledger.Transaction) error {
	err := r.db.conn(ctx).QueryRow(ctx, reopenEntrySQL, t.ID, string(t.Status), t.CreatedAt).Scan(&t.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(mapErr(err), "reopen entry %s", t.ID)
	}
	t.FailureReason = ""
	return nil
}

func (r *LedgerRepository) Update(ctx context.Context, t *ledger.Transaction) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updateEntrySQL,
		t.ID, string(t.Status), t.BalanceAfter, t.ProviderRef, t.FailureReason, nullTime(t.SettledAt),
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "update entry %s", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	return r.list(ctx, listEntriesByUserSQL, userID)
}

func (r *LedgerRepository) ListByOrder(ctx context.Context, orderID string) ([]ledger.Transaction, error) {
	return r.list(ctx, listEntriesByOrderSQL, orderID)
}

func (r *LedgerRepository) list(ctx context.Context, sql, arg string) ([]ledger.Transaction, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "list entries")
	}

	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, errors.Wrap(err, "scan entries")
	}
	return entries, nil
}

func scanEntry(row pgx.CollectableRow) (ledger.Transaction, error) {
	var (
		t           ledger.Transaction
		typ, status string
		settledAt   *time.Time
	)
	err := row.Scan(
		&t.ID, &t.Seq, &t.UserID, &t.OrderID, &typ, &t.Amount, &status, &t.BalanceAfter,
		&t.IdempotencyKey, &t.ProviderRef, &t.FailureReason, &t.CreatedAt, &settledAt,
	)
	t.Type = ledger.Type(typ)
	t.Status = ledger.Status(status)
	t.SettledAt = fromNullTime(settledAt)
	return t, err
}

// nullTime maps the zero time to SQL NULL.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func fromNullTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
