// Package postgres implements the domain repositories on PostgreSQL.
//
// Every repository resolves its connection through the context: inside
// DB.WithTx the transaction is used, otherwise the pool.
package postgres

import (
	"context"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/rentkart/db"
	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/txn"
)

// NewPool creates a pgxpool.Pool configured with shopspring/decimal support
// for NUMERIC columns.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse database config")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create connection pool")
	}

	return pool, nil
}

// RunMigrations executes the embedded DDL schema against the pool.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	return nil
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

var _ txn.Runner = (*DB)(nil)

// DB is the PostgreSQL storage backend.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a DB on top of pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// WithTx runs fn in a read-committed transaction. Nested calls join the
// outer transaction. Serialization failures and deadlocks are reported as
// failure.ErrConcurrencyConflict.
func (d *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapErr(errors.Wrap(err, "commit"))
	}
	return nil
}

func (d *DB) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.pool
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Items returns the item repository.
func (d *DB) Items() *ItemRepository { return &ItemRepository{db: d} }

// Orders returns the order repository.
func (d *DB) Orders() *OrderRepository { return &OrderRepository{db: d} }

// Contracts returns the contract repository.
func (d *DB) Contracts() *ContractRepository { return &ContractRepository{db: d} }

// Ledger returns the ledger repository.
func (d *DB) Ledger() *LedgerRepository { return &LedgerRepository{db: d} }

// Discounts returns the discount repository.
func (d *DB) Discounts() *DiscountRepository { return &DiscountRepository{db: d} }

// Disputes returns the dispute repository.
func (d *DB) Disputes() *DisputeRepository { return &DisputeRepository{db: d} }

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// mapErr translates PostgreSQL conflicts into domain failure kinds.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return errors.Wrap(failure.ErrConcurrencyConflict, pgErr.Message)
	case codeUniqueViolation:
		return errors.Wrap(failure.ErrDuplicateOperation, pgErr.ConstraintName)
	}
	return err
}
