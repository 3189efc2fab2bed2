package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/failure"
)

const contractColumns = `id, order_id, owner_id, renter_id, content, signed_by_owner, signed_by_renter,
	signatures, status, version, created_at, updated_at`

const (
	createContractSQL = `INSERT INTO contracts (` + contractColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getContractByOrderSQL = `SELECT ` + contractColumns + ` FROM contracts WHERE order_id = $1`

	updateContractSQL = `UPDATE contracts SET
			signed_by_owner = $3, signed_by_renter = $4, signatures = $5, status = $6,
			updated_at = $7, version = version + 1
		WHERE order_id = $1 AND version = $2`
)

var _ contract.Repository = (*ContractRepository)(nil)

// ContractRepository implements contract.Repository backed by PostgreSQL.
type ContractRepository struct {
	db *DB
}

func (r *ContractRepository) Create(ctx context.Context, c *contract.Contract) error {
	sigs, err := marshalSignatures(c.Signatures)
	if err != nil {
		return err
	}

	_, err = r.db.conn(ctx).Exec(ctx, createContractSQL,
		c.ID, c.OrderID, c.OwnerID, c.RenterID, c.Content, c.SignedByOwner, c.SignedByRenter,
		sigs, string(c.Status), c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "create contract for order %s", c.OrderID)
	}
	return nil
}

func (r *ContractRepository) GetByOrder(ctx context.Context, orderID string) (*contract.Contract, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getContractByOrderSQL, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "query contract")
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanContract)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contract.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan contract")
	}
	return &c, nil
}

func (r *ContractRepository) Update(ctx context.Context, c *contract.Contract) error {
	sigs, err := marshalSignatures(c.Signatures)
	if err != nil {
		return err
	}

	tag, err := r.db.conn(ctx).Exec(ctx, updateContractSQL,
		c.OrderID, c.Version, c.SignedByOwner, c.SignedByRenter, sigs, string(c.Status), c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(mapErr(err), "update contract %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByOrder(ctx, c.OrderID); err != nil {
			return err
		}
		return errors.Wrapf(failure.ErrConcurrencyConflict, "contract %s", c.ID)
	}

	c.Version++
	return nil
}

func marshalSignatures(sigs []contract.Signature) ([]byte, error) {
	if sigs == nil {
		sigs = []contract.Signature{}
	}
	b, err := json.Marshal(sigs)
	if err != nil {
		return nil, errors.Wrap(err, "marshal signatures")
	}
	return b, nil
}

func scanContract(row pgx.CollectableRow) (contract.Contract, error) {
	var (
		c      contract.Contract
		sigs   []byte
		status string
	)
	err := row.Scan(
		&c.ID, &c.OrderID, &c.OwnerID, &c.RenterID, &c.Content, &c.SignedByOwner, &c.SignedByRenter,
		&sigs, &status, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}

	c.Status = contract.Status(status)
	if err := json.Unmarshal(sigs, &c.Signatures); err != nil {
		return c, errors.Wrap(err, "unmarshal signatures")
	}
	if len(c.Signatures) == 0 {
		c.Signatures = nil
	}
	return c, nil
}
