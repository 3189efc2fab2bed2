// Package core wires the domain services of the marketplace on top of a
// storage backend and a payment provider.
package core

import (
	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/ledger"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
	"github.com/xenking/rentkart/internal/storage/memory"
	"github.com/xenking/rentkart/internal/storage/postgres"
)

// Repositories is a storage backend.
type Repositories struct {
	Runner    txn.Runner
	Items     item.Repository
	Orders    order.Repository
	Contracts contract.Repository
	Ledger    ledger.Repository
	Discounts discount.Repository
	Disputes  dispute.Repository
}

// Memory returns the repositories of an in-memory store.
func Memory(s *memory.Store) Repositories {
	return Repositories{
		Runner:    s,
		Items:     s.Items(),
		Orders:    s.Orders(),
		Contracts: s.Contracts(),
		Ledger:    s.Ledger(),
		Discounts: s.Discounts(),
		Disputes:  s.Disputes(),
	}
}

// Postgres returns the repositories of a PostgreSQL database.
func Postgres(db *postgres.DB) Repositories {
	return Repositories{
		Runner:    db,
		Items:     db.Items(),
		Orders:    db.Orders(),
		Contracts: db.Contracts(),
		Ledger:    db.Ledger(),
		Discounts: db.Discounts(),
		Disputes:  db.Disputes(),
	}
}

// Core holds the domain services.
type Core struct {
	Items     item.Repository
	Discounts *discount.Evaluator
	Ledger    *ledger.Service
	Contracts *contract.Manager
	Orders    *order.Service
	Disputes  *dispute.Resolver
}

// New wires the services.
func New(repos Repositories, provider ledger.Provider, policy order.Policy) *Core {
	discounts := discount.NewEvaluator(repos.Discounts)
	ledgerSvc := ledger.NewService(repos.Ledger, provider, repos.Runner, policy.Retry)
	contracts := contract.NewManager(repos.Contracts, repos.Runner, policy.Retry)
	orders := order.NewService(
		repos.Orders,
		repos.Items,
		discounts,
		contracts,
		ledgerSvc,
		repos.Runner,
		policy,
	)

	return &Core{
		Items:     repos.Items,
		Discounts: discounts,
		Ledger:    ledgerSvc,
		Contracts: contracts,
		Orders:    orders,
		Disputes:  dispute.NewResolver(repos.Disputes, orders, repos.Runner, policy.Retry),
	}
}
