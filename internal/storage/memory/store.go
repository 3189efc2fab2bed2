// Package memory implements every domain repository on an in-process
// store. Units of work run one at a time against a copy of the data that
// replaces the committed data only when the unit succeeds.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/rentkart/internal/domain/contract"
	"github.com/xenking/rentkart/internal/domain/discount"
	"github.com/xenking/rentkart/internal/domain/dispute"
	"github.com/xenking/rentkart/internal/domain/item"
	"github.com/xenking/rentkart/internal/domain/ledger"
	"github.com/xenking/rentkart/internal/domain/order"
	"github.com/xenking/rentkart/internal/domain/txn"
)

var _ txn.Runner = (*Store)(nil)

type state struct {
	items     map[string]*item.Item
	orders    map[string]*order.Order
	contracts map[string]*contract.Contract
	entries   map[string]*ledger.Transaction
	seq       int64
	discounts map[string]*discount.Discount
	disputes  map[string]*dispute.Dispute
}

func newState() *state {
	return &state{
		items:     make(map[string]*item.Item),
		orders:    make(map[string]*order.Order),
		contracts: make(map[string]*contract.Contract),
		entries:   make(map[string]*ledger.Transaction),
		discounts: make(map[string]*discount.Discount),
		disputes:  make(map[string]*dispute.Dispute),
	}
}

// clone copies the maps. Entities are replaced, never mutated in place, so
// sharing the pointers between the copies is safe.
func (s *state) clone() *state {
	return &state{
		items:     cloneMap(s.items),
		orders:    cloneMap(s.orders),
		contracts: cloneMap(s.contracts),
		entries:   cloneMap(s.entries),
		seq:       s.seq,
		discounts: cloneMap(s.discounts),
		disputes:  cloneMap(s.disputes),
	}
}

func cloneMap[V any](m map[string]*V) map[string]*V {
	out := make(map[string]*V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type txKey struct{}

// Store holds all entities in memory.
type Store struct {
	mu   sync.Mutex
	data *state
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// WithTx runs fn as one unit of work. Nested calls join the outer unit.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

// view returns the state visible to ctx: the unit of work's copy, or the
// committed data under the store lock. The returned function releases the
// lock and must always be called.
func (s *Store) view(ctx context.Context) (*state, func()) {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return st, func() {}
	}
	s.mu.Lock()
	return s.data, s.mu.Unlock
}

// Items returns the item repository.
func (s *Store) Items() *ItemRepository { return &ItemRepository{s: s} }

// Orders returns the order repository.
func (s *Store) Orders() *OrderRepository { return &OrderRepository{s: s} }

// Contracts returns the contract repository.
func (s *Store) Contracts() *ContractRepository { return &ContractRepository{s: s} }

// Ledger returns the ledger repository.
func (s *Store) Ledger() *LedgerRepository { return &LedgerRepository{s: s} }

// Discounts returns the discount repository.
func (s *Store) Discounts() *DiscountRepository { return &DiscountRepository{s: s} }

// Disputes returns the dispute repository.
func (s *Store) Disputes() *DisputeRepository { return &DisputeRepository{s: s} }
