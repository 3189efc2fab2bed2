package contract

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/txn"
)

type passRunner struct{}

func (passRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockContractRepo struct {
	mu        sync.Mutex
	contracts map[string]*Contract
	updates   int
}

func newMockRepo() *mockContractRepo {
	return &mockContractRepo{contracts: make(map[string]*Contract)}
}

func (m *mockContractRepo) Create(_ context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.contracts[c.OrderID] = &cp
	return nil
}

func (m *mockContractRepo) GetByOrder(_ context.Context, orderID string) (*Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contracts[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Signatures = append([]Signature(nil), c.Signatures...)
	return &cp, nil
}

func (m *mockContractRepo) Update(_ context.Context, c *Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.contracts[c.OrderID]
	if cur.Version != c.Version {
		return failure.ErrConcurrencyConflict
	}
	c.Version++
	cp := *c
	m.contracts[c.OrderID] = &cp
	m.updates++
	return nil
}

func newTestManager(t *testing.T) (*Manager, *mockContractRepo) {
	t.Helper()
	repo := newMockRepo()
	m := NewManager(repo, passRunner{}, txn.DefaultPolicy())
	_, err := m.Issue(context.Background(), "o1", "owner", "renter", "terms")
	require.NoError(t, err)
	return m, repo
}

func TestSign_BothPartiesActivate(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	c, err := m.Sign(ctx, "o1", RoleOwner, "owner")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)

	active, err := m.IsActive(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, active)

	c, err = m.Sign(ctx, "o1", RoleRenter, "renter")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.Len(t, c.Signatures, 2)

	active, err = m.IsActive(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, active)
}

func TestSign_ResignIsNoop(t *testing.T) {
	m, repo := newTestManager(t)
	ctx := context.Background()

	_, err := m.Sign(ctx, "o1", RoleOwner, "owner")
	require.NoError(t, err)
	c, err := m.Sign(ctx, "o1", RoleOwner, "owner")
	require.NoError(t, err)

	assert.Len(t, c.Signatures, 1)
	assert.Equal(t, 1, repo.updates)
}

func TestSign_Errors(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Sign(ctx, "o1", "witness", "owner")
	require.ErrorIs(t, err, failure.ErrInvalidArgument)

	_, err = m.Sign(ctx, "o1", RoleOwner, "renter")
	require.ErrorIs(t, err, failure.ErrForbidden)

	_, err = m.Sign(ctx, "missing", RoleOwner, "owner")
	require.ErrorIs(t, err, failure.ErrNotFound)
}

func TestClose_NeverRegresses(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Close(ctx, "o1"))
	require.NoError(t, m.Close(ctx, "o1"))

	c, err := m.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, c.Status)

	_, err = m.Sign(ctx, "o1", RoleOwner, "owner")
	require.ErrorIs(t, err, failure.ErrInvalidStateTransition)

	active, err := m.IsActive(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, active, "closed unsigned contract")
}

func TestSign_ConcurrentBothParties(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, s := range []struct {
		role Role
		id   string
	}{{RoleOwner, "owner"}, {RoleRenter, "renter"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Sign(ctx, "o1", s.role, s.id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := m.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)
	assert.True(t, c.SignedByOwner)
	assert.True(t, c.SignedByRenter)
}
