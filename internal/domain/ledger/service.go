package ledger

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/rentkart/internal/domain/failure"
	"github.com/xenking/rentkart/internal/domain/txn"
)

// Service posts ledger entries and settles them against the payment
// provider.
type Service struct {
	repo     Repository
	provider Provider
	runner   txn.Runner
	retry    txn.Policy
	now      func() time.Time

	tracer   trace.Tracer
	postings metric.Int64Counter
}

// NewService creates a ledger Service.
func NewService(repo Repository, provider Provider, runner txn.Runner, retry txn.Policy) *Service {
	postings, _ := otel.Meter("rentkart/ledger").Int64Counter("ledger.postings",
		metric.WithDescription("Ledger entries posted, by type and final status"))

	return &Service{
		repo:     repo,
		provider: provider,
		runner:   runner,
		retry:    retry,
		now:      time.Now,
		tracer:   otel.Tracer("rentkart/ledger"),
		postings: postings,
	}
}

// Record posts e for its user. The entry is created pending with
// BalanceAfter computed from the user's last completed balance, then moved
// to completed, or to failed when the provider call fails.
//
// Calls are idempotent per e.IdempotencyKey: a repeated call returns the
// stored entry, a call reusing the key with a different payload fails with
// failure.ErrDuplicateOperation, and a call for a failed entry retries the
// posting. When the provider fails the failed entry is returned together
// with a *ProviderError.
func (s *Service) Record(ctx context.Context, e Entry) (*Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "ledger.Record", trace.WithAttributes(
		attribute.String("ledger.type", string(e.Type)),
		attribute.String("ledger.user_id", e.UserID),
	))
	defer span.End()

	if err := e.validate(); err != nil {
		return nil, err
	}

	var (
		result      *Transaction
		providerErr error
	)
	err := s.runner.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAccount(ctx, e.UserID); err != nil {
			return errors.Wrap(err, "lock account")
		}

		t, err := s.open(ctx, e)
		if err != nil {
			return err
		}
		if t.Status != StatusPending {
			result = t
			return nil
		}

		balance, err := s.repo.Balance(ctx, e.UserID)
		if err != nil {
			return errors.Wrap(err, "read balance")
		}

		ref, err := s.settle(ctx, e)
		t.SettledAt = s.now()
		if err != nil {
			providerErr = err
			t.Status = StatusFailed
			t.BalanceAfter = balance
			t.FailureReason = err.Error()
		} else {
			t.Status = StatusCompleted
			t.BalanceAfter = balance.Add(e.Amount)
			t.ProviderRef = ref
			t.FailureReason = ""
		}

		if err := s.repo.Update(ctx, t); err != nil {
			return errors.Wrap(err, "settle entry")
		}
		result = t
		s.postings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("type", string(t.Type)),
			attribute.String("status", string(t.Status)),
		))
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	lg := zctx.From(ctx).With(
		zap.String("entry_id", result.ID),
		zap.String("user_id", result.UserID),
		zap.String("type", string(result.Type)),
		zap.String("amount", result.Amount.String()),
	)
	if providerErr != nil {
		span.RecordError(providerErr)
		lg.Warn("Ledger entry failed", zap.Error(providerErr))
		return result, providerErr
	}
	lg.Debug("Ledger entry posted", zap.String("balance_after", result.BalanceAfter.String()))

	return result, nil
}

// open returns the entry to settle for e: a new pending entry, a failed
// entry reopened for retry, or an already settled entry to return as is.
func (s *Service) open(ctx context.Context, e Entry) (*Transaction, error) {
	existing, err := s.repo.FindByKey(ctx, e.IdempotencyKey)
	switch {
	case err == nil:
		if !existing.matches(e) {
			return nil, errors.Wrapf(failure.ErrDuplicateOperation, "idempotency key %q", e.IdempotencyKey)
		}
		if existing.Status != StatusFailed {
			return existing, nil
		}
		existing.Status = StatusPending
		existing.CreatedAt = s.now()
		if err := s.repo.Reopen(ctx, existing); err != nil {
			return nil, errors.Wrap(err, "reopen entry")
		}
		return existing, nil
	case errors.Is(err, ErrNotFound):
	default:
		return nil, errors.Wrap(err, "find entry by key")
	}

	t := &Transaction{
		ID:             uuid.New().String(),
		UserID:         e.UserID,
		OrderID:        e.OrderID,
		Type:           e.Type,
		Amount:         e.Amount,
		Status:         StatusPending,
		IdempotencyKey: e.IdempotencyKey,
		CreatedAt:      s.now(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, errors.Wrap(err, "create entry")
	}
	return t, nil
}

// settle performs the provider side of an entry. Payments and fees are
// charged, refunds are returned against the original charge, and the
// remaining types only move money inside the platform.
func (s *Service) settle(ctx context.Context, e Entry) (string, error) {
	var ref string
	op := func() error {
		switch e.Type {
		case TypePayment, TypeFee:
			id, err := s.provider.Charge(ctx, e.UserID, e.Amount, e.IdempotencyKey)
			if err != nil {
				return &ProviderError{Op: "charge", Err: err}
			}
			ref = id
		case TypeRefund:
			if err := s.provider.Refund(ctx, e.ChargeRef, e.Amount.Abs(), e.IdempotencyKey); err != nil {
				return &ProviderError{Op: "refund", Err: err}
			}
			ref = e.ChargeRef
		}
		return nil
	}

	if err := txn.Retry(ctx, s.retry, failure.ErrProviderFailure, op); err != nil {
		return "", err
	}
	return ref, nil
}

// BalanceOf returns the user's balance after their latest completed entry.
func (s *Service) BalanceOf(ctx context.Context, userID string) (decimal.Decimal, error) {
	return s.repo.Balance(ctx, userID)
}

// History returns every entry of the user in posting order.
func (s *Service) History(ctx context.Context, userID string) ([]Transaction, error) {
	return s.repo.ListByUser(ctx, userID)
}

// OrderEntries returns every entry tied to an order in posting order.
func (s *Service) OrderEntries(ctx context.Context, orderID string) ([]Transaction, error) {
	return s.repo.ListByOrder(ctx, orderID)
}
