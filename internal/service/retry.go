package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

// RetryPolicy bounds re-execution of a whole ledger transaction after a lost race.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 20 * time.Millisecond, MaxDelay: 250 * time.Millisecond}
}

func (p RetryPolicy) normalised() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff doubles the base delay per attempt, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > 16 {
		shift = 16
	}
	delay := p.BaseDelay << uint(shift)
	if delay > p.MaxDelay || delay < 0 {
		delay = p.MaxDelay
	}
	return delay
}

// ledgerRunner executes ledger units with the retry policy and error taxonomy applied.
type ledgerRunner struct {
	tx      repository.TxManager
	policy  RetryPolicy
	timeout time.Duration
	metrics *MetricsService
	logger  *zap.Logger
}

func newLedgerRunner(tx repository.TxManager, policy RetryPolicy, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *ledgerRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ledgerRunner{tx: tx, policy: policy.normalised(), timeout: timeout, metrics: metrics, logger: logger}
}

// withTimeout bounds a whole operation, retries included.
func (r *ledgerRunner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// run executes fn in a fresh transaction, re-running it from scratch while it
// fails with a consistency conflict. Validation and transient failures are returned at once.
func (r *ledgerRunner) run(ctx context.Context, operation string, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	for attempt := 1; ; attempt++ {
		err := mapLedgerError(r.tx.WithinTx(ctx, fn))
		if err == nil {
			return nil
		}
		if appErrors.KindOf(err) != appErrors.KindConflict || attempt >= r.policy.MaxAttempts {
			return err
		}

		delay := r.policy.backoff(attempt)
		r.metrics.RecordRetry(operation)
		r.logger.Warn("ledger transaction conflict, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return mapLedgerError(ctx.Err())
		case <-timer.C:
		}
	}
}

// mapLedgerError translates store sentinels into the domain taxonomy.
// Typed errors raised by the rules pass through untouched.
func mapLedgerError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, repository.ErrSectionFull):
		return appErrors.Wrap(err, appErrors.ErrSectionFull.Code, appErrors.ErrSectionFull.Status, appErrors.ErrSectionFull.Message)
	case errors.Is(err, repository.ErrUniqueViolation),
		errors.Is(err, repository.ErrSerialization),
		errors.Is(err, repository.ErrStatusChanged):
		conflict := appErrors.Clone(appErrors.ErrConsistencyConflict, "")
		conflict.Err = err
		return conflict
	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		transient := appErrors.Clone(appErrors.ErrTransient, "")
		transient.Err = err
		return transient
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, appErrors.ErrNotFound.Message)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
}

// notFoundOr maps sql.ErrNoRows to a NOT_FOUND error naming the entity and
// passes every other error through.
func notFoundOr(err error, entity string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return err
}
