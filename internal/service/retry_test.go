package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/univ-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

type scriptedTx struct {
	errs  []error
	calls int
}

func (s *scriptedTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func TestMapLedgerError(t *testing.T) {
	tests := []struct {
		in   error
		code string
		kind appErrors.Kind
	}{
		{fmt.Errorf("inc: %w", repository.ErrSectionFull), appErrors.ErrSectionFull.Code, appErrors.KindValidation},
		{repository.ErrUniqueViolation, appErrors.ErrConsistencyConflict.Code, appErrors.KindConflict},
		{repository.ErrSerialization, appErrors.ErrConsistencyConflict.Code, appErrors.KindConflict},
		{repository.ErrStatusChanged, appErrors.ErrConsistencyConflict.Code, appErrors.KindConflict},
		{repository.ErrUnavailable, appErrors.ErrTransient.Code, appErrors.KindTransient},
		{context.DeadlineExceeded, appErrors.ErrTransient.Code, appErrors.KindTransient},
		{sql.ErrNoRows, appErrors.ErrNotFound.Code, appErrors.KindValidation},
		{errors.New("disk on fire"), appErrors.ErrInternal.Code, appErrors.KindInternal},
		{appErrors.ErrScheduleConflict, appErrors.ErrScheduleConflict.Code, appErrors.KindValidation},
	}
	for _, tc := range tests {
		mapped := mapLedgerError(tc.in)
		assert.Equal(t, tc.code, errorCode(mapped), "input %v", tc.in)
		assert.Equal(t, tc.kind, appErrors.KindOf(mapped), "input %v", tc.in)
	}
	assert.NoError(t, mapLedgerError(nil))
}

func TestLedgerRunnerRetriesOnlyConflicts(t *testing.T) {
	tx := &scriptedTx{errs: []error{repository.ErrSerialization, repository.ErrUniqueViolation}}
	runner := newLedgerRunner(tx, fastRetry(), 0, nil, nil)

	err := runner.run(context.Background(), "test", func(ctx context.Context, tx repository.LedgerTx) error { return nil })

	assert.NoError(t, err)
	assert.Equal(t, 3, tx.calls)
}

func TestLedgerRunnerStopsAtMaxAttempts(t *testing.T) {
	tx := &scriptedTx{errs: []error{repository.ErrSerialization, repository.ErrSerialization, repository.ErrSerialization, repository.ErrSerialization}}
	runner := newLedgerRunner(tx, fastRetry(), 0, NewMetricsService(), nil)

	err := runner.run(context.Background(), "test", nil)

	assert.Equal(t, appErrors.ErrConsistencyConflict.Code, errorCode(err))
	assert.Equal(t, 3, tx.calls)
}

func TestLedgerRunnerDoesNotRetryTransientOrValidation(t *testing.T) {
	for _, failure := range []error{repository.ErrUnavailable, appErrors.ErrSectionFull} {
		tx := &scriptedTx{errs: []error{failure}}
		runner := newLedgerRunner(tx, fastRetry(), 0, nil, nil)

		err := runner.run(context.Background(), "test", nil)

		assert.Error(t, err)
		assert.Equal(t, 1, tx.calls)
	}
}

func TestLedgerRunnerHonoursContextDuringBackoff(t *testing.T) {
	tx := &scriptedTx{errs: []error{repository.ErrSerialization, repository.ErrSerialization}}
	runner := newLedgerRunner(tx, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, 0, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := runner.run(ctx, "test", nil)

	assert.Equal(t, appErrors.ErrTransient.Code, errorCode(err))
	assert.Equal(t, 1, tx.calls)
}

func TestRetryPolicyBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 35 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, p.backoff(1))
	assert.Equal(t, 20*time.Millisecond, p.backoff(2))
	assert.Equal(t, 35*time.Millisecond, p.backoff(3))
	assert.Equal(t, 35*time.Millisecond, p.backoff(30))

	assert.Equal(t, 1, RetryPolicy{}.normalised().MaxAttempts)
}
