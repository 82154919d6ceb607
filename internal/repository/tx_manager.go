package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresTxManager opens read-committed transactions and relies on row locks
// (SELECT ... FOR UPDATE) taken through LedgerTx for mutual exclusion.
type PostgresTxManager struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewPostgresTxManager constructs the manager. A positive lockTimeout bounds every lock wait.
func NewPostgresTxManager(db *sqlx.DB, lockTimeout time.Duration) *PostgresTxManager {
	return &PostgresTxManager{db: db, lockTimeout: lockTimeout}
}

// WithinTx implements TxManager.
func (m *PostgresTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classifyPostgresError(fmt.Errorf("begin ledger transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if m.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", m.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classifyPostgresError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err = fn(ctx, &ledgerTx{tx: tx}); err != nil {
		return classifyPostgresError(err)
	}

	if err = tx.Commit(); err != nil {
		return classifyPostgresError(fmt.Errorf("commit ledger transaction: %w", err))
	}
	return nil
}

// classifyPostgresError maps driver errors onto the ledger sentinels while keeping the original chain.
func classifyPostgresError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %w", ErrSerialization, err)
		case "55P03", "57014": // lock_not_available, query_canceled
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		case "23514": // check_violation on the seat counter
			if pqErr.Constraint == "sections_check" {
				return fmt.Errorf("%w: %w", ErrSectionFull, err)
			}
		}
		if pqErr.Code.Class() == "08" { // connection_exception
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
