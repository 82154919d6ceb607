package repository

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresStore bundles the ledger transaction manager with the catalog and
// read-model repositories over one connection pool.
type PostgresStore struct {
	*PostgresTxManager
	*CatalogRepository
	*ReportRepository
}

// NewPostgresStore constructs PostgresStore.
func NewPostgresStore(db *sqlx.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		PostgresTxManager: NewPostgresTxManager(db, lockTimeout),
		CatalogRepository: NewCatalogRepository(db),
		ReportRepository:  NewReportRepository(db),
	}
}
