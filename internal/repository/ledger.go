package repository

import (
	"context"
	"errors"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

// Ledger sentinel errors shared by every store implementation.
// Missing rows are reported as sql.ErrNoRows.
var (
	// ErrSectionFull is returned when a guarded counter increment finds no free seat.
	ErrSectionFull = errors.New("section at capacity")
	// ErrUniqueViolation is returned when the store rejects a duplicate live enrollment or grade.
	ErrUniqueViolation = errors.New("unique constraint violated")
	// ErrSerialization is returned when the store aborted the transaction to keep it serializable.
	ErrSerialization = errors.New("transaction serialization failure")
	// ErrStatusChanged is returned when a conditional status transition matched no row.
	ErrStatusChanged = errors.New("enrollment status changed concurrently")
	// ErrUnavailable is returned for lock timeouts and lost connections.
	ErrUnavailable = errors.New("ledger store unavailable")
)

// LedgerTx is the set of ledger operations available inside one transaction.
// It is the only path that mutates section counters, enrollment status,
// grades and student aggregates.
type LedgerTx interface {
	// LockStudent reads the student row and holds it until the transaction ends.
	LockStudent(ctx context.Context, studentID string) (*models.Student, error)
	// LockSection reads the authoritative seat counter and holds it until the transaction ends.
	LockSection(ctx context.Context, sectionID string) (*models.SectionOccupancy, error)
	// GetStudent and GetSectionOccupancy read the same rows without taking locks.
	GetStudent(ctx context.Context, studentID string) (*models.Student, error)
	GetSectionOccupancy(ctx context.Context, sectionID string) (*models.SectionOccupancy, error)

	GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	ListEnrollmentsForStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error)
	InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollmentStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error

	IncrementSectionCount(ctx context.Context, sectionID string) error
	DecrementSectionCount(ctx context.Context, sectionID string) error

	FindGrade(ctx context.Context, enrollmentID string, gradeType models.GradeType) (*models.Grade, error)
	ListGrades(ctx context.Context, enrollmentID string) ([]models.Grade, error)
	ListFinalGrades(ctx context.Context, enrollmentIDs []string) (map[string]models.Grade, error)
	InsertGrade(ctx context.Context, grade *models.Grade) error
	UpdateGrade(ctx context.Context, grade *models.Grade) error

	UpdateStudentAggregate(ctx context.Context, studentID string, gpa float64, totalCredits int) error
}

// TxManager runs fn inside a single all-or-nothing ledger transaction.
// When fn returns an error nothing it wrote is observable.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}
