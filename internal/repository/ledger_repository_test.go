package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

func newLedgerMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestTxManagerCommitsEnrollment(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	manager := NewPostgresTxManager(db, 1500*time.Millisecond)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '1500ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_number", "full_name", "department_id", "status", "gpa", "total_credits", "created_at", "updated_at"}).
			AddRow("stu-1", "S001", "Ada", "dep-1", "active", 0.0, 0, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, current_enrollment, max_capacity FROM sections WHERE id = $1 FOR UPDATE")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_enrollment", "max_capacity"}).AddRow("sec-1", 4, 5))
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET current_enrollment = current_enrollment + 1 WHERE id = $1 AND current_enrollment < max_capacity")).
		WithArgs("sec-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := manager.WithinTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		student, err := tx.LockStudent(ctx, "stu-1")
		require.NoError(t, err)
		assert.Equal(t, models.StudentStatusActive, student.Status)
		occupancy, err := tx.LockSection(ctx, "sec-1")
		require.NoError(t, err)
		assert.False(t, occupancy.Full())
		enrollment := &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1", SemesterID: "sem-1", Status: models.EnrollmentStatusEnrolled}
		require.NoError(t, tx.InsertEnrollment(ctx, enrollment))
		assert.NotEmpty(t, enrollment.ID)
		assert.Equal(t, models.DefaultApprovalStatus, enrollment.ApprovalStatus)
		return tx.IncrementSectionCount(ctx, "sec-1")
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerPlainReadsTakeNoRowLocks(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	manager := NewPostgresTxManager(db, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1") + "$").
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_number", "full_name", "department_id", "status", "gpa", "total_credits", "created_at", "updated_at"}).
			AddRow("stu-1", "S001", "Ada", "", "active", 3.1, 12, time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, current_enrollment, max_capacity FROM sections WHERE id = $1") + "$").
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "current_enrollment", "max_capacity"}).AddRow("sec-1", 5, 5))
	mock.ExpectCommit()

	err := manager.WithinTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		student, err := tx.GetStudent(ctx, "stu-1")
		require.NoError(t, err)
		assert.Equal(t, 3.1, student.GPA)
		occupancy, err := tx.GetSectionOccupancy(ctx, "sec-1")
		require.NoError(t, err)
		assert.True(t, occupancy.Full())
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackWhenSectionFull(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	manager := NewPostgresTxManager(db, 0)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sections SET current_enrollment = current_enrollment \\+ 1").
		WithArgs("sec-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := manager.WithinTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		return tx.IncrementSectionCount(ctx, "sec-1")
	})
	assert.ErrorIs(t, err, ErrSectionFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerClassifiesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	manager := NewPostgresTxManager(db, 0)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_live_unique"})
	mock.ExpectRollback()

	err := manager.WithinTx(context.Background(), func(ctx context.Context, tx LedgerTx) error {
		return tx.InsertEnrollment(ctx, &models.Enrollment{StudentID: "stu-1", SectionID: "sec-1", SemesterID: "sem-1", Status: models.EnrollmentStatusEnrolled})
	})
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyPostgresError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "serialization", err: &pq.Error{Code: "40001"}, want: ErrSerialization},
		{name: "deadlock", err: &pq.Error{Code: "40P01"}, want: ErrSerialization},
		{name: "lock timeout", err: &pq.Error{Code: "55P03"}, want: ErrUnavailable},
		{name: "connection", err: &pq.Error{Code: "08006"}, want: ErrUnavailable},
		{name: "counter check", err: &pq.Error{Code: "23514", Constraint: "sections_check"}, want: ErrSectionFull},
		{name: "bad conn", err: sql.ErrConnDone, want: ErrUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classifyPostgresError(tc.err), tc.want)
		})
	}

	plain := errors.New("plain")
	assert.Same(t, plain, classifyPostgresError(plain))
}

func TestLedgerUpdateEnrollmentStatusDetectsRace(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	ledger := NewLedgerTx(tx)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ledger.UpdateEnrollmentStatus(context.Background(), "enr-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped)
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerListEnrollmentsForStudentBuildsFilter(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	ledger := NewLedgerTx(tx)

	rows := sqlmock.NewRows([]string{"id", "student_id", "section_id", "semester_id", "status", "approval_status", "is_retake", "enrolled_at", "updated_at"}).
		AddRow("enr-1", "stu-1", "sec-1", "sem-1", "enrolled", "pending", false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE student_id = $1 AND semester_id = $2 AND status IN ($3,$4) ORDER BY enrolled_at ASC")).
		WithArgs("stu-1", "sem-1", models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted).
		WillReturnRows(rows)

	enrollments, err := ledger.ListEnrollmentsForStudent(context.Background(), models.EnrollmentFilter{
		StudentID:  "stu-1",
		SemesterID: "sem-1",
		Statuses:   []models.EnrollmentStatus{models.EnrollmentStatusEnrolled, models.EnrollmentStatusCompleted},
	})
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, models.EnrollmentStatusEnrolled, enrollments[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerListFinalGrades(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	ledger := NewLedgerTx(tx)

	rows := sqlmock.NewRows([]string{"id", "enrollment_id", "grade_type", "numeric_grade", "letter_grade", "grade_points", "submitted_by", "created_at", "updated_at"}).
		AddRow("g-1", "enr-1", "final", 91.0, "A-", 3.7, "ins-1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades WHERE grade_type = $1 AND enrollment_id IN ($2,$3)")).
		WithArgs(models.GradeTypeFinal, "enr-1", "enr-2").
		WillReturnRows(rows)

	grades, err := ledger.ListFinalGrades(context.Background(), []string{"enr-1", "enr-2"})
	require.NoError(t, err)
	require.Contains(t, grades, "enr-1")
	assert.InDelta(t, 3.7, grades["enr-1"].GradePoints, 1e-9)
	assert.NotContains(t, grades, "enr-2")

	empty, err := ledger.ListFinalGrades(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerDecrementRefusesNegativeCounter(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()

	mock.ExpectBegin()
	tx, err := db.Beginx()
	require.NoError(t, err)
	ledger := NewLedgerTx(tx)

	mock.ExpectExec(regexp.QuoteMeta("current_enrollment - 1 WHERE id = $1 AND current_enrollment > 0")).
		WithArgs("sec-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.Error(t, ledger.DecrementSectionCount(context.Background(), "sec-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
