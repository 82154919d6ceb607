package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

func TestReportRepositoryListEnrollments(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "section_id", "semester_id", "status", "approval_status", "is_retake", "enrolled_at", "updated_at"}).
		AddRow("enr-1", "stu-1", "sec-1", "sem-1", "enrolled", "pending", false, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE 1=1 AND student_id = $1 AND status IN ($2) ORDER BY enrolled_at DESC LIMIT 10 OFFSET 10")).
		WithArgs("stu-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE 1=1 AND student_id = $1 AND status IN ($2)")).
		WithArgs("stu-1", models.EnrollmentStatusEnrolled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	enrollments, total, err := repo.ListEnrollments(context.Background(), models.EnrollmentFilter{
		StudentID: "stu-1",
		Statuses:  []models.EnrollmentStatus{models.EnrollmentStatusEnrolled},
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	assert.Len(t, enrollments, 1)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryCourseStatisticsScopedToSemester(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"course_id", "course_code", "course_name", "credits", "total_enrollments", "current_enrollments", "completed_enrollments", "failed_enrollments", "average_grade", "pass_rate"}).
		AddRow("c-1", "CS101", "Intro", 3, 4, 1, 2, 1, 78.5, 66.67).
		AddRow("c-2", "CS201", "Data Structures", 4, 0, 0, 0, 0, nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN enrollments e ON e.section_id = s.id AND e.semester_id = $1")).
		WithArgs("sem-1").
		WillReturnRows(rows)

	stats, err := repo.CourseStatistics(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.NotNil(t, stats[0].PassRate)
	assert.InDelta(t, 66.67, *stats[0].PassRate, 1e-9)
	assert.Nil(t, stats[1].AverageGrade)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryOccupancyDrift(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"section_id", "current_enrollment", "enrolled_rows", "max_capacity"}).AddRow("sec-9", 3, 2, 10)
	mock.ExpectQuery(regexp.QuoteMeta("HAVING s.current_enrollment <> COUNT(e.id)")).WillReturnRows(rows)

	drift, err := repo.OccupancyDrift(context.Background())
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, 2, drift[0].EnrolledRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositorySemesterCreditLoads(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewReportRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_number", "student_name", "enrolled_credits"}).
		AddRow("stu-1", "S001", "Ada", 9).
		AddRow("stu-2", "S002", "Grace", 12)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE e.semester_id = $1 AND e.status IN ('enrolled', 'completed', 'failed')")).
		WithArgs("sem-1").
		WillReturnRows(rows)

	loads, err := repo.SemesterCreditLoads(context.Background(), "sem-1")
	require.NoError(t, err)
	require.Len(t, loads, 2)
	assert.Equal(t, 9, loads[0].EnrolledCredits)
	assert.NoError(t, mock.ExpectationsWereMet())
}
