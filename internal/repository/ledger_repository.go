package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

const (
	enrollmentColumns = `id, student_id, section_id, semester_id, status, approval_status, is_retake, enrolled_at, updated_at`
	gradeColumns      = `id, enrollment_id, grade_type, numeric_grade, letter_grade, grade_points, submitted_by, created_at, updated_at`
)

// ledgerTx implements LedgerTx over a Postgres transaction.
type ledgerTx struct {
	tx *sqlx.Tx
}

// NewLedgerTx exposes a ledger view over an already open transaction.
func NewLedgerTx(tx *sqlx.Tx) LedgerTx {
	return &ledgerTx{tx: tx}
}

const (
	studentRowQuery   = `SELECT id, student_number, full_name, COALESCE(department_id, '') AS department_id, status, gpa, total_credits, created_at, updated_at
        FROM students WHERE id = $1`
	occupancyRowQuery = `SELECT id, current_enrollment, max_capacity FROM sections WHERE id = $1`
)

func (l *ledgerTx) LockStudent(ctx context.Context, studentID string) (*models.Student, error) {
	return l.student(ctx, studentRowQuery+` FOR UPDATE`, studentID)
}

func (l *ledgerTx) GetStudent(ctx context.Context, studentID string) (*models.Student, error) {
	return l.student(ctx, studentRowQuery, studentID)
}

func (l *ledgerTx) student(ctx context.Context, query, studentID string) (*models.Student, error) {
	var student models.Student
	if err := l.tx.GetContext(ctx, &student, query, studentID); err != nil {
		return nil, err
	}
	return &student, nil
}

func (l *ledgerTx) LockSection(ctx context.Context, sectionID string) (*models.SectionOccupancy, error) {
	return l.occupancy(ctx, occupancyRowQuery+` FOR UPDATE`, sectionID)
}

func (l *ledgerTx) GetSectionOccupancy(ctx context.Context, sectionID string) (*models.SectionOccupancy, error) {
	return l.occupancy(ctx, occupancyRowQuery, sectionID)
}

func (l *ledgerTx) occupancy(ctx context.Context, query, sectionID string) (*models.SectionOccupancy, error) {
	var occupancy models.SectionOccupancy
	if err := l.tx.GetContext(ctx, &occupancy, query, sectionID); err != nil {
		return nil, err
	}
	return &occupancy, nil
}

func (l *ledgerTx) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := l.tx.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (l *ledgerTx) ListEnrollmentsForStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	if filter.StudentID == "" {
		return nil, fmt.Errorf("list student enrollments: student id is required")
	}
	conditions := []string{"student_id = $1"}
	args := []interface{}{filter.StudentID}
	if filter.SemesterID != "" {
		args = append(args, filter.SemesterID)
		conditions = append(conditions, fmt.Sprintf("semester_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE %s ORDER BY enrolled_at ASC`, enrollmentColumns, strings.Join(conditions, " AND "))

	var enrollments []models.Enrollment
	if err := l.tx.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

func (l *ledgerTx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.ApprovalStatus == "" {
		enrollment.ApprovalStatus = models.DefaultApprovalStatus
	}
	const query = `INSERT INTO enrollments (id, student_id, section_id, semester_id, status, approval_status, is_retake, enrolled_at, updated_at)
        VALUES (:id, :student_id, :section_id, :semester_id, :status, :approval_status, :is_retake, :enrolled_at, :updated_at)`
	if _, err := l.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (l *ledgerTx) UpdateEnrollmentStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := l.tx.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (l *ledgerTx) IncrementSectionCount(ctx context.Context, sectionID string) error {
	const query = `UPDATE sections SET current_enrollment = current_enrollment + 1 WHERE id = $1 AND current_enrollment < max_capacity`
	res, err := l.tx.ExecContext(ctx, query, sectionID)
	if err != nil {
		return fmt.Errorf("increment section count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment section count: %w", err)
	}
	if affected == 0 {
		return ErrSectionFull
	}
	return nil
}

func (l *ledgerTx) DecrementSectionCount(ctx context.Context, sectionID string) error {
	const query = `UPDATE sections SET current_enrollment = current_enrollment - 1 WHERE id = $1 AND current_enrollment > 0`
	res, err := l.tx.ExecContext(ctx, query, sectionID)
	if err != nil {
		return fmt.Errorf("decrement section count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("decrement section count: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("decrement section count: section %s already empty", sectionID)
	}
	return nil
}

func (l *ledgerTx) FindGrade(ctx context.Context, enrollmentID string, gradeType models.GradeType) (*models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE enrollment_id = $1 AND grade_type = $2`
	var grade models.Grade
	if err := l.tx.GetContext(ctx, &grade, query, enrollmentID, gradeType); err != nil {
		return nil, err
	}
	return &grade, nil
}

func (l *ledgerTx) ListGrades(ctx context.Context, enrollmentID string) ([]models.Grade, error) {
	query := `SELECT ` + gradeColumns + ` FROM grades WHERE enrollment_id = $1 ORDER BY created_at ASC`
	var grades []models.Grade
	if err := l.tx.SelectContext(ctx, &grades, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

func (l *ledgerTx) ListFinalGrades(ctx context.Context, enrollmentIDs []string) (map[string]models.Grade, error) {
	result := make(map[string]models.Grade, len(enrollmentIDs))
	if len(enrollmentIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(enrollmentIDs))
	args := make([]interface{}, 0, len(enrollmentIDs)+1)
	args = append(args, models.GradeTypeFinal)
	for i, id := range enrollmentIDs {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	query := fmt.Sprintf(`SELECT %s FROM grades WHERE grade_type = $1 AND enrollment_id IN (%s)`, gradeColumns, strings.Join(placeholders, ","))
	rows, err := l.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list final grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var grade models.Grade
		if err := rows.StructScan(&grade); err != nil {
			return nil, fmt.Errorf("scan final grade: %w", err)
		}
		result[grade.EnrollmentID] = grade
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate final grades: %w", err)
	}
	return result, nil
}

func (l *ledgerTx) InsertGrade(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, enrollment_id, grade_type, numeric_grade, letter_grade, grade_points, submitted_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :grade_type, :numeric_grade, :letter_grade, :grade_points, :submitted_by, :created_at, :updated_at)`
	if _, err := l.tx.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("insert grade: %w", err)
	}
	return nil
}

func (l *ledgerTx) UpdateGrade(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET numeric_grade = :numeric_grade, letter_grade = :letter_grade, grade_points = :grade_points,
        submitted_by = :submitted_by, updated_at = :updated_at
        WHERE enrollment_id = :enrollment_id AND grade_type = :grade_type`
	res, err := l.tx.NamedExecContext(ctx, query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update grade: %w", sql.ErrNoRows)
	}
	return nil
}

func (l *ledgerTx) UpdateStudentAggregate(ctx context.Context, studentID string, gpa float64, totalCredits int) error {
	const query = `UPDATE students SET gpa = $2, total_credits = $3, updated_at = $4 WHERE id = $1`
	if _, err := l.tx.ExecContext(ctx, query, studentID, gpa, totalCredits, time.Now().UTC()); err != nil {
		return fmt.Errorf("update student aggregate: %w", err)
	}
	return nil
}
