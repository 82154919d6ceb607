package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

// ReportRepository serves the read models built on top of the ledger tables.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ListEnrollments returns a page of enrollments and the total count for the filter.
func (r *ReportRepository) ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
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
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE %s ORDER BY enrolled_at DESC LIMIT %d OFFSET %d", enrollmentColumns, where, size, offset)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM enrollments WHERE %s", where)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// StudentGPASummary returns the stored aggregate together with outcome counts.
func (r *ReportRepository) StudentGPASummary(ctx context.Context, studentID string) (*models.StudentGPASummary, error) {
	const query = `SELECT s.id AS student_id, s.full_name AS student_name, s.gpa, s.total_credits,
        COUNT(e.id) FILTER (WHERE e.status <> 'dropped') AS total_courses,
        COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed_courses,
        COUNT(e.id) FILTER (WHERE e.status = 'failed') AS failed_courses
        FROM students s LEFT JOIN enrollments e ON e.student_id = s.id
        WHERE s.id = $1 GROUP BY s.id, s.full_name, s.gpa, s.total_credits`
	var summary models.StudentGPASummary
	if err := r.db.GetContext(ctx, &summary, query, studentID); err != nil {
		return nil, err
	}
	return &summary, nil
}

// CourseStatistics aggregates enrollment outcomes per course, optionally for one semester.
func (r *ReportRepository) CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error) {
	args := []interface{}{}
	joinFilter := ""
	if semesterID != "" {
		args = append(args, semesterID)
		joinFilter = " AND e.semester_id = $1"
	}
	query := `SELECT c.id AS course_id, c.code AS course_code, c.name AS course_name, c.credits,
        COUNT(e.id) AS total_enrollments,
        COUNT(e.id) FILTER (WHERE e.status = 'enrolled') AS current_enrollments,
        COUNT(e.id) FILTER (WHERE e.status = 'completed') AS completed_enrollments,
        COUNT(e.id) FILTER (WHERE e.status = 'failed') AS failed_enrollments,
        ROUND(AVG(g.numeric_grade), 2)::float8 AS average_grade,
        ROUND(100.0 * COUNT(e.id) FILTER (WHERE e.status = 'completed')
            / NULLIF(COUNT(e.id) FILTER (WHERE e.status IN ('completed', 'failed')), 0), 2)::float8 AS pass_rate
        FROM courses c
        LEFT JOIN sections s ON s.course_id = c.id
        LEFT JOIN enrollments e ON e.section_id = s.id` + joinFilter + `
        LEFT JOIN grades g ON g.enrollment_id = e.id AND g.grade_type = 'final'
        WHERE c.active = TRUE
        GROUP BY c.id, c.code, c.name, c.credits
        ORDER BY c.code`
	var stats []models.CourseStatistics
	if err := r.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, fmt.Errorf("course statistics: %w", err)
	}
	return stats, nil
}

// SectionAvailability returns the seat picture of one section.
func (r *ReportRepository) SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error) {
	const query = `SELECT s.id AS section_id, s.course_id, c.code AS course_code, s.semester_id, s.time_slot_id,
        s.max_capacity, s.current_enrollment
        FROM sections s JOIN courses c ON c.id = s.course_id WHERE s.id = $1`
	var availability models.SectionAvailability
	if err := r.db.GetContext(ctx, &availability, query, sectionID); err != nil {
		return nil, err
	}
	return &availability, nil
}

// SemesterCreditLoads sums enrolled and completed credits per student for a semester.
func (r *ReportRepository) SemesterCreditLoads(ctx context.Context, semesterID string) ([]models.StudentCreditLoad, error) {
	const query = `SELECT st.id AS student_id, st.student_number, st.full_name AS student_name,
        COALESCE(SUM(c.credits), 0) AS enrolled_credits
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.semester_id = $1 AND e.status IN ('enrolled', 'completed', 'failed')
        GROUP BY st.id, st.student_number, st.full_name
        ORDER BY st.student_number`
	var loads []models.StudentCreditLoad
	if err := r.db.SelectContext(ctx, &loads, query, semesterID); err != nil {
		return nil, fmt.Errorf("semester credit loads: %w", err)
	}
	return loads, nil
}

// OccupancyDrift lists sections whose counter disagrees with the number of enrolled rows.
func (r *ReportRepository) OccupancyDrift(ctx context.Context) ([]models.OccupancyDrift, error) {
	const query = `SELECT s.id AS section_id, s.current_enrollment, COUNT(e.id) AS enrolled_rows, s.max_capacity
        FROM sections s LEFT JOIN enrollments e ON e.section_id = s.id AND e.status = 'enrolled'
        GROUP BY s.id, s.current_enrollment, s.max_capacity
        HAVING s.current_enrollment <> COUNT(e.id)
        ORDER BY s.id`
	var drift []models.OccupancyDrift
	if err := r.db.SelectContext(ctx, &drift, query); err != nil {
		return nil, fmt.Errorf("occupancy drift: %w", err)
	}
	return drift, nil
}

// ListStudentIDs returns every student id, used by bulk GPA reconciliation.
func (r *ReportRepository) ListStudentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM students ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list student ids: %w", err)
	}
	return ids, nil
}
