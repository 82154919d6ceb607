package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

// CatalogRepository reads courses, sections and the scheduling grid.
// It never writes; seat counters are owned by the ledger.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs a CatalogRepository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// GetCourse fetches a course by id.
func (r *CatalogRepository) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, code, name, credits, COALESCE(department_id, '') AS department_id, active FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// GetSection fetches a section by id without its occupancy.
func (r *CatalogRepository) GetSection(ctx context.Context, id string) (*models.Section, error) {
	const query = `SELECT id, course_id, semester_id, instructor_id, time_slot_id, location, max_capacity FROM sections WHERE id = $1`
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	return &section, nil
}

// GetPrerequisites lists the prerequisite rows declared for a course.
func (r *CatalogRepository) GetPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error) {
	const query = `SELECT p.course_id, p.required_course_id, c.code AS required_course_code, p.minimum_grade_points
        FROM course_prerequisites p JOIN courses c ON c.id = p.required_course_id
        WHERE p.course_id = $1 ORDER BY c.code`
	var prerequisites []models.Prerequisite
	if err := r.db.SelectContext(ctx, &prerequisites, query, courseID); err != nil {
		return nil, fmt.Errorf("list prerequisites: %w", err)
	}
	return prerequisites, nil
}

// GetTimeSlot fetches a slot of the scheduling grid.
func (r *CatalogRepository) GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	const query = `SELECT id, day_of_week, to_char(start_time, 'HH24:MI') AS start_time, to_char(end_time, 'HH24:MI') AS end_time
        FROM time_slots WHERE id = $1`
	var slot models.TimeSlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// GetSemester fetches a semester by id.
func (r *CatalogRepository) GetSemester(ctx context.Context, id string) (*models.Semester, error) {
	const query = `SELECT id, name, term, year FROM semesters WHERE id = $1`
	var semester models.Semester
	if err := r.db.GetContext(ctx, &semester, query, id); err != nil {
		return nil, err
	}
	return &semester, nil
}
