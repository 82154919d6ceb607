package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository"
)

// tx stages writes on top of the committed tables. Reads see the tx's own writes.
type tx struct {
	s    *Store
	held []string

	enrollments map[string]models.Enrollment
	expected    map[string]models.EnrollmentStatus
	inserted    []string
	grades      map[gradeKey]models.Grade
	occupancy   map[string]int
	students    map[string]models.Student
}

var _ repository.LedgerTx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:           s,
		enrollments: make(map[string]models.Enrollment),
		expected:    make(map[string]models.EnrollmentStatus),
		grades:      make(map[gradeKey]models.Grade),
		occupancy:   make(map[string]int),
		students:    make(map[string]models.Student),
	}
}

func (t *tx) lock(ctx context.Context, key string) error {
	for _, held := range t.held {
		if held == key {
			return nil
		}
	}
	if err := t.s.locks.acquire(ctx, key); err != nil {
		return err
	}
	t.held = append(t.held, key)
	return nil
}

func (t *tx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.s.locks.release(t.held[i])
	}
	t.held = nil
}

func (t *tx) LockStudent(ctx context.Context, studentID string) (*models.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := t.s.Student(studentID); !ok {
		return nil, sql.ErrNoRows
	}
	if err := t.lock(ctx, "student:"+studentID); err != nil {
		return nil, err
	}
	if staged, ok := t.students[studentID]; ok {
		return &staged, nil
	}
	student, ok := t.s.Student(studentID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (t *tx) LockSection(ctx context.Context, sectionID string) (*models.SectionOccupancy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := t.s.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "section:"+sectionID); err != nil {
		return nil, err
	}
	return t.occupancyOf(sectionID)
}

func (t *tx) GetStudent(ctx context.Context, studentID string) (*models.Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if staged, ok := t.students[studentID]; ok {
		return &staged, nil
	}
	student, ok := t.s.Student(studentID)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &student, nil
}

func (t *tx) GetSectionOccupancy(ctx context.Context, sectionID string) (*models.SectionOccupancy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.occupancyOf(sectionID)
}

func (t *tx) occupancyOf(sectionID string) (*models.SectionOccupancy, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	section, ok := t.s.sections[sectionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SectionOccupancy{
		SectionID:         sectionID,
		CurrentEnrollment: t.s.occupancy[sectionID] + t.occupancy[sectionID],
		MaxCapacity:       section.MaxCapacity,
	}, nil
}

func (t *tx) enrollment(id string) (models.Enrollment, bool) {
	if staged, ok := t.enrollments[id]; ok {
		return staged, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	enrollment, ok := t.s.enrollments[id]
	return enrollment, ok
}

func (t *tx) GetEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enrollment, ok := t.enrollment(id)
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

func (t *tx) ListEnrollmentsForStudent(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.StudentID == "" {
		return nil, fmt.Errorf("list student enrollments: student id is required")
	}
	filter.SectionID = ""

	t.s.mu.RLock()
	ids := append([]string(nil), t.s.order...)
	t.s.mu.RUnlock()
	ids = append(ids, t.inserted...)

	result := make([]models.Enrollment, 0)
	for _, id := range ids {
		enrollment, ok := t.enrollment(id)
		if ok && filter.Matches(enrollment) {
			result = append(result, enrollment)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].EnrolledAt.Before(result[j].EnrolledAt) })
	return result, nil
}

func (t *tx) InsertEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
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
	if enrollment.Status == models.EnrollmentStatusEnrolled {
		live, err := t.ListEnrollmentsForStudent(ctx, models.EnrollmentFilter{
			StudentID: enrollment.StudentID,
			Statuses:  []models.EnrollmentStatus{models.EnrollmentStatusEnrolled},
		})
		if err != nil {
			return err
		}
		for _, existing := range live {
			if existing.SectionID == enrollment.SectionID {
				return fmt.Errorf("insert enrollment: %w", repository.ErrUniqueViolation)
			}
		}
	}
	t.enrollments[enrollment.ID] = *enrollment
	t.inserted = append(t.inserted, enrollment.ID)
	return nil
}

func (t *tx) UpdateEnrollmentStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	enrollment, ok := t.enrollment(id)
	if !ok || enrollment.Status != from {
		return repository.ErrStatusChanged
	}
	if _, staged := t.enrollments[id]; !staged {
		t.expected[id] = from
	}
	enrollment.Status = to
	enrollment.UpdatedAt = time.Now().UTC()
	t.enrollments[id] = enrollment
	return nil
}

func (t *tx) IncrementSectionCount(ctx context.Context, sectionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	occupancy, err := t.occupancyOf(sectionID)
	if err != nil {
		return err
	}
	if occupancy.Full() {
		return repository.ErrSectionFull
	}
	t.occupancy[sectionID]++
	return nil
}

func (t *tx) DecrementSectionCount(ctx context.Context, sectionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	occupancy, err := t.occupancyOf(sectionID)
	if err != nil {
		return err
	}
	if occupancy.CurrentEnrollment <= 0 {
		return fmt.Errorf("decrement section count: section %s already empty", sectionID)
	}
	t.occupancy[sectionID]--
	return nil
}

func (t *tx) grade(key gradeKey) (models.Grade, bool) {
	if staged, ok := t.grades[key]; ok {
		return staged, true
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	grade, ok := t.s.grades[key]
	return grade, ok
}

func (t *tx) FindGrade(ctx context.Context, enrollmentID string, gradeType models.GradeType) (*models.Grade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	grade, ok := t.grade(gradeKey{enrollmentID, gradeType})
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &grade, nil
}

func (t *tx) ListGrades(ctx context.Context, enrollmentID string) ([]models.Grade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	types := []models.GradeType{models.GradeTypeAssignment, models.GradeTypeQuiz, models.GradeTypeMidterm, models.GradeTypeFinal}
	grades := make([]models.Grade, 0, len(types))
	for _, gradeType := range types {
		if grade, ok := t.grade(gradeKey{enrollmentID, gradeType}); ok {
			grades = append(grades, grade)
		}
	}
	sort.SliceStable(grades, func(i, j int) bool { return grades[i].CreatedAt.Before(grades[j].CreatedAt) })
	return grades, nil
}

func (t *tx) ListFinalGrades(ctx context.Context, enrollmentIDs []string) (map[string]models.Grade, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make(map[string]models.Grade, len(enrollmentIDs))
	for _, id := range enrollmentIDs {
		if grade, ok := t.grade(gradeKey{id, models.GradeTypeFinal}); ok {
			result[id] = grade
		}
	}
	return result, nil
}

func (t *tx) InsertGrade(ctx context.Context, grade *models.Grade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := gradeKey{grade.EnrollmentID, grade.GradeType}
	if _, exists := t.grade(key); exists {
		return fmt.Errorf("insert grade: %w", repository.ErrUniqueViolation)
	}
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	t.grades[key] = *grade
	return nil
}

func (t *tx) UpdateGrade(ctx context.Context, grade *models.Grade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := gradeKey{grade.EnrollmentID, grade.GradeType}
	existing, ok := t.grade(key)
	if !ok {
		return fmt.Errorf("update grade: %w", sql.ErrNoRows)
	}
	grade.ID = existing.ID
	grade.CreatedAt = existing.CreatedAt
	grade.UpdatedAt = time.Now().UTC()
	t.grades[key] = *grade
	return nil
}

func (t *tx) UpdateStudentAggregate(ctx context.Context, studentID string, gpa float64, totalCredits int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	student, ok := t.students[studentID]
	if !ok {
		committed, found := t.s.Student(studentID)
		if !found {
			return sql.ErrNoRows
		}
		student = committed
	}
	student.GPA = gpa
	student.TotalCredits = totalCredits
	student.UpdatedAt = time.Now().UTC()
	t.students[studentID] = student
	return nil
}
