// Package memstore is an in-process implementation of the catalog, ledger and
// report stores. It keeps the same locking and atomicity contract as the
// Postgres repositories and backs STORE_DRIVER=memory as well as engine tests.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository"
)

// Store holds every table in memory. Data is guarded by mu; row locks taken by
// transactions live in locks and are independent from mu.
type Store struct {
	mu sync.RWMutex

	students    map[string]models.Student
	courses     map[string]models.Course
	prereqs     map[string][]models.Prerequisite
	semesters   map[string]models.Semester
	slots       map[string]models.TimeSlot
	sections    map[string]models.Section
	occupancy   map[string]int
	enrollments map[string]models.Enrollment
	order       []string
	grades      map[gradeKey]models.Grade

	locks *keyedLocks

	faultMu sync.Mutex
	faults  []error
}

type gradeKey struct {
	enrollmentID string
	gradeType    models.GradeType
}

// New returns an empty store.
func New() *Store {
	return &Store{
		students:    make(map[string]models.Student),
		courses:     make(map[string]models.Course),
		prereqs:     make(map[string][]models.Prerequisite),
		semesters:   make(map[string]models.Semester),
		slots:       make(map[string]models.TimeSlot),
		sections:    make(map[string]models.Section),
		occupancy:   make(map[string]int),
		enrollments: make(map[string]models.Enrollment),
		grades:      make(map[gradeKey]models.Grade),
		locks:       newKeyedLocks(),
	}
}

var _ repository.TxManager = (*Store)(nil)

// InjectCommitFaults makes the next len(errs) commits fail with the given errors, in order.
func (s *Store) InjectCommitFaults(errs ...error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.faults = append(s.faults, errs...)
}

func (s *Store) nextFault() error {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	if len(s.faults) == 0 {
		return nil
	}
	err := s.faults[0]
	s.faults = s.faults[1:]
	return err
}

// WithinTx runs fn in a transaction. Writes are staged and become visible
// atomically on commit; row locks are released after commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.release()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.nextFault(); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, delta := range t.occupancy {
		section := s.sections[id]
		next := s.occupancy[id] + delta
		if next < 0 || next > section.MaxCapacity {
			return repository.ErrSectionFull
		}
	}
	for id, expected := range t.expected {
		if current, ok := s.enrollments[id]; ok && current.Status != expected {
			return repository.ErrStatusChanged
		}
	}
	for _, id := range t.inserted {
		staged := t.enrollments[id]
		if staged.Status != models.EnrollmentStatusEnrolled {
			continue
		}
		for _, existing := range s.enrollments {
			if existing.StudentID == staged.StudentID && existing.SectionID == staged.SectionID &&
				existing.Status == models.EnrollmentStatusEnrolled {
				if _, overwritten := t.enrollments[existing.ID]; !overwritten {
					return repository.ErrUniqueViolation
				}
			}
		}
	}
	for key, grade := range t.grades {
		if existing, ok := s.grades[key]; ok && existing.ID != grade.ID {
			return repository.ErrUniqueViolation
		}
	}

	for id, delta := range t.occupancy {
		s.occupancy[id] += delta
	}
	for _, id := range t.inserted {
		s.order = append(s.order, id)
	}
	for id, enrollment := range t.enrollments {
		s.enrollments[id] = enrollment
	}
	for key, grade := range t.grades {
		s.grades[key] = grade
	}
	for id, student := range t.students {
		s.students[id] = student
	}
	return nil
}

// AddStudent seeds or replaces a student.
func (s *Store) AddStudent(student models.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	s.students[student.ID] = student
}

// AddCourse seeds or replaces a course.
func (s *Store) AddCourse(course models.Course) error {
	if course.Credits < 1 || course.Credits > 10 {
		return fmt.Errorf("course %s: credits must be between 1 and 10", course.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[course.ID] = course
	return nil
}

// AddPrerequisite declares that courseID requires requiredCourseID with at least minPoints.
func (s *Store) AddPrerequisite(courseID, requiredCourseID string, minPoints float64) error {
	if courseID == requiredCourseID {
		return fmt.Errorf("course %s cannot require itself", courseID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	required, ok := s.courses[requiredCourseID]
	if !ok {
		return fmt.Errorf("required course %s: %w", requiredCourseID, sql.ErrNoRows)
	}
	s.prereqs[courseID] = append(s.prereqs[courseID], models.Prerequisite{
		CourseID:           courseID,
		RequiredCourseID:   requiredCourseID,
		RequiredCourseCode: required.Code,
		MinimumGradePoints: minPoints,
	})
	return nil
}

// AddSemester seeds a semester.
func (s *Store) AddSemester(semester models.Semester) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.semesters[semester.ID] = semester
}

// AddTimeSlot seeds a slot of the scheduling grid.
func (s *Store) AddTimeSlot(slot models.TimeSlot) error {
	if slot.StartTime >= slot.EndTime {
		return fmt.Errorf("time slot %s: start must precede end", slot.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot.ID] = slot
	return nil
}

// AddSection seeds a section with an empty seat counter.
func (s *Store) AddSection(section models.Section) error {
	if section.MaxCapacity <= 0 {
		return fmt.Errorf("section %s: capacity must be positive", section.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[section.CourseID]; !ok {
		return fmt.Errorf("section %s course %s: %w", section.ID, section.CourseID, sql.ErrNoRows)
	}
	s.sections[section.ID] = section
	if _, ok := s.occupancy[section.ID]; !ok {
		s.occupancy[section.ID] = 0
	}
	return nil
}

// PutHistory stores a historical enrollment together with its final grade,
// bypassing the engine. Enrolled records also take a seat.
func (s *Store) PutHistory(enrollment models.Enrollment, final *models.Grade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	enrollment.UpdatedAt = enrollment.EnrolledAt
	if enrollment.ApprovalStatus == "" {
		enrollment.ApprovalStatus = models.DefaultApprovalStatus
	}
	if _, exists := s.enrollments[enrollment.ID]; !exists {
		s.order = append(s.order, enrollment.ID)
	}
	s.enrollments[enrollment.ID] = enrollment
	if enrollment.Status == models.EnrollmentStatusEnrolled {
		s.occupancy[enrollment.SectionID]++
	}
	if final != nil {
		grade := *final
		if grade.ID == "" {
			grade.ID = uuid.NewString()
		}
		grade.EnrollmentID = enrollment.ID
		grade.GradeType = models.GradeTypeFinal
		s.grades[gradeKey{enrollment.ID, models.GradeTypeFinal}] = grade
	}
}

// Occupancy returns the authoritative seat counter of a section.
func (s *Store) Occupancy(sectionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.occupancy[sectionID]
}

// Student returns the committed student row.
func (s *Store) Student(id string) (models.Student, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[id]
	return student, ok
}

// Enrollments returns every committed enrollment in insertion order.
func (s *Store) Enrollments() []models.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Enrollment, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.enrollments[id])
	}
	return result
}

// GetCourse implements the catalog reader.
func (s *Store) GetCourse(_ context.Context, id string) (*models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

// GetSection implements the catalog reader.
func (s *Store) GetSection(_ context.Context, id string) (*models.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.sections[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &section, nil
}

// GetPrerequisites implements the catalog reader.
func (s *Store) GetPrerequisites(_ context.Context, courseID string) ([]models.Prerequisite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := append([]models.Prerequisite(nil), s.prereqs[courseID]...)
	sort.Slice(rows, func(i, j int) bool { return rows[i].RequiredCourseCode < rows[j].RequiredCourseCode })
	return rows, nil
}

// GetTimeSlot implements the catalog reader.
func (s *Store) GetTimeSlot(_ context.Context, id string) (*models.TimeSlot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slot, ok := s.slots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

// GetSemester implements the catalog reader.
func (s *Store) GetSemester(_ context.Context, id string) (*models.Semester, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	semester, ok := s.semesters[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &semester, nil
}
