package memstore

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/noah-isme/univ-registrar-api/internal/models"
)

// ListEnrollments returns a page of committed enrollments, newest first.
func (s *Store) ListEnrollments(_ context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]models.Enrollment, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		enrollment := s.enrollments[s.order[i]]
		if filter.Matches(enrollment) {
			matched = append(matched, enrollment)
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start >= len(matched) {
		return []models.Enrollment{}, len(matched), nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

// StudentGPASummary mirrors the Postgres read model.
func (s *Store) StudentGPASummary(_ context.Context, studentID string) (*models.StudentGPASummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	student, ok := s.students[studentID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	summary := &models.StudentGPASummary{
		StudentID:    student.ID,
		StudentName:  student.FullName,
		GPA:          student.GPA,
		TotalCredits: student.TotalCredits,
	}
	for _, enrollment := range s.enrollments {
		if enrollment.StudentID != studentID {
			continue
		}
		switch enrollment.Status {
		case models.EnrollmentStatusCompleted:
			summary.CompletedCourses++
			summary.TotalCourses++
		case models.EnrollmentStatusFailed:
			summary.FailedCourses++
			summary.TotalCourses++
		case models.EnrollmentStatusEnrolled:
			summary.TotalCourses++
		}
	}
	return summary, nil
}

// CourseStatistics mirrors the Postgres aggregation over active courses.
func (s *Store) CourseStatistics(_ context.Context, semesterID string) ([]models.CourseStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type accumulator struct {
		stats    models.CourseStatistics
		gradeSum float64
		graded   int
	}
	byCourse := make(map[string]*accumulator)
	for _, course := range s.courses {
		if !course.Active {
			continue
		}
		byCourse[course.ID] = &accumulator{stats: models.CourseStatistics{
			CourseID:   course.ID,
			CourseCode: course.Code,
			CourseName: course.Name,
			Credits:    course.Credits,
		}}
	}
	for _, enrollment := range s.enrollments {
		if semesterID != "" && enrollment.SemesterID != semesterID {
			continue
		}
		section, ok := s.sections[enrollment.SectionID]
		if !ok {
			continue
		}
		acc, ok := byCourse[section.CourseID]
		if !ok {
			continue
		}
		acc.stats.TotalEnrollments++
		switch enrollment.Status {
		case models.EnrollmentStatusEnrolled:
			acc.stats.CurrentEnrollments++
		case models.EnrollmentStatusCompleted:
			acc.stats.CompletedEnrollments++
		case models.EnrollmentStatusFailed:
			acc.stats.FailedEnrollments++
		}
		if grade, ok := s.grades[gradeKey{enrollment.ID, models.GradeTypeFinal}]; ok {
			acc.gradeSum += grade.NumericGrade
			acc.graded++
		}
	}

	result := make([]models.CourseStatistics, 0, len(byCourse))
	for _, acc := range byCourse {
		stats := acc.stats
		if acc.graded > 0 {
			avg := round2(acc.gradeSum / float64(acc.graded))
			stats.AverageGrade = &avg
		}
		if decided := stats.CompletedEnrollments + stats.FailedEnrollments; decided > 0 {
			rate := round2(100 * float64(stats.CompletedEnrollments) / float64(decided))
			stats.PassRate = &rate
		}
		result = append(result, stats)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CourseCode < result[j].CourseCode })
	return result, nil
}

// SectionAvailability mirrors the Postgres read model.
func (s *Store) SectionAvailability(_ context.Context, sectionID string) (*models.SectionAvailability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, ok := s.sections[sectionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SectionAvailability{
		SectionID:         section.ID,
		CourseID:          section.CourseID,
		CourseCode:        s.courses[section.CourseID].Code,
		SemesterID:        section.SemesterID,
		TimeSlotID:        section.TimeSlotID,
		MaxCapacity:       section.MaxCapacity,
		CurrentEnrollment: s.occupancy[section.ID],
	}, nil
}

// SemesterCreditLoads sums enrolled, completed and failed credits per student.
func (s *Store) SemesterCreditLoads(_ context.Context, semesterID string) ([]models.StudentCreditLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStudent := make(map[string]*models.StudentCreditLoad)
	for _, enrollment := range s.enrollments {
		if enrollment.SemesterID != semesterID || enrollment.Status == models.EnrollmentStatusDropped {
			continue
		}
		section, ok := s.sections[enrollment.SectionID]
		if !ok {
			continue
		}
		load, ok := byStudent[enrollment.StudentID]
		if !ok {
			student := s.students[enrollment.StudentID]
			load = &models.StudentCreditLoad{
				StudentID:     student.ID,
				StudentNumber: student.StudentNumber,
				StudentName:   student.FullName,
			}
			byStudent[enrollment.StudentID] = load
		}
		load.EnrolledCredits += s.courses[section.CourseID].Credits
	}

	result := make([]models.StudentCreditLoad, 0, len(byStudent))
	for _, load := range byStudent {
		result = append(result, *load)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StudentNumber < result[j].StudentNumber })
	return result, nil
}

// OccupancyDrift reports sections whose counter disagrees with their enrolled rows.
func (s *Store) OccupancyDrift(_ context.Context) ([]models.OccupancyDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	live := make(map[string]int, len(s.sections))
	for _, enrollment := range s.enrollments {
		if enrollment.Status == models.EnrollmentStatusEnrolled {
			live[enrollment.SectionID]++
		}
	}
	drift := make([]models.OccupancyDrift, 0)
	for id, section := range s.sections {
		if s.occupancy[id] != live[id] {
			drift = append(drift, models.OccupancyDrift{
				SectionID:         id,
				CurrentEnrollment: s.occupancy[id],
				EnrolledRows:      live[id],
				MaxCapacity:       section.MaxCapacity,
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].SectionID < drift[j].SectionID })
	return drift, nil
}

// ListStudentIDs returns every student id in ascending order.
func (s *Store) ListStudentIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.students))
	for id := range s.students {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
