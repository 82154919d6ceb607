package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

// Rule names reported in explain mode.
const (
	RuleDuplicate    = "duplicate"
	RuleCapacity     = "capacity"
	RuleTimeConflict = "time_conflict"
	RuleCreditLoad   = "credit_load"
	RulePrerequisite = "prerequisite"
)

// HistoryEntry is one of the student's enrollments resolved against the catalog.
type HistoryEntry struct {
	Enrollment models.Enrollment
	Section    models.Section
	Course     models.Course
}

// EnrollmentSnapshot is everything the rules need, read inside the ledger
// transaction after the student and section locks are held.
type EnrollmentSnapshot struct {
	Student       models.Student
	Section       models.Section
	Course        models.Course
	Occupancy     models.SectionOccupancy
	Retake        bool
	History       []HistoryEntry
	Prerequisites []models.Prerequisite
	FinalGrades   map[string]models.Grade
	MaxCredits    int
	MinCredits    int
}

// SemesterLoad sums the credits of enrolled sections in the target semester.
func (s *EnrollmentSnapshot) SemesterLoad() int {
	total := 0
	for _, entry := range s.History {
		if entry.Enrollment.Status == models.EnrollmentStatusEnrolled && entry.Enrollment.SemesterID == s.Section.SemesterID {
			total += entry.Course.Credits
		}
	}
	return total
}

type enrollmentRule struct {
	name  string
	check func(*EnrollmentSnapshot) *appErrors.Error
}

// enrollmentRules run in this order; Enroll stops at the first failure.
var enrollmentRules = []enrollmentRule{
	{name: RuleDuplicate, check: checkDuplicate},
	{name: RuleCapacity, check: checkCapacity},
	{name: RuleTimeConflict, check: checkTimeConflict},
	{name: RuleCreditLoad, check: checkCreditLoad},
	{name: RulePrerequisite, check: checkPrerequisites},
}

func firstViolation(snapshot *EnrollmentSnapshot) *appErrors.Error {
	for _, rule := range enrollmentRules {
		if err := rule.check(snapshot); err != nil {
			return err
		}
	}
	return nil
}

func allViolations(snapshot *EnrollmentSnapshot) []models.RuleViolation {
	violations := make([]models.RuleViolation, 0)
	for _, rule := range enrollmentRules {
		if err := rule.check(snapshot); err != nil {
			violations = append(violations, models.RuleViolation{
				Rule:    rule.name,
				Code:    err.Code,
				Message: err.Message,
				Details: err.Details,
			})
		}
	}
	return violations
}

// checkDuplicate blocks a second live enrollment in the section, and a completed
// one unless the request is a retake. Dropped and failed records never block.
func checkDuplicate(s *EnrollmentSnapshot) *appErrors.Error {
	for _, entry := range s.History {
		if entry.Enrollment.SectionID != s.Section.ID {
			continue
		}
		switch entry.Enrollment.Status {
		case models.EnrollmentStatusEnrolled:
			return appErrors.WithDetails(appErrors.ErrAlreadyEnrolled, "", map[string]string{"enrollment_id": entry.Enrollment.ID})
		case models.EnrollmentStatusCompleted:
			if !s.Retake {
				return appErrors.WithDetails(appErrors.ErrAlreadyEnrolled, "section already completed, retake required", map[string]string{"enrollment_id": entry.Enrollment.ID})
			}
		}
	}
	return nil
}

func checkCapacity(s *EnrollmentSnapshot) *appErrors.Error {
	if s.Occupancy.Full() {
		return appErrors.WithDetails(appErrors.ErrSectionFull, "", map[string]int{
			"current_enrollment": s.Occupancy.CurrentEnrollment,
			"max_capacity":       s.Occupancy.MaxCapacity,
		})
	}
	return nil
}

// checkTimeConflict compares TimeSlot identity, not interval overlap.
func checkTimeConflict(s *EnrollmentSnapshot) *appErrors.Error {
	for _, entry := range s.History {
		if entry.Enrollment.Status != models.EnrollmentStatusEnrolled ||
			entry.Enrollment.SemesterID != s.Section.SemesterID ||
			entry.Section.ID == s.Section.ID {
			continue
		}
		if entry.Section.TimeSlotID == s.Section.TimeSlotID {
			return appErrors.WithDetails(appErrors.ErrScheduleConflict, "", map[string]string{
				"conflicting_section_id": entry.Section.ID,
				"time_slot_id":           entry.Section.TimeSlotID,
			})
		}
	}
	return nil
}

func checkCreditLoad(s *EnrollmentSnapshot) *appErrors.Error {
	current := s.SemesterLoad()
	if s.MaxCredits > 0 && current+s.Course.Credits > s.MaxCredits {
		return appErrors.WithDetails(appErrors.ErrCreditLimitExceeded, "", map[string]int{
			"current_credits": current,
			"course_credits":  s.Course.Credits,
			"max_credits":     s.MaxCredits,
		})
	}
	return nil
}

// checkPrerequisites needs, for every row, a completed enrollment in the
// required course whose final grade reaches the minimum points.
func checkPrerequisites(s *EnrollmentSnapshot) *appErrors.Error {
	if len(s.Prerequisites) == 0 {
		return nil
	}
	unmet := make([]string, 0)
	for _, prereq := range s.Prerequisites {
		if prereq.RequiredCourseID == prereq.CourseID || prereq.RequiredCourseID == s.Course.ID {
			return appErrors.WithDetails(appErrors.ErrPrerequisiteNotMet,
				fmt.Sprintf("course %s lists itself as a prerequisite", s.Course.Code),
				map[string][]string{"unmet_courses": {s.Course.Code}})
		}
		if !s.satisfies(prereq) {
			code := prereq.RequiredCourseCode
			if code == "" {
				code = prereq.RequiredCourseID
			}
			unmet = append(unmet, code)
		}
	}
	if len(unmet) == 0 {
		return nil
	}
	return appErrors.WithDetails(appErrors.ErrPrerequisiteNotMet,
		"prerequisites not met: "+strings.Join(unmet, ", "),
		map[string][]string{"unmet_courses": unmet})
}

func (s *EnrollmentSnapshot) satisfies(prereq models.Prerequisite) bool {
	for _, entry := range s.History {
		if entry.Enrollment.Status != models.EnrollmentStatusCompleted || entry.Course.ID != prereq.RequiredCourseID {
			continue
		}
		grade, ok := s.FinalGrades[entry.Enrollment.ID]
		if ok && grade.GradePoints >= prereq.MinimumGradePoints {
			return true
		}
	}
	return false
}

// creditWarnings returns advisory notes that never block enrollment.
func creditWarnings(s *EnrollmentSnapshot) []string {
	after := s.SemesterLoad() + s.Course.Credits
	if s.MinCredits > 0 && after < s.MinCredits {
		return []string{fmt.Sprintf("semester load of %d credits is below the advisory minimum of %d", after, s.MinCredits)}
	}
	return nil
}
