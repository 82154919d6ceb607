package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusFailed    EnrollmentStatus = "failed"
)

// Terminal reports whether no further transition is allowed on the record.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusDropped || s == EnrollmentStatusCompleted || s == EnrollmentStatusFailed
}

// DefaultApprovalStatus is stored when callers do not provide one.
const DefaultApprovalStatus = "pending"

// Enrollment captures a student's registration to a section within a semester.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	SectionID      string           `db:"section_id" json:"section_id"`
	SemesterID     string           `db:"semester_id" json:"semester_id"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	ApprovalStatus string           `db:"approval_status" json:"approval_status"`
	IsRetake       bool             `db:"is_retake" json:"is_retake"`
	EnrolledAt     time.Time        `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID  string
	SectionID  string
	SemesterID string
	Statuses   []EnrollmentStatus
	Page       int
	PageSize   int
}

// Matches reports whether e passes the filter, ignoring pagination.
func (f EnrollmentFilter) Matches(e Enrollment) bool {
	if f.StudentID != "" && e.StudentID != f.StudentID {
		return false
	}
	if f.SectionID != "" && e.SectionID != f.SectionID {
		return false
	}
	if f.SemesterID != "" && e.SemesterID != f.SemesterID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// RuleViolation describes one failed enrollment rule in explain mode.
type RuleViolation struct {
	Rule    string      `json:"rule"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// EnrollmentEligibility is the explain-mode result.
type EnrollmentEligibility struct {
	StudentID  string          `json:"student_id"`
	SectionID  string          `json:"section_id"`
	Eligible   bool            `json:"eligible"`
	Violations []RuleViolation `json:"violations"`
	Warnings   []string        `json:"warnings,omitempty"`
	Credits    int             `json:"semester_credits_after"`
}
