package models

import "time"

// CourseStatistics summarises outcomes per course.
type CourseStatistics struct {
	CourseID             string   `db:"course_id" json:"course_id"`
	CourseCode           string   `db:"course_code" json:"course_code"`
	CourseName           string   `db:"course_name" json:"course_name"`
	Credits              int      `db:"credits" json:"credits"`
	TotalEnrollments     int      `db:"total_enrollments" json:"total_enrollments"`
	CurrentEnrollments   int      `db:"current_enrollments" json:"current_enrollments"`
	CompletedEnrollments int      `db:"completed_enrollments" json:"completed_enrollments"`
	FailedEnrollments    int      `db:"failed_enrollments" json:"failed_enrollments"`
	AverageGrade         *float64 `db:"average_grade" json:"average_grade,omitempty"`
	PassRate             *float64 `db:"pass_rate" json:"pass_rate,omitempty"`
}

// SectionAvailability mirrors the seat picture of a section.
type SectionAvailability struct {
	SectionID         string `db:"section_id" json:"section_id"`
	CourseID          string `db:"course_id" json:"course_id"`
	CourseCode        string `db:"course_code" json:"course_code"`
	SemesterID        string `db:"semester_id" json:"semester_id"`
	TimeSlotID        string `db:"time_slot_id" json:"time_slot_id"`
	MaxCapacity       int    `db:"max_capacity" json:"max_capacity"`
	CurrentEnrollment int    `db:"current_enrollment" json:"current_enrollment"`
	AvailableSeats    int    `db:"-" json:"available_seats"`
	Status            string `db:"-" json:"status"`
}

// Availability statuses.
const (
	AvailabilityOpen = "Available"
	AvailabilityFull = "Full"
)

// StudentCreditLoad is one row of the semester credit-load report.
type StudentCreditLoad struct {
	StudentID       string `db:"student_id" json:"student_id"`
	StudentNumber   string `db:"student_number" json:"student_number"`
	StudentName     string `db:"student_name" json:"student_name"`
	EnrolledCredits int    `db:"enrolled_credits" json:"enrolled_credits"`
	BelowMinimum    bool   `db:"-" json:"below_minimum"`
	AboveMaximum    bool   `db:"-" json:"above_maximum"`
}

// SemesterCreditReport is produced at semester close to flag advisory limits.
type SemesterCreditReport struct {
	SemesterID  string              `json:"semester_id"`
	MinCredits  int                 `json:"min_credits"`
	MaxCredits  int                 `json:"max_credits"`
	Students    []StudentCreditLoad `json:"students"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// OccupancyDrift reports a section whose counter disagrees with its enrolled rows.
type OccupancyDrift struct {
	SectionID         string `db:"section_id" json:"section_id"`
	CurrentEnrollment int    `db:"current_enrollment" json:"current_enrollment"`
	EnrolledRows      int    `db:"enrolled_rows" json:"enrolled_rows"`
	MaxCapacity       int    `db:"max_capacity" json:"max_capacity"`
}
