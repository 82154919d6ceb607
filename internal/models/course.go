package models

// Course is a catalog entry. Credits are between 1 and 10.
type Course struct {
	ID           string `db:"id" json:"id"`
	Code         string `db:"code" json:"code"`
	Name         string `db:"name" json:"name"`
	Credits      int    `db:"credits" json:"credits"`
	DepartmentID string `db:"department_id" json:"department_id"`
	Active       bool   `db:"active" json:"active"`
}

// Prerequisite requires a completed RequiredCourseID with at least MinimumGradePoints before CourseID.
type Prerequisite struct {
	CourseID           string  `db:"course_id" json:"course_id"`
	RequiredCourseID   string  `db:"required_course_id" json:"required_course_id"`
	RequiredCourseCode string  `db:"required_course_code" json:"required_course_code"`
	MinimumGradePoints float64 `db:"minimum_grade_points" json:"minimum_grade_points"`
}

// SemesterTerm names the part of the academic year.
type SemesterTerm string

const (
	TermSpring SemesterTerm = "spring"
	TermSummer SemesterTerm = "summer"
	TermFall   SemesterTerm = "fall"
)

// Semester groups sections into an academic period.
type Semester struct {
	ID   string       `db:"id" json:"id"`
	Name string       `db:"name" json:"name"`
	Term SemesterTerm `db:"term" json:"term"`
	Year int          `db:"year" json:"year"`
}

// TimeSlot is a cell of the fixed scheduling grid. Times use "15:04" format.
type TimeSlot struct {
	ID        string `db:"id" json:"id"`
	DayOfWeek int    `db:"day_of_week" json:"day_of_week"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// Section is one scheduled offering of a course. Occupancy lives in SectionOccupancy.
type Section struct {
	ID           string `db:"id" json:"id"`
	CourseID     string `db:"course_id" json:"course_id"`
	SemesterID   string `db:"semester_id" json:"semester_id"`
	InstructorID string `db:"instructor_id" json:"instructor_id"`
	TimeSlotID   string `db:"time_slot_id" json:"time_slot_id"`
	Location     string `db:"location" json:"location"`
	MaxCapacity  int    `db:"max_capacity" json:"max_capacity"`
}

// SectionOccupancy is the authoritative seat counter of a section.
type SectionOccupancy struct {
	SectionID         string `db:"id" json:"section_id"`
	CurrentEnrollment int    `db:"current_enrollment" json:"current_enrollment"`
	MaxCapacity       int    `db:"max_capacity" json:"max_capacity"`
}

// Full reports whether no seat is left.
func (o SectionOccupancy) Full() bool {
	return o.CurrentEnrollment >= o.MaxCapacity
}
