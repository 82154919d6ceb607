package models

import "time"

// StudentStatus represents the academic standing of a student.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive    StudentStatus = "active"
	StudentStatusGraduated StudentStatus = "graduated"
	StudentStatusSuspended StudentStatus = "suspended"
	StudentStatusWithdrawn StudentStatus = "withdrawn"
)

// Student represents a learner registered in the university.
// GPA and TotalCredits are derived and only written by GPA recomputation.
type Student struct {
	ID            string        `db:"id" json:"id"`
	StudentNumber string        `db:"student_number" json:"student_number"`
	FullName      string        `db:"full_name" json:"full_name"`
	DepartmentID  string        `db:"department_id" json:"department_id"`
	Status        StudentStatus `db:"status" json:"status"`
	GPA           float64       `db:"gpa" json:"gpa"`
	TotalCredits  int           `db:"total_credits" json:"total_credits"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentGPASummary is the read model behind the GPA endpoint.
type StudentGPASummary struct {
	StudentID        string  `db:"student_id" json:"student_id"`
	StudentName      string  `db:"student_name" json:"student_name"`
	GPA              float64 `db:"gpa" json:"gpa"`
	TotalCredits     int     `db:"total_credits" json:"total_credits"`
	TotalCourses     int     `db:"total_courses" json:"total_courses"`
	CompletedCourses int     `db:"completed_courses" json:"completed_courses"`
	FailedCourses    int     `db:"failed_courses" json:"failed_courses"`
}
