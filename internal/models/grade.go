package models

import "time"

// GradeType distinguishes assessment kinds. Only final grades drive enrollment status.
type GradeType string

const (
	GradeTypeFinal      GradeType = "final"
	GradeTypeMidterm    GradeType = "midterm"
	GradeTypeQuiz       GradeType = "quiz"
	GradeTypeAssignment GradeType = "assignment"
)

// Valid reports whether t is a known grade type.
func (t GradeType) Valid() bool {
	switch t {
	case GradeTypeFinal, GradeTypeMidterm, GradeTypeQuiz, GradeTypeAssignment:
		return true
	}
	return false
}

// Grade represents a recorded grade for an enrollment, unique per grade type.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	GradeType    GradeType `db:"grade_type" json:"grade_type"`
	NumericGrade float64   `db:"numeric_grade" json:"numeric_grade"`
	LetterGrade  string    `db:"letter_grade" json:"letter_grade"`
	GradePoints  float64   `db:"grade_points" json:"grade_points"`
	SubmittedBy  string    `db:"submitted_by" json:"submitted_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeResult returns the stored grade together with the enrollment state it produced.
type GradeResult struct {
	Grade            Grade            `json:"grade"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status"`
	StudentGPA       *float64         `json:"student_gpa,omitempty"`
	TotalCredits     *int             `json:"total_credits,omitempty"`
}
