package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository/memstore"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

// registrarFixture is a seeded in-memory registrar:
//
//	CS101  3cr  slot-mon9   sec-cs101 (cap 30)  sec-cs101-b (slot-tue9, cap 30)
//	MATH101 3cr slot-mon9   sec-math            (clashes with sec-cs101)
//	CS201  4cr  slot-wed9   sec-cs201           requires CS101 >= 2.0
//	CAP    10cr slot-thu9   sec-cap
//	OLD    3cr  slot-fri9   sec-old             inactive course
type registrarFixture struct {
	store       *memstore.Store
	enrollments *EnrollmentService
	grades      *GradeService
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newRegistrarFixture(t *testing.T) *registrarFixture {
	t.Helper()
	store := memstore.New()

	store.AddSemester(models.Semester{ID: "sem-1", Name: "Fall 2026", Term: models.TermFall, Year: 2026})
	store.AddSemester(models.Semester{ID: "sem-0", Name: "Spring 2026", Term: models.TermSpring, Year: 2026})
	for i, slot := range []string{"slot-mon9", "slot-tue9", "slot-wed9", "slot-thu9", "slot-fri9"} {
		require.NoError(t, store.AddTimeSlot(models.TimeSlot{ID: slot, DayOfWeek: i + 1, StartTime: "09:00", EndTime: "10:30"}))
	}
	for _, course := range []models.Course{
		{ID: "c-cs101", Code: "CS101", Name: "Intro to Programming", Credits: 3, Active: true},
		{ID: "c-math101", Code: "MATH101", Name: "Calculus I", Credits: 3, Active: true},
		{ID: "c-cs201", Code: "CS201", Name: "Data Structures", Credits: 4, Active: true},
		{ID: "c-cap", Code: "CAP", Name: "Capstone", Credits: 10, Active: true},
		{ID: "c-old", Code: "OLD", Name: "Retired Course", Credits: 3, Active: false},
	} {
		require.NoError(t, store.AddCourse(course))
	}
	require.NoError(t, store.AddPrerequisite("c-cs201", "c-cs101", 2.0))
	for _, section := range []models.Section{
		{ID: "sec-cs101", CourseID: "c-cs101", SemesterID: "sem-1", TimeSlotID: "slot-mon9", MaxCapacity: 30},
		{ID: "sec-cs101-b", CourseID: "c-cs101", SemesterID: "sem-1", TimeSlotID: "slot-tue9", MaxCapacity: 30},
		{ID: "sec-math", CourseID: "c-math101", SemesterID: "sem-1", TimeSlotID: "slot-mon9", MaxCapacity: 30},
		{ID: "sec-cs201", CourseID: "c-cs201", SemesterID: "sem-1", TimeSlotID: "slot-wed9", MaxCapacity: 30},
		{ID: "sec-cap", CourseID: "c-cap", SemesterID: "sem-1", TimeSlotID: "slot-thu9", MaxCapacity: 30},
		{ID: "sec-old", CourseID: "c-old", SemesterID: "sem-1", TimeSlotID: "slot-fri9", MaxCapacity: 30},
		{ID: "sec-cs101-prev", CourseID: "c-cs101", SemesterID: "sem-0", TimeSlotID: "slot-mon9", MaxCapacity: 30},
	} {
		require.NoError(t, store.AddSection(section))
	}
	store.AddStudent(models.Student{ID: "stu-1", StudentNumber: "S001", FullName: "Ada Lovelace"})
	store.AddStudent(models.Student{ID: "stu-2", StudentNumber: "S002", FullName: "Alan Turing"})
	store.AddStudent(models.Student{ID: "stu-susp", StudentNumber: "S003", FullName: "Grace Hopper", Status: models.StudentStatusSuspended})

	return &registrarFixture{
		store: store,
		enrollments: NewEnrollmentService(store, store, store, nil, nil, EnrollmentServiceConfig{
			MaxCreditsPerSemester: 12,
			MinCreditsPerSemester: 6,
			OperationTimeout:      2 * time.Second,
			Retry:                 fastRetry(),
		}, nil, nil),
		grades: NewGradeService(store, store, nil, nil, GradeServiceConfig{
			PassThreshold:    2.0,
			OperationTimeout: 2 * time.Second,
			Retry:            fastRetry(),
		}, nil, nil),
	}
}

func (f *registrarFixture) enroll(t *testing.T, studentID, sectionID string) *models.Enrollment {
	t.Helper()
	enrollment, err := f.enrollments.Enroll(context.Background(), EnrollRequest{StudentID: studentID, SectionID: sectionID, SemesterID: "sem-1"})
	require.NoError(t, err)
	return enrollment
}

// completeHistory records a finished CS101 in the previous semester with the given final grade.
func (f *registrarFixture) completeHistory(studentID, sectionID string, status models.EnrollmentStatus, numeric float64) string {
	letter, points := LetterGrade(numeric)
	id := studentID + "-" + sectionID + "-hist"
	f.store.PutHistory(models.Enrollment{
		ID:         id,
		StudentID:  studentID,
		SectionID:  sectionID,
		SemesterID: "sem-0",
		Status:     status,
	}, &models.Grade{NumericGrade: numeric, LetterGrade: letter, GradePoints: points, SubmittedBy: "registrar"})
	return id
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func scoreOf(v float64) *float64 {
	return &v
}
