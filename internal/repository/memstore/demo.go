package memstore

import "github.com/noah-isme/univ-registrar-api/internal/models"

// SeedDemo loads a small catalog so a memory-backed server is usable without
// an external database.
func SeedDemo(s *Store) error {
	s.AddSemester(models.Semester{ID: "2026-fall", Name: "Fall 2026", Term: models.TermFall, Year: 2026})

	slots := []models.TimeSlot{
		{ID: "mon-0900", DayOfWeek: 1, StartTime: "09:00", EndTime: "10:30"},
		{ID: "tue-0900", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:30"},
		{ID: "wed-1100", DayOfWeek: 3, StartTime: "11:00", EndTime: "12:30"},
	}
	for _, slot := range slots {
		if err := s.AddTimeSlot(slot); err != nil {
			return err
		}
	}

	courses := []models.Course{
		{ID: "cs101", Code: "CS101", Name: "Introduction to Programming", Credits: 3, DepartmentID: "cs", Active: true},
		{ID: "cs201", Code: "CS201", Name: "Data Structures", Credits: 4, DepartmentID: "cs", Active: true},
		{ID: "math101", Code: "MATH101", Name: "Calculus I", Credits: 3, DepartmentID: "math", Active: true},
	}
	for _, course := range courses {
		if err := s.AddCourse(course); err != nil {
			return err
		}
	}
	if err := s.AddPrerequisite("cs201", "cs101", 2.0); err != nil {
		return err
	}

	sections := []models.Section{
		{ID: "cs101-a", CourseID: "cs101", SemesterID: "2026-fall", TimeSlotID: "mon-0900", Location: "B-101", MaxCapacity: 40},
		{ID: "cs201-a", CourseID: "cs201", SemesterID: "2026-fall", TimeSlotID: "wed-1100", Location: "B-204", MaxCapacity: 30},
		{ID: "math101-a", CourseID: "math101", SemesterID: "2026-fall", TimeSlotID: "mon-0900", Location: "M-010", MaxCapacity: 60},
		{ID: "math101-b", CourseID: "math101", SemesterID: "2026-fall", TimeSlotID: "tue-0900", Location: "M-010", MaxCapacity: 60},
	}
	for _, section := range sections {
		if err := s.AddSection(section); err != nil {
			return err
		}
	}

	s.AddStudent(models.Student{ID: "stu-1001", StudentNumber: "S1001", FullName: "Ada Lovelace", DepartmentID: "cs"})
	s.AddStudent(models.Student{ID: "stu-1002", StudentNumber: "S1002", FullName: "Alan Turing", DepartmentID: "cs"})
	return nil
}
