package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

// catalogReader is the read-only catalog. It exposes no way to touch section occupancy.
type catalogReader interface {
	GetCourse(ctx context.Context, id string) (*models.Course, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	GetPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error)
	GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	GetSemester(ctx context.Context, id string) (*models.Semester, error)
}

type enrollmentLister interface {
	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	SectionID      string `json:"section_id" validate:"required"`
	SemesterID     string `json:"semester_id" validate:"required"`
	Retake         bool   `json:"retake"`
	ApprovalStatus string `json:"approval_status" validate:"omitempty,max=32"`
}

// DropRequest identifies the enrollment to drop. A non-empty StudentID
// restricts the drop to that student's own enrollment.
type DropRequest struct {
	EnrollmentID string `validate:"required"`
	StudentID    string
}

// EnrollmentServiceConfig carries the registration limits and execution bounds.
type EnrollmentServiceConfig struct {
	MaxCreditsPerSemester int
	MinCreditsPerSemester int
	OperationTimeout      time.Duration
	Retry                 RetryPolicy
}

// EnrollmentService validates and applies enrollments and drops.
type EnrollmentService struct {
	runner      *ledgerRunner
	catalog     catalogReader
	enrollments enrollmentLister
	cache       *CacheService
	metrics     *MetricsService
	cfg         EnrollmentServiceConfig
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(tx repository.TxManager, catalog catalogReader, enrollments enrollmentLister, cache *CacheService, metrics *MetricsService, cfg EnrollmentServiceConfig, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCreditsPerSemester <= 0 {
		cfg.MaxCreditsPerSemester = 40
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &EnrollmentService{
		runner:      newLedgerRunner(tx, cfg.Retry, cfg.OperationTimeout, metrics, logger),
		catalog:     catalog,
		enrollments: enrollments,
		cache:       cache,
		metrics:     metrics,
		cfg:         cfg,
		validator:   validate,
		logger:      logger,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, *models.Pagination, error) {
	enrollments, total, err := s.enrollments.ListEnrollments(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Enroll registers a student in a section. On success exactly one enrolled row
// exists and the section counter moved by one; on failure nothing changed.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	start := time.Now()
	enrollment, err := s.enroll(ctx, req)
	s.recordDecision("enroll", err, start)
	if err != nil {
		s.logger.Info("enrollment rejected",
			zap.String("student_id", req.StudentID),
			zap.String("section_id", req.SectionID),
			zap.String("code", appErrors.FromError(err).Code),
		)
		return nil, err
	}
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("section_id", enrollment.SectionID),
		zap.Bool("retake", enrollment.IsRetake),
	)
	s.cache.invalidateSection(context.WithoutCancel(ctx), enrollment.SectionID)
	return enrollment, nil
}

func (s *EnrollmentService) enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	section, course, preconditions, err := s.loadTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(preconditions) > 0 {
		return nil, preconditions[0]
	}

	var created *models.Enrollment
	err = s.runner.run(ctx, "enroll", func(ctx context.Context, tx repository.LedgerTx) error {
		snapshot, err := s.snapshot(ctx, tx, req, section, course, true)
		if err != nil {
			return err
		}
		if violation := firstViolation(snapshot); violation != nil {
			return violation
		}
		enrollment := &models.Enrollment{
			StudentID:      req.StudentID,
			SectionID:      section.ID,
			SemesterID:     section.SemesterID,
			Status:         models.EnrollmentStatusEnrolled,
			ApprovalStatus: req.ApprovalStatus,
			IsRetake:       req.Retake,
		}
		if err := tx.InsertEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := tx.IncrementSectionCount(ctx, section.ID); err != nil {
			return err
		}
		created = enrollment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Explain evaluates every rule without writing and reports all violations and advisories.
func (s *EnrollmentService) Explain(ctx context.Context, req EnrollRequest) (*models.EnrollmentEligibility, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	section, course, preconditions, err := s.loadTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &models.EnrollmentEligibility{StudentID: req.StudentID, SectionID: req.SectionID, Violations: []models.RuleViolation{}}
	for _, failed := range preconditions {
		result.Violations = append(result.Violations, models.RuleViolation{Rule: "precondition", Code: failed.Code, Message: failed.Message})
	}

	var ruleViolations []models.RuleViolation
	err = s.runner.run(ctx, "explain", func(ctx context.Context, tx repository.LedgerTx) error {
		snapshot, err := s.snapshot(ctx, tx, req, section, course, false)
		if err != nil {
			if errors.Is(err, appErrors.ErrStudentNotActive) {
				failed := appErrors.FromError(err)
				ruleViolations = []models.RuleViolation{{Rule: "precondition", Code: failed.Code, Message: failed.Message}}
				return nil
			}
			return err
		}
		ruleViolations = allViolations(snapshot)
		result.Warnings = creditWarnings(snapshot)
		result.Credits = snapshot.SemesterLoad() + course.Credits
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Violations = append(result.Violations, ruleViolations...)
	result.Eligible = len(result.Violations) == 0
	return result, nil
}

// Drop moves an enrolled record to dropped and releases its seat in one transaction.
func (s *EnrollmentService) Drop(ctx context.Context, req DropRequest) (*models.Enrollment, error) {
	start := time.Now()
	dropped, err := s.drop(ctx, req)
	s.recordDecision("drop", err, start)
	if err != nil {
		return nil, err
	}
	s.logger.Info("enrollment dropped",
		zap.String("enrollment_id", dropped.ID),
		zap.String("student_id", dropped.StudentID),
		zap.String("section_id", dropped.SectionID),
	)
	s.cache.invalidateSection(context.WithoutCancel(ctx), dropped.SectionID)
	return dropped, nil
}

func (s *EnrollmentService) drop(ctx context.Context, req DropRequest) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop request")
	}
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	var dropped *models.Enrollment
	err := s.runner.run(ctx, "drop", func(ctx context.Context, tx repository.LedgerTx) error {
		current, err := tx.GetEnrollment(ctx, req.EnrollmentID)
		if err != nil {
			return notFoundOr(err, "enrollment")
		}
		if req.StudentID != "" && current.StudentID != req.StudentID {
			return appErrors.Clone(appErrors.ErrForbidden, "enrollment belongs to another student")
		}
		if _, err := tx.LockStudent(ctx, current.StudentID); err != nil {
			return notFoundOr(err, "student")
		}
		if _, err := tx.LockSection(ctx, current.SectionID); err != nil {
			return notFoundOr(err, "section")
		}
		current, err = tx.GetEnrollment(ctx, req.EnrollmentID)
		if err != nil {
			return notFoundOr(err, "enrollment")
		}
		if current.Status.Terminal() {
			return appErrors.WithDetails(appErrors.ErrNotEnrolled, "", map[string]string{"status": string(current.Status)})
		}
		if err := tx.UpdateEnrollmentStatus(ctx, current.ID, models.EnrollmentStatusEnrolled, models.EnrollmentStatusDropped); err != nil {
			return err
		}
		if err := tx.DecrementSectionCount(ctx, current.SectionID); err != nil {
			return err
		}
		current.Status = models.EnrollmentStatusDropped
		current.UpdatedAt = time.Now().UTC()
		dropped = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dropped, nil
}

// loadTarget resolves the section and course from the catalog. Unknown ids
// are returned as errors; failed preconditions are returned separately so
// explain mode can report them alongside the rules.
func (s *EnrollmentService) loadTarget(ctx context.Context, req EnrollRequest) (*models.Section, *models.Course, []*appErrors.Error, error) {
	section, err := s.catalog.GetSection(ctx, req.SectionID)
	if err != nil {
		return nil, nil, nil, mapLedgerError(notFoundOr(err, "section"))
	}
	course, err := s.catalog.GetCourse(ctx, section.CourseID)
	if err != nil {
		return nil, nil, nil, mapLedgerError(notFoundOr(err, "course"))
	}
	if _, err := s.catalog.GetTimeSlot(ctx, section.TimeSlotID); err != nil {
		return nil, nil, nil, mapLedgerError(notFoundOr(err, "time slot"))
	}
	var preconditions []*appErrors.Error
	if section.SemesterID != req.SemesterID {
		preconditions = append(preconditions, appErrors.WithDetails(appErrors.ErrSemesterMismatch, "", map[string]string{
			"requested_semester_id": req.SemesterID,
			"section_semester_id":   section.SemesterID,
		}))
	}
	if !course.Active {
		preconditions = append(preconditions, appErrors.Clone(appErrors.ErrCourseInactive, ""))
	}
	return section, course, preconditions, nil
}

// snapshot reads everything the rules evaluate. With lock set it takes the
// student lock, then the section lock; the order is fixed to avoid deadlocks
// between enrollments. Explain mode reads the same rows without locking.
func (s *EnrollmentService) snapshot(ctx context.Context, tx repository.LedgerTx, req EnrollRequest, section *models.Section, course *models.Course, lock bool) (*EnrollmentSnapshot, error) {
	readStudent, readSection := tx.GetStudent, tx.GetSectionOccupancy
	if lock {
		readStudent, readSection = tx.LockStudent, tx.LockSection
	}
	student, err := readStudent(ctx, req.StudentID)
	if err != nil {
		return nil, notFoundOr(err, "student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.WithDetails(appErrors.ErrStudentNotActive, "", map[string]string{"status": string(student.Status)})
	}
	occupancy, err := readSection(ctx, section.ID)
	if err != nil {
		return nil, notFoundOr(err, "section")
	}

	records, err := tx.ListEnrollmentsForStudent(ctx, models.EnrollmentFilter{StudentID: student.ID})
	if err != nil {
		return nil, err
	}
	resolver := newCatalogResolver(s.catalog)
	history := make([]HistoryEntry, 0, len(records))
	completedIDs := make([]string, 0)
	for _, record := range records {
		if record.Status == models.EnrollmentStatusDropped {
			continue
		}
		recordSection, recordCourse, err := resolver.resolve(ctx, record.SectionID)
		if err != nil {
			return nil, err
		}
		history = append(history, HistoryEntry{Enrollment: record, Section: *recordSection, Course: *recordCourse})
		if record.Status == models.EnrollmentStatusCompleted {
			completedIDs = append(completedIDs, record.ID)
		}
	}

	prerequisites, err := s.catalog.GetPrerequisites(ctx, course.ID)
	if err != nil {
		return nil, err
	}
	finals, err := tx.ListFinalGrades(ctx, completedIDs)
	if err != nil {
		return nil, err
	}

	return &EnrollmentSnapshot{
		Student:       *student,
		Section:       *section,
		Course:        *course,
		Occupancy:     *occupancy,
		Retake:        req.Retake,
		History:       history,
		Prerequisites: prerequisites,
		FinalGrades:   finals,
		MaxCredits:    s.cfg.MaxCreditsPerSemester,
		MinCredits:    s.cfg.MinCreditsPerSemester,
	}, nil
}

func (s *EnrollmentService) recordDecision(operation string, err error, start time.Time) {
	code := "OK"
	if err != nil {
		code = appErrors.FromError(err).Code
	}
	s.metrics.RecordDecision(operation, code, time.Since(start))
}

// catalogResolver memoises section and course lookups within one snapshot.
type catalogResolver struct {
	catalog  catalogReader
	sections map[string]*models.Section
	courses  map[string]*models.Course
}

func newCatalogResolver(catalog catalogReader) *catalogResolver {
	return &catalogResolver{catalog: catalog, sections: map[string]*models.Section{}, courses: map[string]*models.Course{}}
}

func (r *catalogResolver) resolve(ctx context.Context, sectionID string) (*models.Section, *models.Course, error) {
	section, ok := r.sections[sectionID]
	if !ok {
		loaded, err := r.catalog.GetSection(ctx, sectionID)
		if err != nil {
			return nil, nil, notFoundOr(err, "section")
		}
		section = loaded
		r.sections[sectionID] = section
	}
	course, ok := r.courses[section.CourseID]
	if !ok {
		loaded, err := r.catalog.GetCourse(ctx, section.CourseID)
		if err != nil {
			return nil, nil, notFoundOr(err, "course")
		}
		course = loaded
		r.courses[section.CourseID] = course
	}
	return section, course, nil
}
