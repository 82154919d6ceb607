package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

// SubmitGradeRequest records a new grade for an enrollment.
type SubmitGradeRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	GradeType    models.GradeType `json:"grade_type" validate:"required"`
	NumericGrade *float64         `json:"numeric_grade" validate:"required"`
	SubmittedBy  string           `json:"submitted_by" validate:"required"`
}

// UpdateGradeRequest corrects an existing grade.
type UpdateGradeRequest struct {
	EnrollmentID string           `json:"enrollment_id" validate:"required"`
	GradeType    models.GradeType `json:"grade_type" validate:"required"`
	NumericGrade *float64         `json:"numeric_grade" validate:"required"`
	SubmittedBy  string           `json:"submitted_by" validate:"required"`
}

// GradeServiceConfig configures grading.
type GradeServiceConfig struct {
	PassThreshold    float64
	OperationTimeout time.Duration
	Retry            RetryPolicy
}

// GradeService posts grades, moves enrollments to their final status and owns
// the student GPA aggregate.
type GradeService struct {
	runner    *ledgerRunner
	catalog   catalogReader
	cache     *CacheService
	metrics   *MetricsService
	cfg       GradeServiceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(tx repository.TxManager, catalog catalogReader, cache *CacheService, metrics *MetricsService, cfg GradeServiceConfig, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = 2.0
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &GradeService{
		runner:    newLedgerRunner(tx, cfg.Retry, cfg.OperationTimeout, metrics, logger),
		catalog:   catalog,
		cache:     cache,
		metrics:   metrics,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// SubmitGrade stores a grade. A final grade completes or fails the enrollment
// and triggers a full GPA recomputation in the same transaction.
func (s *GradeService) SubmitGrade(ctx context.Context, req SubmitGradeRequest) (*models.GradeResult, error) {
	start := time.Now()
	result, err := s.submit(ctx, req)
	s.recordDecision("submit_grade", err, start)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grade submitted",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("grade_type", string(req.GradeType)),
		zap.String("letter", result.Grade.LetterGrade),
		zap.String("enrollment_status", string(result.EnrollmentStatus)),
	)
	if req.GradeType == models.GradeTypeFinal {
		s.cache.Invalidate(context.WithoutCancel(ctx), cacheKeyCourseStats+"*")
	}
	return result, nil
}

func (s *GradeService) submit(ctx context.Context, req SubmitGradeRequest) (*models.GradeResult, error) {
	letter, points, err := s.validate(req, req.GradeType, req.NumericGrade)
	if err != nil {
		return nil, err
	}
	numeric := *req.NumericGrade
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	var result *models.GradeResult
	err = s.runner.run(ctx, "submit_grade", func(ctx context.Context, tx repository.LedgerTx) error {
		enrollment, err := s.lockEnrollmentOwner(ctx, tx, req.EnrollmentID)
		if err != nil {
			return err
		}
		if _, err := tx.FindGrade(ctx, enrollment.ID, req.GradeType); err == nil {
			return appErrors.WithDetails(appErrors.ErrDuplicateGrade, "", map[string]string{"grade_type": string(req.GradeType)})
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if enrollment.Status.Terminal() {
			return appErrors.WithDetails(appErrors.ErrNotEnrolled, "", map[string]string{"status": string(enrollment.Status)})
		}

		grade := &models.Grade{
			EnrollmentID: enrollment.ID,
			GradeType:    req.GradeType,
			NumericGrade: numeric,
			LetterGrade:  letter,
			GradePoints:  points,
			SubmittedBy:  req.SubmittedBy,
		}
		if err := tx.InsertGrade(ctx, grade); err != nil {
			return err
		}
		result = &models.GradeResult{Grade: *grade, EnrollmentStatus: enrollment.Status}
		if req.GradeType != models.GradeTypeFinal {
			return nil
		}

		status := s.outcome(points)
		if err := tx.UpdateEnrollmentStatus(ctx, enrollment.ID, models.EnrollmentStatusEnrolled, status); err != nil {
			return err
		}
		result.EnrollmentStatus = status
		return s.attachGPA(ctx, tx, enrollment.StudentID, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateGrade is the correction path. It does not re-validate enrollment state;
// a corrected final grade re-derives the completed or failed status and the GPA.
func (s *GradeService) UpdateGrade(ctx context.Context, req UpdateGradeRequest) (*models.GradeResult, error) {
	start := time.Now()
	result, err := s.update(ctx, req)
	s.recordDecision("update_grade", err, start)
	if err != nil {
		return nil, err
	}
	s.logger.Info("grade corrected",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("grade_type", string(req.GradeType)),
		zap.String("letter", result.Grade.LetterGrade),
		zap.String("submitted_by", req.SubmittedBy),
	)
	if req.GradeType == models.GradeTypeFinal {
		s.cache.Invalidate(context.WithoutCancel(ctx), cacheKeyCourseStats+"*")
	}
	return result, nil
}

func (s *GradeService) update(ctx context.Context, req UpdateGradeRequest) (*models.GradeResult, error) {
	letter, points, err := s.validate(req, req.GradeType, req.NumericGrade)
	if err != nil {
		return nil, err
	}
	numeric := *req.NumericGrade
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	var result *models.GradeResult
	err = s.runner.run(ctx, "update_grade", func(ctx context.Context, tx repository.LedgerTx) error {
		enrollment, err := s.lockEnrollmentOwner(ctx, tx, req.EnrollmentID)
		if err != nil {
			return err
		}
		grade, err := tx.FindGrade(ctx, enrollment.ID, req.GradeType)
		if err != nil {
			return notFoundOr(err, "grade")
		}
		grade.NumericGrade = numeric
		grade.LetterGrade = letter
		grade.GradePoints = points
		grade.SubmittedBy = req.SubmittedBy
		if err := tx.UpdateGrade(ctx, grade); err != nil {
			return err
		}
		result = &models.GradeResult{Grade: *grade, EnrollmentStatus: enrollment.Status}
		if req.GradeType != models.GradeTypeFinal {
			return nil
		}

		if enrollment.Status == models.EnrollmentStatusCompleted || enrollment.Status == models.EnrollmentStatusFailed {
			status := s.outcome(points)
			if status != enrollment.Status {
				if err := tx.UpdateEnrollmentStatus(ctx, enrollment.ID, enrollment.Status, status); err != nil {
					return err
				}
			}
			result.EnrollmentStatus = status
		}
		return s.attachGPA(ctx, tx, enrollment.StudentID, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecomputeGPA rescans the student's completed enrollments and rewrites the aggregate.
// Running it repeatedly yields the same result.
func (s *GradeService) RecomputeGPA(ctx context.Context, studentID string) (*models.Student, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	start := time.Now()
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	var updated *models.Student
	err := s.runner.run(ctx, "recompute_gpa", func(ctx context.Context, tx repository.LedgerTx) error {
		student, err := tx.LockStudent(ctx, studentID)
		if err != nil {
			return notFoundOr(err, "student")
		}
		gpa, credits, err := s.recompute(ctx, tx, studentID)
		if err != nil {
			return err
		}
		student.GPA = gpa
		student.TotalCredits = credits
		updated = student
		return nil
	})
	s.recordDecision("recompute_gpa", err, start)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListGrades returns every grade recorded for an enrollment. A non-empty
// ownerStudentID hides enrollments belonging to anyone else.
func (s *GradeService) ListGrades(ctx context.Context, enrollmentID, ownerStudentID string) ([]models.Grade, error) {
	ctx, cancel := s.runner.withTimeout(ctx)
	defer cancel()

	var grades []models.Grade
	err := s.runner.run(ctx, "list_grades", func(ctx context.Context, tx repository.LedgerTx) error {
		enrollment, err := tx.GetEnrollment(ctx, enrollmentID)
		if err != nil {
			return notFoundOr(err, "enrollment")
		}
		if ownerStudentID != "" && enrollment.StudentID != ownerStudentID {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		grades, err = tx.ListGrades(ctx, enrollmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return grades, nil
}

func (s *GradeService) validate(req interface{}, gradeType models.GradeType, score *float64) (string, float64, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if score == nil {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, "numeric_grade is required")
	}
	numeric := *score
	if !gradeType.Valid() {
		return "", 0, appErrors.Clone(appErrors.ErrValidation, "unknown grade type "+string(gradeType))
	}
	if !validNumericGrade(numeric) {
		return "", 0, appErrors.WithDetails(appErrors.ErrInvalidGradeValue, "", map[string]float64{"numeric_grade": numeric})
	}
	letter, points := LetterGrade(numeric)
	return letter, points, nil
}

// lockEnrollmentOwner locks the student owning the enrollment so GPA writes
// for that student serialise, then re-reads the enrollment under the lock.
func (s *GradeService) lockEnrollmentOwner(ctx context.Context, tx repository.LedgerTx, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := tx.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment")
	}
	if _, err := tx.LockStudent(ctx, enrollment.StudentID); err != nil {
		return nil, notFoundOr(err, "student")
	}
	enrollment, err = tx.GetEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment")
	}
	return enrollment, nil
}

func (s *GradeService) outcome(points float64) models.EnrollmentStatus {
	if points >= s.cfg.PassThreshold {
		return models.EnrollmentStatusCompleted
	}
	return models.EnrollmentStatusFailed
}

func (s *GradeService) attachGPA(ctx context.Context, tx repository.LedgerTx, studentID string, result *models.GradeResult) error {
	gpa, credits, err := s.recompute(ctx, tx, studentID)
	if err != nil {
		return err
	}
	result.StudentGPA = &gpa
	result.TotalCredits = &credits
	return nil
}

// recompute derives gpa = Σ(points×credits)/Σcredits over completed
// enrollments, rounded to two decimals, and writes it with the credit total.
func (s *GradeService) recompute(ctx context.Context, tx repository.LedgerTx, studentID string) (float64, int, error) {
	completed, err := tx.ListEnrollmentsForStudent(ctx, models.EnrollmentFilter{
		StudentID: studentID,
		Statuses:  []models.EnrollmentStatus{models.EnrollmentStatusCompleted},
	})
	if err != nil {
		return 0, 0, err
	}
	ids := make([]string, len(completed))
	for i, enrollment := range completed {
		ids[i] = enrollment.ID
	}
	finals, err := tx.ListFinalGrades(ctx, ids)
	if err != nil {
		return 0, 0, err
	}

	resolver := newCatalogResolver(s.catalog)
	var weighted float64
	credits := 0
	for _, enrollment := range completed {
		grade, ok := finals[enrollment.ID]
		if !ok {
			s.logger.Warn("completed enrollment without final grade", zap.String("enrollment_id", enrollment.ID))
			continue
		}
		_, course, err := resolver.resolve(ctx, enrollment.SectionID)
		if err != nil {
			return 0, 0, err
		}
		weighted += grade.GradePoints * float64(course.Credits)
		credits += course.Credits
	}

	gpa := 0.0
	if credits > 0 {
		gpa = roundGPA(weighted / float64(credits))
	}
	if err := tx.UpdateStudentAggregate(ctx, studentID, gpa, credits); err != nil {
		return 0, 0, err
	}
	return gpa, credits, nil
}

func (s *GradeService) recordDecision(operation string, err error, start time.Time) {
	code := "OK"
	if err != nil {
		code = appErrors.FromError(err).Code
	}
	s.metrics.RecordDecision(operation, code, time.Since(start))
}
