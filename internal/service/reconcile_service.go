package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/jobs"
)

const jobTypeGPAReconcile = "gpa_reconcile"

type studentIDLister interface {
	ListStudentIDs(ctx context.Context) ([]string, error)
}

type gpaRecomputer interface {
	RecomputeGPA(ctx context.Context, studentID string) (*models.Student, error)
}

// ReconcileService re-runs GPA recomputation in the background. Each job is a
// full idempotent re-scan, so duplicates and retries are harmless.
type ReconcileService struct {
	queue    *jobs.Queue
	students studentIDLister
	gpa      gpaRecomputer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewReconcileService wires the queue handler. Call Start before enqueueing.
func NewReconcileService(students studentIDLister, gpa gpaRecomputer, metrics *MetricsService, cfg jobs.QueueConfig) *ReconcileService {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &ReconcileService{students: students, gpa: gpa, metrics: metrics, logger: cfg.Logger}
	s.queue = jobs.NewQueue("gpa-reconcile", s.handle, cfg)
	return s
}

// Start launches the workers.
func (s *ReconcileService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *ReconcileService) Stop() {
	s.queue.Stop()
}

// Wait blocks until queued re-scans have finished or ctx ends.
func (s *ReconcileService) Wait(ctx context.Context) error {
	return s.queue.Wait(ctx)
}

// Stats reports queue totals.
func (s *ReconcileService) Stats() jobs.Stats {
	return s.queue.Stats()
}

// EnqueueStudent schedules one student's re-scan and returns the job id.
func (s *ReconcileService) EnqueueStudent(studentID string) (string, error) {
	id := uuid.NewString()
	if err := s.queue.Enqueue(jobs.Job{ID: id, Type: jobTypeGPAReconcile, Payload: studentID}); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrTransient.Code, appErrors.ErrTransient.Status, "reconcile queue unavailable")
	}
	return id, nil
}

// EnqueueAll schedules a re-scan for every student and returns how many were queued.
func (s *ReconcileService) EnqueueAll(ctx context.Context) (int, error) {
	ids, err := s.students.ListStudentIDs(ctx)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	for i, id := range ids {
		if _, err := s.EnqueueStudent(id); err != nil {
			return i, err
		}
	}
	s.logger.Info("gpa reconciliation scheduled", zap.Int("students", len(ids)))
	return len(ids), nil
}

func (s *ReconcileService) handle(ctx context.Context, job jobs.Job) error {
	studentID, ok := job.Payload.(string)
	if !ok || studentID == "" {
		s.metrics.RecordReconcile("invalid")
		return nil
	}
	student, err := s.gpa.RecomputeGPA(ctx, studentID)
	if err != nil {
		if appErrors.IsRetryable(err) {
			s.metrics.RecordReconcile("retry")
			return fmt.Errorf("recompute gpa for %s: %w", studentID, err)
		}
		s.metrics.RecordReconcile("failed")
		s.logger.Warn("gpa reconcile skipped", zap.String("student_id", studentID), zap.Error(err))
		return nil
	}
	s.metrics.RecordReconcile("ok")
	s.logger.Debug("gpa reconciled",
		zap.String("student_id", studentID),
		zap.Float64("gpa", student.GPA),
		zap.Int("total_credits", student.TotalCredits),
	)
	return nil
}
