package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/jobs"
)

type flakyRecomputer struct {
	mu       sync.Mutex
	failures map[string]error
	calls    map[string]int
}

func (f *flakyRecomputer) RecomputeGPA(ctx context.Context, studentID string) (*models.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[studentID]++
	if err, ok := f.failures[studentID]; ok {
		delete(f.failures, studentID)
		return nil, err
	}
	return &models.Student{ID: studentID}, nil
}

func waitReconcile(t *testing.T, s *ReconcileService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestReconcileRewritesDriftedGPA(t *testing.T) {
	f := newRegistrarFixture(t)
	f.completeHistory("stu-1", "sec-cs101-prev", models.EnrollmentStatusCompleted, 88)

	reconcile := NewReconcileService(f.store, f.grades, NewMetricsService(), jobs.QueueConfig{Workers: 2, RetryDelay: time.Millisecond})
	reconcile.Start(context.Background())
	defer reconcile.Stop()

	queued, err := reconcile.EnqueueAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, queued)
	waitReconcile(t, reconcile)

	student, _ := f.store.Student("stu-1")
	assert.Equal(t, 3.3, student.GPA)
	assert.Equal(t, 3, student.TotalCredits)
	assert.Equal(t, int64(3), reconcile.Stats().Succeeded)
}

func TestReconcileRetriesRetryableErrors(t *testing.T) {
	recomputer := &flakyRecomputer{
		failures: map[string]error{
			"stu-retry": appErrors.Clone(appErrors.ErrConsistencyConflict, ""),
			"stu-gone":  appErrors.Clone(appErrors.ErrNotFound, "student not found"),
		},
		calls: map[string]int{},
	}
	reconcile := NewReconcileService(nil, recomputer, nil, jobs.QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	reconcile.Start(context.Background())
	defer reconcile.Stop()

	_, err := reconcile.EnqueueStudent("stu-retry")
	require.NoError(t, err)
	_, err = reconcile.EnqueueStudent("stu-gone")
	require.NoError(t, err)
	waitReconcile(t, reconcile)

	recomputer.mu.Lock()
	defer recomputer.mu.Unlock()
	assert.Equal(t, 2, recomputer.calls["stu-retry"])
	assert.Equal(t, 1, recomputer.calls["stu-gone"])
	assert.Equal(t, int64(1), reconcile.Stats().Retried)
}

func TestReconcileEnqueueBeforeStart(t *testing.T) {
	reconcile := NewReconcileService(nil, &flakyRecomputer{calls: map[string]int{}}, nil, jobs.QueueConfig{})

	_, err := reconcile.EnqueueStudent("stu-1")

	assert.Equal(t, appErrors.ErrTransient.Code, errorCode(err))
}
