package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/export"
)

type reportServiceMock struct {
	creditReport *models.SemesterCreditReport
	rendered     *service.RenderedReport
	exportFormat export.Format
	statsScope   string
	err          error
}

func (m *reportServiceMock) StudentGPA(ctx context.Context, studentID string) (*models.StudentGPASummary, error) {
	return &models.StudentGPASummary{StudentID: studentID}, m.err
}

func (m *reportServiceMock) SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error) {
	return &models.SectionAvailability{SectionID: sectionID}, m.err
}

func (m *reportServiceMock) CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error) {
	m.statsScope = semesterID
	return []models.CourseStatistics{}, m.err
}

func (m *reportServiceMock) SemesterCreditLoad(ctx context.Context, semesterID string) (*models.SemesterCreditReport, error) {
	return m.creditReport, m.err
}

func (m *reportServiceMock) ExportSemesterCreditLoad(ctx context.Context, semesterID string, format export.Format) (*service.RenderedReport, error) {
	m.exportFormat = format
	return m.rendered, m.err
}

func (m *reportServiceMock) OccupancyAudit(ctx context.Context) ([]models.OccupancyDrift, error) {
	return nil, m.err
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReportHandlerCreditLoadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{creditReport: &models.SemesterCreditReport{SemesterID: "sem-1", MinCredits: 10}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/semesters/sem-1/credit-load", nil)
	c.Params = gin.Params{{Key: "id", Value: "sem-1"}}

	handler.CreditLoad(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"min_credits":10`)
	assert.Equal(t, export.Format(""), mockSvc.exportFormat)
}

func TestReportHandlerCreditLoadDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{rendered: &service.RenderedReport{Filename: "credit-load-sem-1.csv", ContentType: "text/csv", Body: []byte("student_number\n")}}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/semesters/sem-1/credit-load?format=CSV", nil)
	c.Params = gin.Params{{Key: "id", Value: "sem-1"}}

	handler.CreditLoad(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV, mockSvc.exportFormat)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="credit-load-sem-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "student_number\n", w.Body.String())
}

func TestReportHandlerCreditLoadRejectsFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{})

	c, w := newGinContext(http.MethodGet, "/reports/semesters/sem-1/credit-load?format=xlsx", nil)
	c.Params = gin.Params{{Key: "id", Value: "sem-1"}}

	handler.CreditLoad(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestReportHandlerCourseStatisticsScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reportServiceMock{}
	handler := NewReportHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/reports/course-statistics?semesterId=sem-2", nil)
	handler.CourseStatistics(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sem-2", mockSvc.statsScope)
}

func TestReportHandlerTransientErrorAdvertisesRetry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReportHandler(&reportServiceMock{err: appErrors.Clone(appErrors.ErrTransient, "")})

	c, w := newGinContext(http.MethodGet, "/sections/sec-1/availability", nil)
	c.Params = gin.Params{{Key: "id", Value: "sec-1"}}
	handler.SectionAvailability(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

type reconcileMock struct {
	single []string
	all    int
	err    error
}

func (m *reconcileMock) EnqueueStudent(studentID string) (string, error) {
	m.single = append(m.single, studentID)
	return "job-1", m.err
}

func (m *reconcileMock) EnqueueAll(ctx context.Context) (int, error) {
	m.all++
	return 4, m.err
}

func TestAdminHandlerReconcile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reconcileMock{}
	handler := NewAdminHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/admin/reconcile/gpa", nil)
	handler.ReconcileGPA(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), `"queued":4`)
	assert.Equal(t, 1, mockSvc.all)

	c, w = newGinContext(http.MethodPost, "/admin/reconcile/gpa", []byte(`{"student_id":"stu-9"}`))
	handler.ReconcileGPA(c)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"stu-9"}, mockSvc.single)
	assert.Contains(t, w.Body.String(), `"job_id":"job-1"`)

	mockSvc.err = errors.New("boom")
	c, w = newGinContext(http.MethodPost, "/admin/reconcile/gpa", []byte(`{"student_id":`))
	handler.ReconcileGPA(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestReadyReflectsDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewMetricsHandler(nil, pingerFunc(func(ctx context.Context) error { return errors.New("down") }))

	c, w := newGinContext(http.MethodGet, "/ready", nil)
	handler.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "TRANSIENT_FAILURE")

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	handler.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
