package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/export"
)

type reportRepository interface {
	StudentGPASummary(ctx context.Context, studentID string) (*models.StudentGPASummary, error)
	CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error)
	SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error)
	SemesterCreditLoads(ctx context.Context, semesterID string) ([]models.StudentCreditLoad, error)
	OccupancyDrift(ctx context.Context) ([]models.OccupancyDrift, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ReportConfig carries the advisory credit bounds used by the credit-load report.
type ReportConfig struct {
	MinCreditsPerSemester int
	MaxCreditsPerSemester int
	CacheTTL              time.Duration
}

// RenderedReport is an exported report ready to be served.
type RenderedReport struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService serves read models derived from the ledger.
type ReportService struct {
	repo    reportRepository
	catalog catalogReader
	cache   *CacheService
	csv     csvRenderer
	pdf     pdfRenderer
	cfg     ReportConfig
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportService constructs ReportService. Nil renderers fall back to the pkg/export implementations.
func NewReportService(repo reportRepository, catalog catalogReader, cache *CacheService, cfg ReportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportService{repo: repo, catalog: catalog, cache: cache, csv: csv, pdf: pdf, cfg: cfg, logger: logger, now: time.Now}
}

// StudentGPA returns the stored aggregate with outcome counts.
func (s *ReportService) StudentGPA(ctx context.Context, studentID string) (*models.StudentGPASummary, error) {
	summary, err := s.repo.StudentGPASummary(ctx, studentID)
	if err != nil {
		return nil, mapLedgerError(notFoundOr(err, "student"))
	}
	return summary, nil
}

// SectionAvailability returns the seat picture of a section, cached briefly.
func (s *ReportService) SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error) {
	key := cacheKeyAvailability + sectionID
	var cached models.SectionAvailability
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	availability, err := s.repo.SectionAvailability(ctx, sectionID)
	if err != nil {
		return nil, mapLedgerError(notFoundOr(err, "section"))
	}
	availability.AvailableSeats = availability.MaxCapacity - availability.CurrentEnrollment
	if availability.AvailableSeats < 0 {
		availability.AvailableSeats = 0
	}
	availability.Status = models.AvailabilityOpen
	if availability.AvailableSeats == 0 {
		availability.Status = models.AvailabilityFull
	}
	s.cache.Set(ctx, key, availability, s.cfg.CacheTTL)
	return availability, nil
}

// CourseStatistics aggregates outcomes per active course. An empty semesterID covers every semester.
func (s *ReportService) CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error) {
	scope := semesterID
	if scope == "" {
		scope = "all"
	}
	key := cacheKeyCourseStats + scope
	var cached []models.CourseStatistics
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	if semesterID != "" {
		if _, err := s.catalog.GetSemester(ctx, semesterID); err != nil {
			return nil, mapLedgerError(notFoundOr(err, "semester"))
		}
	}
	stats, err := s.repo.CourseStatistics(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course statistics")
	}
	s.cache.Set(ctx, key, stats, s.cfg.CacheTTL)
	return stats, nil
}

// SemesterCreditLoad lists every student's credits in a semester and flags
// loads outside the advisory bounds.
func (s *ReportService) SemesterCreditLoad(ctx context.Context, semesterID string) (*models.SemesterCreditReport, error) {
	if _, err := s.catalog.GetSemester(ctx, semesterID); err != nil {
		return nil, mapLedgerError(notFoundOr(err, "semester"))
	}
	loads, err := s.repo.SemesterCreditLoads(ctx, semesterID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load credit loads")
	}
	below := 0
	for i := range loads {
		loads[i].BelowMinimum = s.cfg.MinCreditsPerSemester > 0 && loads[i].EnrolledCredits < s.cfg.MinCreditsPerSemester
		loads[i].AboveMaximum = s.cfg.MaxCreditsPerSemester > 0 && loads[i].EnrolledCredits > s.cfg.MaxCreditsPerSemester
		if loads[i].BelowMinimum {
			below++
		}
	}
	if below > 0 {
		s.logger.Info("students below advisory credit minimum",
			zap.String("semester_id", semesterID),
			zap.Int("count", below),
			zap.Int("min_credits", s.cfg.MinCreditsPerSemester),
		)
	}
	return &models.SemesterCreditReport{
		SemesterID:  semesterID,
		MinCredits:  s.cfg.MinCreditsPerSemester,
		MaxCredits:  s.cfg.MaxCreditsPerSemester,
		Students:    loads,
		GeneratedAt: s.now().UTC(),
	}, nil
}

// ExportSemesterCreditLoad renders the credit-load report as CSV or PDF.
func (s *ReportService) ExportSemesterCreditLoad(ctx context.Context, semesterID string, format export.Format) (*RenderedReport, error) {
	if format != export.FormatCSV && format != export.FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format "+string(format))
	}
	report, err := s.SemesterCreditLoad(ctx, semesterID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Title:   "Semester credit load " + semesterID,
		Headers: []string{"student_number", "student_name", "enrolled_credits", "below_minimum", "above_maximum"},
		Rows:    make([]map[string]string, 0, len(report.Students)),
	}
	for _, load := range report.Students {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"student_number":   load.StudentNumber,
			"student_name":     load.StudentName,
			"enrolled_credits": strconv.Itoa(load.EnrolledCredits),
			"below_minimum":    strconv.FormatBool(load.BelowMinimum),
			"above_maximum":    strconv.FormatBool(load.AboveMaximum),
		})
	}

	var body []byte
	if format == export.FormatCSV {
		body, err = s.csv.Render(dataset)
	} else {
		body, err = s.pdf.Render(dataset)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return &RenderedReport{
		Filename:    "credit-load-" + semesterID + "." + string(format),
		ContentType: format.ContentType(),
		Body:        body,
	}, nil
}

// OccupancyAudit lists sections whose counter disagrees with the enrolled rows.
// An empty result means every counter is consistent.
func (s *ReportService) OccupancyAudit(ctx context.Context) ([]models.OccupancyDrift, error) {
	drift, err := s.repo.OccupancyDrift(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit occupancy")
	}
	if len(drift) > 0 {
		s.logger.Error("section occupancy drift detected", zap.Int("sections", len(drift)))
	}
	return drift, nil
}
