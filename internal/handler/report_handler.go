package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
	"github.com/noah-isme/univ-registrar-api/pkg/export"
	"github.com/noah-isme/univ-registrar-api/pkg/response"
)

type reportService interface {
	StudentGPA(ctx context.Context, studentID string) (*models.StudentGPASummary, error)
	SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error)
	CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error)
	SemesterCreditLoad(ctx context.Context, semesterID string) (*models.SemesterCreditReport, error)
	ExportSemesterCreditLoad(ctx context.Context, semesterID string, format export.Format) (*service.RenderedReport, error)
	OccupancyAudit(ctx context.Context) ([]models.OccupancyDrift, error)
}

// ReportHandler exposes read-model endpoints.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// StudentGPA godoc
// @Summary Student GPA summary
// @Tags Students
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/gpa [get]
func (h *ReportHandler) StudentGPA(c *gin.Context) {
	summary, err := h.reports.StudentGPA(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// SectionAvailability godoc
// @Summary Seats taken and remaining for a section
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sections/{id}/availability [get]
func (h *ReportHandler) SectionAvailability(c *gin.Context) {
	availability, err := h.reports.SectionAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// CourseStatistics godoc
// @Summary Enrollment outcomes per course
// @Tags Reports
// @Produce json
// @Param semesterId query string false "Restrict to one semester"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/course-statistics [get]
func (h *ReportHandler) CourseStatistics(c *gin.Context) {
	stats, err := h.reports.CourseStatistics(c.Request.Context(), c.Query("semesterId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// CreditLoad godoc
// @Summary Semester credit-load report
// @Description Flags students outside the advisory credit range. format=csv or format=pdf downloads a file.
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Semester ID"
// @Param format query string false "json, csv or pdf"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/semesters/{id}/credit-load [get]
func (h *ReportHandler) CreditLoad(c *gin.Context) {
	format := export.Format(strings.ToLower(c.DefaultQuery("format", string(export.FormatJSON))))
	switch format {
	case export.FormatJSON:
		report, err := h.reports.SemesterCreditLoad(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, report, nil)
	case export.FormatCSV, export.FormatPDF:
		rendered, err := h.reports.ExportSemesterCreditLoad(c.Request.Context(), c.Param("id"), format)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, rendered.Filename, rendered.ContentType, rendered.Body)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json, csv or pdf"))
	}
}

// OccupancyAudit godoc
// @Summary Sections whose seat counter disagrees with enrolled rows
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /reports/occupancy-audit [get]
func (h *ReportHandler) OccupancyAudit(c *gin.Context) {
	drift, err := h.reports.OccupancyAudit(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, drift, nil, map[string]interface{}{"consistent": len(drift) == 0})
}
