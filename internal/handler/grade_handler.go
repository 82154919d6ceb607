package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	"github.com/noah-isme/univ-registrar-api/pkg/response"
)

type gradeService interface {
	SubmitGrade(ctx context.Context, req service.SubmitGradeRequest) (*models.GradeResult, error)
	UpdateGrade(ctx context.Context, req service.UpdateGradeRequest) (*models.GradeResult, error)
	ListGrades(ctx context.Context, enrollmentID, ownerStudentID string) ([]models.Grade, error)
	RecomputeGPA(ctx context.Context, studentID string) (*models.Student, error)
}

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades gradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Submit godoc
// @Summary Submit a grade
// @Description A final grade completes or fails the enrollment and recomputes the student's GPA.
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.SubmitGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [post]
func (h *GradeHandler) Submit(c *gin.Context) {
	var req service.SubmitGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.SubmittedBy = claims.UserID
	}
	result, err := h.grades.SubmitGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Update godoc
// @Summary Correct an existing grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.UpdateGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grades [put]
func (h *GradeHandler) Update(c *gin.Context) {
	var req service.UpdateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	if claims := claimsFromContext(c); claims != nil {
		req.SubmittedBy = claims.UserID
	}
	result, err := h.grades.UpdateGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List grades recorded for an enrollment
// @Tags Grades
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments/{id}/grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	grades, err := h.grades.ListGrades(c.Request.Context(), c.Param("id"), ownStudentID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// RecomputeGPA godoc
// @Summary Recompute a student's GPA from completed enrollments
// @Tags Students
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /students/{studentId}/gpa/recompute [post]
func (h *GradeHandler) RecomputeGPA(c *gin.Context) {
	student, err := h.grades.RecomputeGPA(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}
