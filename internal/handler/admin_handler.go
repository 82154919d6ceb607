package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-registrar-api/pkg/response"
)

type reconcileScheduler interface {
	EnqueueStudent(studentID string) (string, error)
	EnqueueAll(ctx context.Context) (int, error)
}

// ReconcileRequest selects the students to re-scan. An empty StudentID means everyone.
type ReconcileRequest struct {
	StudentID string `json:"student_id"`
}

// AdminHandler exposes maintenance endpoints.
type AdminHandler struct {
	reconcile reconcileScheduler
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(reconcile reconcileScheduler) *AdminHandler {
	return &AdminHandler{reconcile: reconcile}
}

// ReconcileGPA godoc
// @Summary Schedule background GPA recomputation
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body ReconcileRequest false "Optional single student"
// @Success 202 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reconcile/gpa [post]
func (h *AdminHandler) ReconcileGPA(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, invalidPayload(err))
		return
	}

	if req.StudentID != "" {
		jobID, err := h.reconcile.EnqueueStudent(req.StudentID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusAccepted, gin.H{"job_id": jobID, "queued": 1}, nil)
		return
	}

	queued, err := h.reconcile.EnqueueAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"queued": queued}, nil)
}
