package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/univ-registrar-api/internal/middleware"
	"github.com/noah-isme/univ-registrar-api/internal/models"
	appErrors "github.com/noah-isme/univ-registrar-api/pkg/errors"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// ownStudentID returns the student a STUDENT token is confined to, or "" for
// staff roles that may act on any student.
func ownStudentID(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleStudent {
		return ""
	}
	return claims.StudentID
}

// resolveStudent fills requested from the token for students and rejects a
// student naming someone else.
func resolveStudent(c *gin.Context, requested string) (string, error) {
	own := ownStudentID(c)
	if own == "" {
		if requested == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, "student_id is required")
		}
		return requested, nil
	}
	if requested != "" && requested != own {
		return "", appErrors.Clone(appErrors.ErrForbidden, "students may only act on their own enrollments")
	}
	return own, nil
}

func invalidPayload(err error) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
