package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	"github.com/noah-isme/univ-registrar-api/pkg/config"
)

func newAuth() *service.AuthService {
	return service.NewAuthService(config.JWTConfig{Secret: "secret", Issuer: "identity"})
}

func protectedRouter(auth *service.AuthService, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/students/:studentId/gpa", JWT(auth), RBAC(allowed...), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})
	return router
}

func call(router *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	router := protectedRouter(newAuth(), string(models.RoleAdmin))

	w := call(router, "/students/stu-1/gpa", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/students/stu-1/gpa", nil)
	req.Header.Set("Authorization", "Basic abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	w = call(router, "/students/stu-1/gpa", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRBACRoleAndSelfAccess(t *testing.T) {
	auth := newAuth()
	router := protectedRouter(auth, string(models.RoleAdmin), Self)

	admin, err := auth.IssueToken("admin-1", models.RoleAdmin, "", time.Hour)
	require.NoError(t, err)
	student, err := auth.IssueToken("user-7", models.RoleStudent, "stu-1", time.Hour)
	require.NoError(t, err)
	instructor, err := auth.IssueToken("inst-1", models.RoleInstructor, "", time.Hour)
	require.NoError(t, err)

	w := call(router, "/students/stu-2/gpa", admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin-1", w.Body.String())

	w = call(router, "/students/stu-1/gpa", student)
	assert.Equal(t, http.StatusOK, w.Code)

	w = call(router, "/students/stu-2/gpa", student)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = call(router, "/students/stu-1/gpa", instructor)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/x", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics))
	router.GET("/sections/:sectionId/availability", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b", "c"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sections/"+id+"/availability", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var paths []string
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths = append(paths, label.GetValue())
				}
			}
		}
	}
	assert.ElementsMatch(t, []string{"/sections/:sectionId/availability", "unmatched"}, paths)
}
