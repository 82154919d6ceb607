package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/univ-registrar-api/internal/middleware"
	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	"github.com/noah-isme/univ-registrar-api/pkg/config"
	"github.com/noah-isme/univ-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/univ-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/univ-registrar-api/pkg/middleware/requestid"
)

// RouterDeps carries everything the HTTP surface is assembled from.
type RouterDeps struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *service.MetricsService
	Auth        middleware.TokenValidator
	Enrollments enrollmentService
	Grades      gradeService
	Reports     reportService
	Reconcile   reconcileScheduler
	Dependency  Pinger
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(deps.Metrics))

	ops := NewMetricsHandler(deps.Metrics, deps.Dependency)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	enrollments := NewEnrollmentHandler(deps.Enrollments)
	grades := NewGradeHandler(deps.Grades)
	reports := NewReportHandler(deps.Reports)
	admin := NewAdminHandler(deps.Reconcile)

	admins := string(models.RoleAdmin)
	instructors := string(models.RoleInstructor)
	students := string(models.RoleStudent)

	api := r.Group(cfg.APIPrefix, middleware.JWT(deps.Auth))

	api.GET("/enrollments", enrollments.List)
	api.POST("/enrollments", middleware.RBAC(students, admins), enrollments.Enroll)
	api.POST("/enrollments/explain", middleware.RBAC(students, admins), enrollments.Explain)
	api.DELETE("/enrollments/:id", middleware.RBAC(students, admins), enrollments.Drop)
	api.GET("/enrollments/:id/grades", grades.List)

	api.POST("/grades", middleware.RBAC(instructors, admins), grades.Submit)
	api.PUT("/grades", middleware.RBAC(instructors, admins), grades.Update)

	api.GET("/students/:studentId/gpa", middleware.RBAC(admins, instructors, middleware.Self), reports.StudentGPA)
	api.POST("/students/:studentId/gpa/recompute", middleware.RBAC(admins), grades.RecomputeGPA)

	api.GET("/sections/:id/availability", reports.SectionAvailability)

	reportGroup := api.Group("/reports")
	reportGroup.GET("/course-statistics", middleware.RBAC(admins, instructors), reports.CourseStatistics)
	reportGroup.GET("/semesters/:id/credit-load", middleware.RBAC(admins), reports.CreditLoad)
	reportGroup.GET("/occupancy-audit", middleware.RBAC(admins), reports.OccupancyAudit)

	api.POST("/admin/reconcile/gpa", middleware.RBAC(admins), admin.ReconcileGPA)

	return r
}
