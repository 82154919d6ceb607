package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/univ-registrar-api/api/swagger"
	"github.com/noah-isme/univ-registrar-api/internal/handler"
	"github.com/noah-isme/univ-registrar-api/internal/models"
	"github.com/noah-isme/univ-registrar-api/internal/repository"
	"github.com/noah-isme/univ-registrar-api/internal/repository/memstore"
	"github.com/noah-isme/univ-registrar-api/internal/service"
	"github.com/noah-isme/univ-registrar-api/pkg/cache"
	"github.com/noah-isme/univ-registrar-api/pkg/config"
	"github.com/noah-isme/univ-registrar-api/pkg/database"
	"github.com/noah-isme/univ-registrar-api/pkg/jobs"
	"github.com/noah-isme/univ-registrar-api/pkg/logger"
)

// @title University Registrar API
// @version 1.0.0
// @description Enrollment validation and consistency engine
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// registrarStore is what the services need from a storage backend.
type registrarStore interface {
	repository.TxManager

	GetCourse(ctx context.Context, id string) (*models.Course, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	GetPrerequisites(ctx context.Context, courseID string) ([]models.Prerequisite, error)
	GetTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	GetSemester(ctx context.Context, id string) (*models.Semester, error)

	ListEnrollments(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error)
	ListStudentIDs(ctx context.Context) ([]string, error)
	StudentGPASummary(ctx context.Context, studentID string) (*models.StudentGPASummary, error)
	CourseStatistics(ctx context.Context, semesterID string) ([]models.CourseStatistics, error)
	SectionAvailability(ctx context.Context, sectionID string) (*models.SectionAvailability, error)
	SemesterCreditLoads(ctx context.Context, semesterID string) ([]models.StudentCreditLoad, error)
	OccupancyDrift(ctx context.Context) ([]models.OccupancyDrift, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	metrics := service.NewMetricsService()

	var (
		store    registrarStore
		pinger   handler.Pinger
		cacheSvc *service.CacheService
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logr.Warn("using in-memory store; data is lost on exit")
		mem := memstore.New()
		if err := memstore.SeedDemo(mem); err != nil {
			return fmt.Errorf("seed memory store: %w", err)
		}
		store = mem
	default:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := database.RunMigrations(db.DB, logr); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		store = repository.NewPostgresStore(db, cfg.Database.LockTimeout)
		pinger = db
	}

	if cfg.Redis.Enabled && cfg.Cache.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, serving read models uncached", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close()
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.TTL, logr, true)
		}
	}

	validate := validator.New()
	retry := service.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}

	enrollments := service.NewEnrollmentService(store, store, store, cacheSvc, metrics, service.EnrollmentServiceConfig{
		MaxCreditsPerSemester: cfg.Enrollment.MaxCreditsPerSemester,
		MinCreditsPerSemester: cfg.Enrollment.MinCreditsPerSemester,
		OperationTimeout:      cfg.Enrollment.OperationTimeout,
		Retry:                 retry,
	}, validate, logr.Named("enrollment"))
	grades := service.NewGradeService(store, store, cacheSvc, metrics, service.GradeServiceConfig{
		PassThreshold:    cfg.Enrollment.PassThreshold,
		OperationTimeout: cfg.Enrollment.OperationTimeout,
		Retry:            retry,
	}, validate, logr.Named("grades"))
	reports := service.NewReportService(store, store, cacheSvc, service.ReportConfig{
		MinCreditsPerSemester: cfg.Enrollment.MinCreditsPerSemester,
		MaxCreditsPerSemester: cfg.Enrollment.MaxCreditsPerSemester,
		CacheTTL:              cfg.Cache.TTL,
	}, logr.Named("reports"), nil, nil)
	reconcile := service.NewReconcileService(store, grades, metrics, jobs.QueueConfig{
		Workers:    cfg.Reconcile.Workers,
		MaxRetries: cfg.Reconcile.Retries,
		RetryDelay: cfg.Reconcile.RetryDelay,
		JobTimeout: cfg.Enrollment.OperationTimeout,
		Logger:     logr.Named("reconcile"),
	})
	// Workers outlive the signal context so queued recomputations drain during shutdown.
	reconcile.Start(context.WithoutCancel(ctx))
	defer reconcile.Stop()

	router := handler.NewRouter(handler.RouterDeps{
		Config:      cfg,
		Logger:      logr,
		Metrics:     metrics,
		Auth:        service.NewAuthService(cfg.JWT),
		Enrollments: enrollments,
		Grades:      grades,
		Reports:     reports,
		Reconcile:   reconcile,
		Dependency:  pinger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := reconcile.Wait(shutdownCtx); err != nil {
		logr.Warn("reconcile queue not drained", zap.Error(err))
	}
	return nil
}
