package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/config"
	"github.com/celloxen/intake/internal/domain/appointment"
	"github.com/celloxen/intake/internal/domain/assessment"
	"github.com/celloxen/intake/internal/domain/intake"
	"github.com/celloxen/intake/internal/domain/iris"
	"github.com/celloxen/intake/internal/domain/patient"
	"github.com/celloxen/intake/internal/domain/reassessment"
	"github.com/celloxen/intake/internal/domain/report"
	"github.com/celloxen/intake/internal/domain/therapy"
	"github.com/celloxen/intake/internal/domain/workflow"
	"github.com/celloxen/intake/internal/platform/audit"
	"github.com/celloxen/intake/internal/platform/auth"
	"github.com/celloxen/intake/internal/platform/cache"
	"github.com/celloxen/intake/internal/platform/db"
	"github.com/celloxen/intake/internal/platform/middleware"
	"github.com/celloxen/intake/internal/platform/notification"
	"github.com/celloxen/intake/internal/platform/phi"
	"github.com/celloxen/intake/internal/platform/reporting"
	"github.com/celloxen/intake/internal/platform/scheduling"
)

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

// app holds every wired service. Both the server and the one-shot jobs
// build it the same way.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	store      *db.Client
	stages     *cache.Store
	auditSink  *audit.PGSink
	dispatcher *notification.Dispatcher

	machine      *workflow.Machine
	patients     *patient.Service
	assessments  *assessment.Service
	iris         *iris.Service
	matcher      *therapy.Matcher
	reports      *report.Service
	appointments *appointment.Service
	reassess     *reassessment.Service
	coordinator  *intake.Coordinator
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	store, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("database unreachable at startup, serving from caches")
	}

	rdb, err := redisClient(cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, err
	}
	stages := cache.New(cache.Options{Prefix: "intake:stage:", TTL: cfg.StageCacheTTL, Redis: rdb, Logger: logger})

	enc, err := phi.FromHexKey(cfg.PHIEncryptionKey, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	grid, err := clinicGrid(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, store: store, stages: stages}
	a.auditSink = audit.NewPGSink(store, 0, logger)
	a.machine = workflow.NewMachine(workflow.NewRepoPG(store), stages, logger, workflow.Options{
		ReassessmentIntervalDays: cfg.ReassessmentIntervalDays,
		Audit:                    audit.Multi{audit.NewLogSink(logger), a.auditSink},
	})

	var sender notification.EmailSender = notification.NewRecordingSender(logger)
	if cfg.EmailEnabled() {
		sender = notification.NewSendGridSender(notification.SendGridConfig{
			BaseURL:   cfg.SendGridBaseURL,
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else {
		logger.Warn().Msg("SENDGRID_API_KEY not set, emails are recorded but not delivered")
	}
	a.dispatcher = notification.NewDispatcher(sender, nil, logger)

	a.patients = patient.NewService(patient.NewRepoPG(store, enc), a.machine, logger)
	a.assessments = assessment.NewService(
		assessment.NewQuestionRepoPG(store),
		assessment.NewSessionRepoPG(store),
		assessment.NewResponseRepoPG(store),
		assessment.NewContraindicationDetector(),
		logger,
	)
	var generator assessment.FollowUpGenerator
	if cfg.FollowUpGeneratorURL != "" {
		generator = assessment.NewHTTPFollowUpGenerator(cfg.FollowUpGeneratorURL, 0, logger)
	} else {
		logger.Info().Msg("FOLLOWUP_GENERATOR_URL not set, follow-ups use the fallback questions")
	}
	a.assessments.WithFollowUps(assessment.NewFollowUpRepoPG(store), generator)
	a.iris = iris.NewService(iris.NewRepoPG(store), logger)
	a.matcher = therapy.NewMatcher()
	a.reports = report.NewService(report.NewRepoPG(store), report.NewBuilder(a.matcher), report.XLSXRenderer{ClinicName: cfg.ClinicName}, logger)
	a.appointments = appointment.NewService(appointment.NewRepoPG(store), grid, logger)
	a.reassess = reassessment.NewService(reassessment.NewRepoPG(store), grid, a.appointments, cfg.ReassessmentIntervalDays, logger)

	a.coordinator = intake.NewCoordinator(intake.Deps{
		Workflow:      a.machine,
		Patients:      a.patients,
		Assessments:   a.assessments,
		Iris:          a.iris,
		Reports:       a.reports,
		Appointments:  a.appointments,
		Reassessments: a.reassess,
		Notifier:      a.dispatcher,
		ClinicName:    cfg.ClinicName,
	}, logger)
	return a, nil
}

// Close waits for queued emails and audit events, then releases the store.
func (a *app) Close() {
	a.dispatcher.Wait()
	a.auditSink.Close()
	if err := a.stages.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("stage cache close failed")
	}
	a.store.Close()
}

func redisClient(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return cache.NewRedisClient(opts.Addr, opts.Password, opts.DB), nil
}

func clinicGrid(cfg *config.Config) (*scheduling.Grid, error) {
	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("clinic timezone: %w", err)
	}
	return scheduling.NewGrid(scheduling.GridOptions{
		Open:        cfg.ClinicOpen,
		Close:       cfg.ClinicClose,
		SlotMinutes: cfg.ClinicSlotMinutes,
		Location:    loc,
	})
}

func (a *app) routes() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.RequestTimeout(30*time.Second, "/api/v1/reports/"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(a.store, db.Dependency{Name: "stage_cache", Ping: a.stages.Ping}))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		a.logger.Warn().Msg("development mode: requests without a token run as clinic admin")
		apiV1.Use(auth.DevAuthMiddleware(cfg.DefaultClinic))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	workflow.NewHandler(a.machine, a.patients).RegisterRoutes(apiV1)
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	assessment.NewHandler(a.assessments).RegisterRoutes(apiV1)
	iris.NewHandler(a.iris).RegisterRoutes(apiV1)
	therapy.NewHandler(a.matcher).RegisterRoutes(apiV1)
	report.NewHandler(a.reports).RegisterRoutes(apiV1)
	appointment.NewHandler(a.appointments).RegisterRoutes(apiV1)
	reassessment.NewHandler(a.reassess, a.patients).RegisterRoutes(apiV1)
	intake.NewHandler(a.coordinator).RegisterRoutes(apiV1)

	admin := apiV1.Group("/admin", auth.Admin())
	notification.NewHandler(a.dispatcher).RegisterRoutes(admin)
	reporting.NewHandler(a.store).RegisterRoutes(admin)

	return e
}

// reconcile pings the store and flushes cached stages it missed.
func (a *app) reconcile(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := a.store.Ping(pingCtx)
	cancel()
	if err != nil {
		return
	}
	if n := a.machine.Reconcile(ctx); n > 0 {
		a.logger.Info().Int("flushed", n).Msg("cached stages written to store")
	}
}

// every runs fn on each tick until stop is called. stop returns only after
// the last run of fn has finished.
func every(ctx context.Context, interval time.Duration, fn func(context.Context)) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.assessments.Questions(ctx); err != nil {
		logger.Warn().Err(err).Msg("question bank not loaded, will retry on first request")
	}

	e := a.routes()
	// deferred after Close, so it runs first and no Reconcile outlives the audit sink
	stopReconcile := every(ctx, cfg.ReconcileInterval, a.reconcile)
	defer stopReconcile()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
