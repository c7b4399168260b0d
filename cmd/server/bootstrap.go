package main

import (
	"context"
	"time"

	"github.com/regdesk/backend/internal/config"
	"github.com/regdesk/backend/internal/handlers"
	"github.com/regdesk/backend/internal/models"
	"github.com/regdesk/backend/internal/services"
	"github.com/regdesk/backend/internal/storage"
	"github.com/regdesk/backend/internal/utils"
	"github.com/regdesk/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg          *config.Config
	blobs        storage.BlobStore
	taskQueue    services.TaskQueue
	worker       *services.Worker
	retry        *services.RetryService
	activityLogs *services.ActivityLogService

	authHandler         *handlers.AuthHandler
	registrationHandler *handlers.RegistrationHandler
	teamHandler         *handlers.TeamHandler
	settingHandler      *handlers.SettingHandler
	publicHandler       *handlers.PublicHandler
	auditLogHandler     *handlers.AuditLogHandler
	activityLogHandler  *handlers.ActivityLogHandler
	healthHandler       *handlers.HealthHandler
	sseHandler          *handlers.SSEHandler
}

// bootstrap initializes all application dependencies: database, storage,
// queue, services and schedulers.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	// Initialize database
	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}
	if err := models.SeedDefaultData(); err != nil {
		logger.Warn().Err(err).Msg("Failed to seed default data")
	}
	db := models.GetDB()

	services.InitActivityLogger(db)
	activityLogs := services.NewActivityLogService(db, cfg.Log.ActivityRetentionDays)
	if err := activityLogs.StartCleanupScheduler(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start activity log cleanup")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	blobs, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize %s storage: %v", cfg.Storage.Driver, err)
	}
	logger.Infof("[Storage] Using %s blob store", cfg.Storage.Driver)

	// Core services
	store := services.NewGormTeamStore(db)
	settings := services.NewEventSettingService(db, cfg.Workflow.EventTimezone)
	teams := services.NewTeamService(db, store)
	mailer := services.NewEmailService(&cfg.SMTP)
	if !cfg.SMTP.Enabled {
		logger.Warn().Msg("SMTP is disabled: decision emails will be recorded as failed until it is configured")
	}

	events := services.NewEventHub()

	// Initialize task queue (uses Redis if enabled, otherwise in-process)
	taskQueue := services.InitTaskQueue(cfg)
	verifier := services.NewVerificationService(store, blobs, mailer, cfg.Workflow, services.WithTaskQueue(taskQueue), services.WithEventHub(events))
	processor := services.NotificationProcessor(verifier, settings)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(processor)
	}

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		if worker != nil {
			worker.SetProcessor(processor)
			if err := worker.Start(); err != nil {
				logger.Warn().Err(err).Msg("Failed to start worker")
			}
		}
	}

	// Sweep failed and stuck deliveries
	retry := services.NewRetryService(db, taskQueue, cfg.Workflow)
	if err := retry.StartScheduler(); err != nil {
		logger.Warn().Err(err).Msg("Failed to start delivery retry scheduler")
	}

	captcha := services.NewCaptchaVerifier(&cfg.Captcha)
	registrations := services.NewRegistrationService(db, blobs, captcha, cfg.Workflow.StepTimeout)
	registrations.SetEventHub(events)

	// Create default admin
	authHandler := handlers.NewAuthHandler(db, cfg)
	if err := authHandler.CreateAdminIfNotExists(&cfg.Admin); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin")
	}

	handlers.RegisterMetrics(db, teams, taskQueue)

	return &appServices{
		cfg:          cfg,
		blobs:        blobs,
		taskQueue:    taskQueue,
		worker:       worker,
		retry:        retry,
		activityLogs: activityLogs,

		authHandler:         authHandler,
		registrationHandler: handlers.NewRegistrationHandler(registrations),
		teamHandler:         handlers.NewTeamHandler(teams, verifier, settings, services.NewExportService(db)),
		settingHandler:      handlers.NewSettingHandler(settings),
		publicHandler:       handlers.NewPublicHandler(teams, settings, cfg.Server.CookieSecure),
		auditLogHandler:     handlers.NewAuditLogHandler(db),
		activityLogHandler:  handlers.NewActivityLogHandler(activityLogs),
		healthHandler:       handlers.NewHealthHandler(db, taskQueue, events),
		sseHandler:          handlers.NewSSEHandler(events),
	}
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.retry.StopScheduler()
	s.activityLogs.StopCleanupScheduler()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		if err := s.taskQueue.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close task queue")
		}
	}
	if err := s.blobs.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close blob store")
	}
}
