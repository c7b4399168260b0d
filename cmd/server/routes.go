package main

import (
	"github.com/gin-gonic/gin"
	"github.com/regdesk/backend/internal/handlers"
	"github.com/regdesk/backend/internal/middleware"
	"github.com/regdesk/backend/internal/storage"
	"github.com/regdesk/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) []*middleware.RateLimiter {
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.Use(middleware.CORS(svc.cfg.Server.Origins()...))

	// Per-IP limits for the endpoints worth abusing
	registrationLimiter := middleware.NewRateLimiter(0.2, 5)
	loginLimiter := middleware.NewRateLimiter(0.5, 5)
	decisionLimiter := middleware.NewRateLimiter(5, 20)

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	// Files written by the local blob store
	if local, ok := svc.blobs.(*storage.LocalStore); ok {
		r.Static("/uploads", local.Dir())
	}

	api := r.Group("/api")
	{
		// Public
		api.GET("/event", svc.publicHandler.Event)
		api.GET("/gallery", svc.publicHandler.Gallery)
		api.GET("/csrf", svc.publicHandler.CSRFToken)

		public := api.Group("", middleware.CSRFProtect())
		public.POST("/registrations", registrationLimiter.Middleware(), svc.registrationHandler.Register)
		public.POST("/auth/login", loginLimiter.Middleware(), svc.authHandler.Login)

		// Authenticated admin session
		session := api.Group("/auth")
		session.Use(middleware.AuthRequired(), middleware.CSRFProtect(), middleware.ActivityAudit())
		{
			session.GET("/me", svc.authHandler.GetCurrentAdmin)
			session.POST("/logout", svc.authHandler.Logout)
			session.POST("/change-password", svc.authHandler.ChangePassword)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.CSRFProtect(), middleware.ActivityAudit())
		{
			admin.GET("/stats", svc.teamHandler.Stats)
			admin.GET("/events", svc.sseHandler.StreamTeamEvents)

			// Teams
			admin.GET("/teams", svc.teamHandler.List)
			admin.GET("/teams/export", svc.teamHandler.Export)
			admin.GET("/teams/:id", svc.teamHandler.GetByID)
			admin.GET("/teams/:id/audit-logs", svc.teamHandler.AuditTrail)
			admin.POST("/teams/:id/decision", decisionLimiter.Middleware(), svc.teamHandler.Decide)
			admin.POST("/teams/:id/resend", decisionLimiter.Middleware(), svc.teamHandler.Resend)
			admin.PUT("/teams/:id/gallery", svc.teamHandler.ToggleGallery)

			// Event settings
			admin.GET("/settings", svc.settingHandler.GetAll)
			admin.PUT("/settings", svc.settingHandler.Update)

			// Logs
			admin.GET("/audit-logs", svc.auditLogHandler.List)
			admin.GET("/activity-logs", svc.activityLogHandler.List)
			admin.POST("/activity-logs/cleanup", svc.activityLogHandler.Cleanup)
		}
	}

	return []*middleware.RateLimiter{registrationLimiter, loginLimiter, decisionLimiter}
}
