package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Publication  *service.PublicationService
	Targets      *service.TargetService
	Scheduler    *service.Scheduler
	Monitoring   *service.MonitoringService
	StatsUpdater *service.StatsUpdater
	Events       *service.EventBus
	Auth         *service.AuthService
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	stores := service.NewStores(&cfg.Database, db)

	// Initialize services
	manager, err := service.NewPublishManager(&cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register event publishers: %w", err)
	}
	events := service.NewEventBus(&cfg.Events, manager, logger)
	caps := service.NewCapabilities(cfg.Authorization)
	publicationService := service.NewPublicationService(cfg.Publication, stores, caps, events, logger)
	targetService := service.NewTargetService(stores.Targets, caps, logger)
	monitoringService := service.NewMonitoringService(db, stores, logger)
	scheduler := service.NewScheduler(&cfg.Scheduler, cfg.Authorization.SystemActorID, stores.Properties, publicationService, logger,
		service.WithRecorder(monitoringService))
	statsUpdater := service.NewStatsUpdater(monitoringService, logger, cfg.Monitoring.StatsInterval, cfg.Monitoring.RetentionDays)
	authService := service.NewAuthService(cfg.Auth, logger)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:       cfg,
		DB:           db,
		Router:       router,
		Logger:       logger,
		Publication:  publicationService,
		Targets:      targetService,
		Scheduler:    scheduler,
		Monitoring:   monitoringService,
		StatsUpdater: statsUpdater,
		Events:       events,
		Auth:         authService,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Request logging through zap
	s.Router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Logger.Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	})

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+HeaderActor+", "+HeaderGroups)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	api := s.Router.Group("/api/v1")
	api.Use(s.Auth.AuthMiddleware())
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.handleLogin)
			auth.POST("/logout", s.handleLogout)
		}

		scheduler := api.Group("/scheduler")
		{
			scheduler.GET("/status", s.handleSchedulerStatus)
			scheduler.POST("/tick", s.handleSchedulerTick)
		}

		api.GET("/dashboard", s.handleDashboard)

		errs := api.Group("/errors")
		{
			errs.GET("", s.handleGetErrors)
			errs.POST("/:id/resolve", s.handleResolveError)
		}

		articles := api.Group("/articles")
		{
			articles.POST("", s.handleCreateArticle)
			articles.GET("/:id", s.handleGetArticle)
			articles.PUT("/:id", s.handleUpdateArticle)
			articles.DELETE("/:id", s.handleDeleteArticle)
			articles.POST("/:id/schedule", s.handleScheduleArticle)
			articles.POST("/:id/unschedule", s.handleArticleAction(s.Publication.UnscheduleNews))
			articles.POST("/:id/publish", s.handleArticleAction(s.Publication.PostNews))
			articles.POST("/:id/unpublish", s.handleArticleAction(s.Publication.UnpublishNews))
			articles.POST("/:id/unpublish-schedule", s.handleScheduleUnpublish)
			articles.DELETE("/:id/unpublish-schedule", s.handleArticleAction(s.Publication.CancelUnpublishSchedule))
			articles.GET("/:id/targets", s.handleArticleTargets)
		}

		targets := api.Group("/targets")
		{
			targets.GET("", s.handleListTargets)
			targets.GET("/allowed", s.handleAllowedTargets)
			targets.POST("", s.handleCreateTarget)
			targets.PUT("/:name", s.handleUpdateTarget)
			targets.DELETE("/:name", s.handleDeleteTarget)
			targets.GET("/:name/articles", s.handleTargetArticles)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.Events.Start(ctx)

	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	s.StatsUpdater.Start(ctx)

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop producers first so the event bus can drain
	s.Scheduler.Stop()
	s.StatsUpdater.Stop()

	var err error
	if s.Server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		err = s.Server.Shutdown(shutdownCtx)
	}

	s.Events.Stop()
	return err
}
