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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/api/swagger"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/handler"
	internalmiddleware "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/middleware"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/models"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/repository"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/internal/service"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/cache"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/config"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/database"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/jobs"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/logger"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/mailer"
	corsmiddleware "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/middleware/cors"
	reqidmiddleware "github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/middleware/requestid"
	"github.com/Luis-Colab-on/Autoriza-o-Pagamento-Faepa-sub000/pkg/storage"
)

// @title FAEPA Payments API
// @version 1.0.0
// @description Payment request approval, payment and notice workflow
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, directory cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	if app.retryQueue != nil {
		app.retryQueue.Start(ctx)
		defer app.retryQueue.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type application struct {
	router     *gin.Engine
	retryQueue *jobs.Queue
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	location, err := time.LoadLocation(cfg.Workflow.Timezone)
	if err != nil {
		logr.Warn("unknown timezone, using UTC", zap.String("timezone", cfg.Workflow.Timezone), zap.Error(err))
		location = time.UTC
	}
	validate := validator.New()
	metrics := service.NewMetricsService()

	requestRepo := repository.NewPaymentRequestRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	coordinatorRepo := repository.NewCoordinatorRepository(db)
	eventRepo := repository.NewScheduledEventRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Directory.CacheTTL, logr, redisClient != nil)

	directory := service.NewDirectoryService(coordinatorRepo, cacheSvc, cfg.Directory.CacheTTL, auditRepo, validate, logr)
	scheduler := service.NewSchedulerService(eventRepo, directory, auditRepo, validate, logr)

	tpl, err := service.LoadNotificationTemplate(cfg.Workflow.TemplateFile)
	if err != nil {
		return nil, fmt.Errorf("load notification template: %w", err)
	}
	var sender mailer.Sender
	if cfg.Mail.Host != "" {
		sender = mailer.NewSMTPMailer(mailer.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			User:     cfg.Mail.User,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.FromName,
			Timeout:  cfg.Mail.Timeout,
		})
	}
	dispatcher := service.NewNotificationDispatcher(sender, scheduler, metrics, tpl, service.DispatcherConfig{
		FinanceEmail:  cfg.Finance.Email,
		FinanceName:   cfg.Finance.Name,
		EventIDPrefix: cfg.Workflow.EventIDPrefix,
		MailTimeout:   cfg.Mail.Timeout,
		Location:      location,
	}, logr)

	var retryQueue *jobs.Queue
	if cfg.MailRetry.Enabled && sender != nil {
		retryQueue = jobs.NewQueue("mail-retry", dispatcher.HandleRetry, jobs.QueueConfig{
			Workers:    cfg.MailRetry.Workers,
			MaxRetries: cfg.MailRetry.MaxRetries,
			RetryDelay: cfg.MailRetry.RetryDelay,
			Logger:     logr,
		})
		dispatcher.UseRetryQueue(retryQueue)
	}

	fileStore, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init attachment storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)
	attachments := service.NewAttachmentService(fileStore, signer, service.AttachmentConfig{
		APIPrefix:    cfg.APIPrefix,
		MaxSize:      cfg.Attachments.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Attachments.AllowedMIMEs,
	}, logr)

	workflow := service.NewWorkflowService(service.WorkflowDeps{
		Requests:    requestRepo,
		Submissions: submissionRepo,
		Directory:   directory,
		Dispatcher:  dispatcher,
		Attachments: attachments,
		Audit:       auditRepo,
		Trail:       auditRepo,
		Metrics:     metrics,
		Validator:   validate,
		Logger:      logr,
		AutoNotify:  cfg.Workflow.AutoNotify,
	})
	exporter := service.NewExportService(workflow, nil, nil, location, logr)
	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	checks := map[string]handler.ReadinessCheck{"database": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	ops := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		tokens:      tokens,
		audit:       auditRepo,
		logger:      logr,
		batches:     handler.NewPaymentBatchHandler(workflow, exporter),
		requests:    handler.NewPaymentRequestHandler(workflow, attachments),
		downloads:   handler.NewAttachmentHandler(attachments),
		events:      handler.NewEventHandler(scheduler),
		coordinator: handler.NewCoordinatorHandler(directory),
	})

	return &application{router: r, retryQueue: retryQueue}, nil
}

type routeDeps struct {
	tokens      internalmiddleware.TokenValidator
	audit       internalmiddleware.AuditWriter
	logger      *zap.Logger
	batches     *handler.PaymentBatchHandler
	requests    *handler.PaymentRequestHandler
	downloads   *handler.AttachmentHandler
	events      *handler.EventHandler
	coordinator *handler.CoordinatorHandler
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	api.Use(internalmiddleware.WithResponseMeta())

	api.GET("/attachments/download",
		internalmiddleware.Audit(d.audit, d.logger, models.AuditActionReceiptDownload, "payment_receipt", ""),
		d.downloads.Download,
	)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(d.tokens))

	finance := internalmiddleware.RequireRoles(models.RoleFinance)
	payers := internalmiddleware.RequireRoles(models.RoleFinance, models.RoleFaepa)
	readers := internalmiddleware.RequireRoles(models.RoleFinance, models.RoleFaepa, models.RoleCoordinator)
	coordinators := internalmiddleware.RequireRoles(models.RoleCoordinator)
	faepa := internalmiddleware.RequireRoles(models.RoleFaepa)

	batches := secured.Group("/payment-batches")
	batches.POST("", finance, d.batches.Create)
	batches.GET("", payers, d.batches.List)
	batches.GET("/:batchId", readers, d.batches.Get)
	batches.POST("/:batchId/forward", finance, d.batches.Forward)
	batches.POST("/:batchId/notify", payers, d.batches.Notify)
	batches.GET("/:batchId/export", payers,
		internalmiddleware.Audit(d.audit, d.logger, models.AuditActionBatchExport, "payment_batch", "batchId"),
		d.batches.Export,
	)

	requests := secured.Group("/payment-requests")
	requests.GET("/:id", d.requests.Get)
	requests.POST("/:id/decision", coordinators, d.requests.Decide)
	requests.POST("/:id/payment", faepa, d.requests.Pay)
	requests.GET("/:id/attachment", readers, d.requests.AttachmentLink)
	requests.GET("/:id/history", readers, d.requests.History)

	secured.GET("/coordinator/requests", coordinators, d.requests.Inbox)

	secured.GET("/events/mine", d.events.Mine)
	events := secured.Group("/events", finance)
	events.GET("", d.events.List)
	events.POST("", d.events.Create)
	events.GET("/:id", d.events.Get)
	events.PUT("/:id", d.events.Update)
	events.DELETE("/:id", d.events.Delete)

	coordinatorsGroup := secured.Group("/coordinators", finance)
	coordinatorsGroup.GET("", d.coordinator.List)
	coordinatorsGroup.GET("/:id", d.coordinator.Get)
	coordinatorsGroup.POST("", d.coordinator.Create)
	coordinatorsGroup.PUT("/:id", d.coordinator.Update)
	coordinatorsGroup.DELETE("/:id", d.coordinator.Delete)
}
