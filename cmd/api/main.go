package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "sppg/api/swagger" // swagger docs
	"sppg/internal/auth"
	"sppg/internal/cache"
	"sppg/internal/config"
	"sppg/internal/database"
	"sppg/internal/event"
	"sppg/internal/handler"
	"sppg/internal/logger"
	"sppg/internal/middleware"
	"sppg/internal/repository"
	"sppg/internal/service"
	"sppg/internal/storage"
	"sppg/internal/websocket"
	"sppg/pkg/validation"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           SPPG Operations API
// @version         1.0
// @description     Production, quality, distribution and delivery workflow for school meal kitchens.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.Database.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	log.Info("connected to PostgreSQL")

	if err := validation.Register(); err != nil {
		log.WithError(err).Fatal("failed to register validators")
	}

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(cfg.CORSOrigins, log)
	go wsHub.Run(ctx)

	publishers := event.MultiPublisher{wsHub}
	if cfg.RabbitMQ.Enabled() {
		conn, err := event.ConnectRabbitMQ(cfg.RabbitMQ.URL())
		if err != nil {
			log.WithError(err).Fatal("rabbitmq connection failed")
		}
		defer conn.Close()
		rabbit, err := event.NewRabbitPublisher(conn, cfg.RabbitMQ.Queue, log)
		if err != nil {
			log.WithError(err).Fatal("rabbitmq publisher setup failed")
		}
		publishers = append(publishers, rabbit)
		log.WithField("queue", cfg.RabbitMQ.Queue).Info("publishing workflow events to RabbitMQ")
	}

	queue := cache.NewMemoryDriverStatsQueue()
	if cfg.Redis.Enabled() {
		client, err := cache.NewRedisClient(cfg.Redis.Addr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer client.Close()
		queue = cache.NewRedisDriverStatsQueue(client)
	}

	// stays nil unless MinIO is configured; proof uploads are then rejected
	var proofs storage.ProofStore
	if cfg.MinIO.Enabled() {
		store, err := storage.NewMinioProofStore(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL, log)
		if err != nil {
			log.WithError(err).Fatal("minio setup failed")
		}
		proofs = store
	}

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	productionRepo := repository.NewProductionRepository(db)
	qualityRepo := repository.NewQualityRepository(db)
	distributionRepo := repository.NewDistributionRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)
	driverRepo := repository.NewDriverRepository(db)
	vehicleRepo := repository.NewVehicleRepository(db)
	schoolRepo := repository.NewSchoolRepository(db)

	deps := service.Deps{
		DB:        db,
		Tx:        repository.NewTransactionManager(db),
		Audit:     auditRepo,
		Publisher: publishers,
		Queue:     queue,
		Log:       log,
		Now:       time.Now,
	}
	tokens := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.TTL)

	authzService := service.NewAuthorizationService(userRepo, roleRepo, cfg.PermissionCacheTTL)
	roleService := service.NewRoleService(deps, roleRepo, authzService)
	userService := service.NewUserService(deps, userRepo, roleRepo, authzService, tokens)
	auditService := service.NewAuditService(auditRepo)
	productionService := service.NewProductionService(deps, productionRepo)
	qualityService := service.NewQualityService(deps, qualityRepo, productionRepo)
	distributionService := service.NewDistributionService(deps, distributionRepo, deliveryRepo, productionRepo, qualityService, schoolRepo, driverRepo, vehicleRepo)
	deliveryService := service.NewDeliveryService(deps, deliveryRepo, distributionRepo, driverRepo, vehicleRepo, proofs)
	statisticsService := service.NewStatisticsService(deps, repository.NewStatisticsRepository(db), driverRepo)
	masterService := service.NewMasterDataService(driverRepo, vehicleRepo, schoolRepo)

	if err := roleService.SeedDefaults(ctx); err != nil {
		log.WithError(err).Fatal("failed to seed permission catalog")
	}
	if cfg.Admin.Email != "" && cfg.Admin.Password != "" {
		if err := userService.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			log.WithError(err).Fatal("failed to seed admin user")
		}
	}
	if reports, err := roleService.CheckConsistency(ctx); err != nil {
		log.WithError(err).Warn("role consistency check failed")
	} else {
		for _, r := range reports {
			log.WithFields(map[string]interface{}{"role": r.RoleName, "unknown": r.Unknown, "inactive": r.Inactive}).
				Warn("role lists permissions that do not resolve")
		}
	}

	guard := middleware.NewGuard(tokens, authzService, cfg.SecureCookies)

	// Initialize Handlers
	handlers := []interface{ RegisterRoutes(*gin.RouterGroup) }{
		handler.NewUserHandler(userService, guard),
		handler.NewRoleHandler(roleService, guard),
		handler.NewProductionHandler(productionService, guard),
		handler.NewQualityHandler(qualityService, guard),
		handler.NewDistributionHandler(distributionService, guard),
		handler.NewDeliveryHandler(deliveryService, guard),
		handler.NewMasterDataHandler(masterService, guard),
		handler.NewStatisticsHandler(statisticsService, guard),
		handler.NewAuditHandler(auditService, guard),
		handler.NewEventsHandler(wsHub, guard),
	}

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	for _, h := range handlers {
		h.RegisterRoutes(router.Group(""))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
