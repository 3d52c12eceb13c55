package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video_progress_backend/internal/config"
	"video_progress_backend/internal/controller"
	"video_progress_backend/internal/repository"
	"video_progress_backend/internal/service"
	"video_progress_backend/pkg/configwatcher"
	"video_progress_backend/pkg/database"
	"video_progress_backend/pkg/logger"
	"video_progress_backend/pkg/monitoring"
	"video_progress_backend/pkg/security"
	"video_progress_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracerProvider  *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	lesson  *repository.LessonRepository
	attempt *repository.AttemptRepository
	session *repository.SessionRepository
	segment *repository.SegmentRepository
	seek    *repository.SeekRepository
}

type services struct {
	content  *service.ContentService
	segment  *service.SegmentService
	seek     *service.SeekService
	attempt  *service.AttemptService
	session  *service.SessionService
	progress *service.ProgressService
}

type controllers struct {
	lesson   *controller.LessonController
	watch    *controller.WatchController
	attempt  *controller.AttemptController
	progress *controller.ProgressController
	health   *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		lesson:  repository.NewLessonRepository(db),
		attempt: repository.NewAttemptRepository(db),
		session: repository.NewSessionRepository(db),
		segment: repository.NewSegmentRepository(db),
		seek:    repository.NewSeekRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) (*services, error) {
	s := &services{}

	content, err := service.NewContentService(repos.lesson, &cfg.Storage)
	if err != nil {
		return nil, err
	}
	s.content = content

	s.segment = service.NewSegmentService(repos.segment, repos.session)
	s.seek = service.NewSeekService(repos.seek, repos.session, cfg.Progress.SkipThresholdSeconds, cfg.Progress.DedupSeeks)
	s.attempt = service.NewAttemptService(repos.attempt, repos.session, repos.segment, repos.lesson)
	s.session = service.NewSessionService(repos.session, repos.segment, repos.seek, s.attempt, cfg.Progress.StaleSessionMinutes)
	s.progress = service.NewProgressService(repos.attempt, repos.session, repos.segment, repos.lesson, rdb, cfg.Progress.CacheTTLSeconds)

	// 会话聚合落库后让进度缓存失效
	s.session.SetAggregationListener(s.progress.Invalidate)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, cfg *config.Config) *controllers {
	return &controllers{
		lesson:   controller.NewLessonController(s.content),
		watch:    controller.NewWatchController(s.session, s.segment, s.seek),
		attempt:  controller.NewAttemptController(s.attempt, cfg),
		progress: controller.NewProgressController(s.progress, cfg),
		health:   controller.NewHealthController(db),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 6000
	}
	windowMinutes := cfg.RateLimit.WindowMinutes
	if windowMinutes <= 0 {
		windowMinutes = 1
	}
	router.Use(security.RateLimiter(maxRequests, time.Duration(windowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	// 心跳超时的会话由后台强制关闭并聚合
	go func() {
		ticker := time.NewTicker(time.Minute)
		for range ticker.C {
			reaped, err := s.session.ReapStale()
			if err != nil {
				logger.Log.Error("stale session reap error", zap.Error(err))
				continue
			}
			if reaped > 0 {
				logger.Log.Info("reaped stale sessions", zap.Int("count", reaped))
			}
		}
	}()

	// 配置热加载
	go configwatcher.WatchConfig("configs/config.yaml", func(newCfg *config.Config) {
		logger.Log.Info("config reloaded")
		for _, cb := range a.configCallbacks {
			cb(newCfg)
		}
	})
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	if cfg.MigrateOnly {
		return app
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db, cfg)

	app.RegisterConfigCallback(func(newCfg *config.Config) {
		services.seek.UpdateSettings(newCfg.Progress.SkipThresholdSeconds, newCfg.Progress.DedupSeeks)
		services.session.UpdateSettings(newCfg.Progress.StaleSessionMinutes)
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("video-progress", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	app.registerRoutes(router, controllers, cfg)

	app.startBackgroundTasks(services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	logger.Log.Sync()
	log.Println("Server exiting")
}
