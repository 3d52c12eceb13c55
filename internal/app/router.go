package app

import (
	"video_progress_backend/docs"
	"video_progress_backend/internal/config"
	"video_progress_backend/internal/middleware"
	"video_progress_backend/internal/util"
	"video_progress_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		// 课程目录
		authGroup.GET("/lessons", c.lesson.List)
		authGroup.GET("/lessons/:lessonId", c.lesson.Get)

		// 观看会话
		watch := authGroup.Group("/watch")
		{
			watch.POST("/sessions", c.watch.OpenSession)
			watch.POST("/sessions/:sessionId/segments", c.watch.RecordSegments)
			watch.POST("/sessions/:sessionId/seeks", c.watch.RecordSeeks)
			watch.POST("/sessions/:sessionId/heartbeat", c.watch.Heartbeat)
			watch.POST("/sessions/:sessionId/close", c.watch.CloseSession)
			watch.GET("/sessions/:sessionId/skips", c.watch.GetSkipAnalytics)
		}

		// 学习尝试
		attempts := authGroup.Group("/attempts")
		{
			attempts.POST("", c.attempt.GetOrCreate)
			attempts.POST("/:attemptId/complete", c.attempt.Complete)
			attempts.POST("/:attemptId/credit-history", c.attempt.CreditHistory)
		}

		// 学习进度
		progress := authGroup.Group("/progress")
		{
			progress.GET("/lessons/:lessonId", c.progress.GetProgress)
			progress.GET("/unassigned", c.progress.GetUnassignedHistory)
		}

		// 课程管理（管理员）
		admin := authGroup.Group("/lessons")
		admin.Use(middleware.RoleMiddleware(util.RoleAdmin))
		{
			admin.POST("", c.lesson.Create)
			admin.POST("/:lessonId/video", c.lesson.UploadVideo)
		}
	}
}
