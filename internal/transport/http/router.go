package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/backend/internal/config"
	"mailsync/backend/internal/health"
	"mailsync/backend/internal/middleware"
	"mailsync/backend/internal/monitoring"
	"mailsync/backend/internal/service"
	"mailsync/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AccountService *service.AccountService
	FetchService   *service.FetchService
	MessageService *service.MessageService
	Store          storage.Store
	Metrics        *monitoring.Metrics
	Health         *health.HealthChecker
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.SendBodyLimit))

	if deps.Metrics != nil {
		mm := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
		router.Use(mm.HTTPMetrics())
	}

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	messageHandler := NewMessageHandler(deps.FetchService, deps.MessageService)
	accountHandler := NewAccountHandler(deps.AccountService)

	// 健康检查与指标
	if deps.Health != nil {
		router.GET("/health", gin.WrapF(deps.Health.Live))
		router.GET("/ready", gin.WrapF(deps.Health.Ready))
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	if deps.Config.Server.RateLimitPerMin > 0 {
		v1.Use(middleware.RateLimitByIP(deps.Store, deps.Logger, deps.Config.Server.RateLimitPerMin, time.Minute))
	}
	{
		// ========== Message Routes ==========
		messageRoutes := v1.Group("/messages")
		{
			messageRoutes.GET("", messageHandler.listMessages)                  // 邮件列表（分页+搜索）
			messageRoutes.POST("/read", messageHandler.markRead)                // 标记已读
			messageRoutes.POST("/delete", messageHandler.deleteMessages)        // 删除（单封或批量）
			messageRoutes.POST("/reply", messageHandler.reply)                  // 回复
			messageRoutes.POST("/send", messageHandler.send)                    // 发送新邮件
			messageRoutes.GET("/attachment", messageHandler.downloadAttachment) // 附件下载
		}

		// ========== Account Routes ==========
		accountRoutes := v1.Group("/accounts")
		{
			accountRoutes.POST("", accountHandler.createAccount)
			accountRoutes.GET("", accountHandler.listAccounts)
			accountRoutes.GET("/:id", accountHandler.getAccount)
			accountRoutes.PUT("/:id", accountHandler.updateAccount)
			accountRoutes.DELETE("/:id", accountHandler.deleteAccount)
		}
	}

	return router
}
