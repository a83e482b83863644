package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailsync/backend/internal/storage"
)

// RateLimitByIP 按客户端 IP 的固定窗口限流中间件
//
// 计数存在 RateLimitRepository 里（Redis 或内存），多实例部署时
// 用 Redis 后端可以共享窗口。计数后端故障时放行请求，限流
// 不应成为单点。
func RateLimitByIP(store storage.RateLimitRepository, log *zap.Logger, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ip:%s", c.ClientIP())

		count, err := store.IncrementRateLimit(key, window)
		if err != nil {
			log.Warn("rate limit counter failed, allowing request",
				zap.String("key", key),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > limit {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
