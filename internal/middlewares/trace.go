package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

const TraceHeader = "X-Trace-ID"

// TraceMiddleware 为每个请求分配 trace id 并输出访问日志
func TraceMiddleware(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		ctx := logger.WithTraceID(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, logger.GetTraceID(ctx))

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		// c.Request 可能已被认证中间件替换，取最新上下文以带上 user_id
		ctx = c.Request.Context()
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.ErrorContext(ctx, "request failed", fields...)
		case status >= 400:
			log.WarnContext(ctx, "request rejected", fields...)
		default:
			log.InfoContext(ctx, "request completed", fields...)
		}
	}
}

// Recovery 捕获 panic 并返回 500
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "panic recovered", zap.Any("panic", recovered), zap.Stack("stack"))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "internal server error"})
	})
}
