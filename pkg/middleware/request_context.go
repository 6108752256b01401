package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dubbing-service/pkg/logger"
)

// gin.Context keys and headers used by the API middlewares.
const (
	KeyRequestID    = "request_id"
	KeyUserUUID     = "user_uuid"
	HeaderRequestID = "X-Request-ID"
	HeaderUserUUID  = "X-User-UUID"

	maxRequestIDLen = 64
)

// RequestContextMiddleware 为每个请求分配 request_id（沿用调用方传入的合法值），
// 写入 gin.Context 与 request context，并在请求结束后输出一行访问日志。
// 配音任务提交时的日志通过 request context 带上同一个 request_id。
func RequestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(KeyRequestID, reqID)
		if userUUID := strings.TrimSpace(c.GetHeader(HeaderUserUUID)); userUUID != "" {
			c.Set(KeyUserUUID, userUUID)
		}
		c.Writer.Header().Set(HeaderRequestID, reqID)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), reqID))

		c.Next()

		// /health is polled by orchestrators and would drown the log
		if c.FullPath() == "/health" {
			return
		}
		fields := logger.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": reqID,
		}
		if user := c.GetString(KeyUserUUID); user != "" {
			fields["user_uuid"] = user
		}
		if jobID := c.Param("job_id"); jobID != "" {
			fields["job_id"] = jobID
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("api request", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("api request", fields)
		default:
			logger.Info("api request", fields)
		}
	}
}

// validRequestID accepts short ids made of URL-safe characters so that a
// caller-supplied value is safe to echo back and log.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.', r == ':':
		default:
			return false
		}
	}
	return true
}
