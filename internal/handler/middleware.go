package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"nojsfp/internal/logger"
	"nojsfp/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// RequestID echoes the caller's X-Request-ID or assigns a fresh one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDHeader, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog records latency per route template and logs server errors. Probe traffic is high
// volume, so successful requests are logged at debug.
func AccessLog(l *zap.Logger, rec metrics.Recorder) gin.HandlerFunc {
	l = logger.OrNop(l)
	rec = metrics.OrNoop(rec)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		rec.ObserveHTTP(route, c.Request.Method, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", c.GetString(requestIDHeader)),
		}
		if status >= 500 {
			l.Warn("http request failed", fields...)
			return
		}
		l.Debug("http request", fields...)
	}
}
