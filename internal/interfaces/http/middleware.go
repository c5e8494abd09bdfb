package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	headerActorID   = "X-Actor-ID"

	ctxRequestID = "request_id"
	ctxActorID   = "actor_id"
)

// requestIDMiddleware keeps a caller-supplied request ID or assigns one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func loggingMiddleware(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxRequestID),
			"actor_id", c.GetInt64(ctxActorID),
		)
	}
}

// actorMiddleware requires a positive X-Actor-ID header. Identity is
// established upstream; this service only trusts the header.
func actorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(headerActorID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Success: false,
				Error:   "missing or invalid " + headerActorID + " header",
				Kind:    "unauthenticated",
			})
			return
		}
		c.Set(ctxActorID, id)
		c.Next()
	}
}

func actorID(c *gin.Context) int64 {
	return c.GetInt64(ctxActorID)
}
