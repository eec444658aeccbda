// Package middleware provides the HTTP middleware chain. Authentication
// happens upstream; the identity headers it injects are trusted here.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stakevine/stakevine_core/internal/domain/entities"
	"github.com/stakevine/stakevine_core/pkg/logger"
)

const (
	// MaxRequestSize bounds webhook and API bodies
	MaxRequestSize = 1 << 20 // 1MB

	// HeaderAccountID carries the authenticated account set by the
	// upstream auth proxy
	HeaderAccountID = "X-Account-ID"
	// HeaderAdminID carries the authenticated operator
	HeaderAdminID = "X-Admin-ID"
)

// RequestID adds a unique request ID to each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// RequestSizeLimit limits the size of incoming requests
func RequestSizeLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestSize)
		c.Next()
	}
}

// Logger logs HTTP requests with structured fields
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("http request",
			"request_id", c.GetString("request_id"),
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Recovery converts panics into 500 responses
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					"request_id", c.GetString("request_id"),
					"panic", r,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, entities.ErrorResponse{
					Code:    "INTERNAL_ERROR",
					Message: "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// AccountRequired resolves the authenticated account from the upstream
// identity header
func AccountRequired() gin.HandlerFunc {
	return requireIdentity(HeaderAccountID, "account_id")
}

// AdminRequired resolves the authenticated operator from the upstream
// identity header
func AdminRequired() gin.HandlerFunc {
	return requireIdentity(HeaderAdminID, "admin_id")
}

func requireIdentity(header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(header)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "missing identity",
			})
			return
		}

		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, entities.ErrorResponse{
				Code:    "UNAUTHORIZED",
				Message: "invalid identity",
			})
			return
		}

		c.Set(key, id)
		c.Next()
	}
}
