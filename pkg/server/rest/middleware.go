// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/audit"
)

const principalKey = audit.PrincipalKey

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-API-Key, X-Functions-Key, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Location, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// LoggingMiddleware logs incoming requests and their response times
func LoggingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		statusCode := c.Writer.Status()
		fields := []adapters.Field{
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: c.Request.URL.Path},
			{Key: "status", Value: statusCode},
			{Key: "latency", Value: time.Since(startTime).String()},
			{Key: "client_ip", Value: c.ClientIP()},
		}
		if p, ok := c.Get(principalKey); ok {
			fields = append(fields, adapters.Field{Key: "principal", Value: p.(*adapters.Principal).ID})
		}

		switch {
		case statusCode >= 500:
			logger.Error(c.Request.Context(), "HTTP request completed", fields...)
		case statusCode >= 400:
			logger.Warn(c.Request.Context(), "HTTP request completed", fields...)
		default:
			logger.Info(c.Request.Context(), "HTTP request completed", fields...)
		}
	}
}

// ErrorHandlingMiddleware catches panics and returns proper error responses
func ErrorHandlingMiddleware(logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "Panic recovered",
					adapters.Field{Key: "panic", Value: err},
					adapters.Field{Key: "path", Value: c.Request.URL.Path})
				RespondWithError(c, http.StatusInternalServerError, "Internal server error")
				c.Abort()
			}
		}()

		c.Next()
	}
}

// RequestSizeLimitMiddleware limits the maximum size of request bodies
func RequestSizeLimitMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPost {
			if c.Request.ContentLength > maxSize {
				RespondWithError(c, http.StatusRequestEntityTooLarge, "Request entity too large")
				c.Abort()
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		}

		c.Next()
	}
}

// AuthenticationMiddleware authenticates HTTP requests using the provided
// authenticator. Health, metrics and API docs are not authenticated.
func AuthenticationMiddleware(authenticator adapters.Authenticator, logger adapters.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if publicRoutes[c.FullPath()] {
			c.Next()
			return
		}

		principal, err := authenticator.AuthenticateHTTP(c.Request.Context(), c.Request)
		if err != nil {
			logger.Warn(c.Request.Context(), "Authentication failed",
				adapters.Field{Key: "error", Value: err.Error()},
				adapters.Field{Key: "path", Value: c.Request.URL.Path},
				adapters.Field{Key: "method", Value: c.Request.Method},
				adapters.Field{Key: "client_ip", Value: c.ClientIP()},
			)
			RespondWithError(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}
