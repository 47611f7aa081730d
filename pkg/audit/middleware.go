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

package audit

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/server/middleware"
)

// PrincipalKey is the gin context key under which the authentication
// middleware stores the *adapters.Principal of a request.
const PrincipalKey = "principal"

// skipPrefixes are routes that are never audited.
var skipPrefixes = []string{"/health", "/metrics", "/swagger"}

// AuditMiddleware creates a Gin middleware for audit logging. It must run
// before authentication so rejected requests are recorded too.
func AuditMiddleware(auditLogger AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if !shouldAuditRequest(path) {
			return
		}

		statusCode := c.Writer.Status()
		requestID := middleware.RequestIDFromContext(c.Request.Context())
		if requestID == "" {
			requestID = c.Writer.Header().Get(middleware.RequestIDHeader)
		}

		if statusCode == http.StatusUnauthorized {
			_ = auditLogger.LogAuthFailure(c.Request.Context(), c.ClientIP(), requestID, "invalid or missing API key") // #nosec G104 -- audit failures must not fail the request
			return
		}

		event := &AuditEvent{
			Timestamp:  startTime,
			EventType:  determineEventType(c.Request.Method, c.FullPath()),
			Action:     c.Request.Method + " " + path,
			Result:     ResultSuccess,
			IPAddress:  c.ClientIP(),
			RequestID:  requestID,
			StatusCode: statusCode,
			Duration:   time.Since(startTime),
			Resource:   extractJob(c),
		}
		if p, ok := c.Get(PrincipalKey); ok {
			if principal, ok := p.(*adapters.Principal); ok {
				event.Principal = principal.ID
			}
		}
		if statusCode >= 400 {
			event.Result = ResultFailure
			if len(c.Errors) > 0 {
				event.ErrorMessage = c.Errors.Last().Error()
			}
		}
		_ = auditLogger.LogEvent(c.Request.Context(), event) // #nosec G104 -- audit failures must not fail the request
	}
}

func shouldAuditRequest(path string) bool {
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func determineEventType(method, route string) EventType {
	switch {
	case method == http.MethodPost && strings.HasSuffix(route, "/restore/blobs"):
		return EventRestoreSubmitted
	case method == http.MethodGet && strings.HasSuffix(route, "/restore/:datebucket/:id"):
		return EventRestoreStatus
	default:
		return EventRequest
	}
}

// extractJob returns the job addressed by a status lookup, or the job
// created by an asynchronous submission.
func extractJob(c *gin.Context) string {
	if pk, id := c.Param("datebucket"), c.Param("id"); pk != "" && id != "" {
		return pk + "/" + id
	}
	loc := c.Writer.Header().Get("Location")
	if i := strings.LastIndex(loc, "/restore/"); i >= 0 {
		return loc[i+len("/restore/"):]
	}
	return ""
}
