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

package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig lists the response headers to set. Empty values
// are omitted.
type SecurityHeadersConfig struct {
	ContentSecurityPolicy string
	FrameOptions          string
	ContentTypeOptions    string
	ReferrerPolicy        string

	// HSTSMaxAge enables Strict-Transport-Security on TLS requests when
	// positive.
	HSTSMaxAge int
}

// DefaultSecurityHeadersConfig suits a JSON API. HSTS is off until TLS is
// configured.
func DefaultSecurityHeadersConfig() *SecurityHeadersConfig {
	return &SecurityHeadersConfig{
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "no-referrer",
	}
}

// SecurityHeaders sets the configured headers on every response.
func SecurityHeaders(config *SecurityHeadersConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSecurityHeadersConfig()
	}
	headers := map[string]string{
		"Content-Security-Policy": config.ContentSecurityPolicy,
		"X-Frame-Options":         config.FrameOptions,
		"X-Content-Type-Options":  config.ContentTypeOptions,
		"Referrer-Policy":         config.ReferrerPolicy,
	}
	hsts := ""
	if config.HSTSMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", config.HSTSMaxAge)
	}

	return func(c *gin.Context) {
		for name, value := range headers {
			if value != "" {
				c.Header(name, value)
			}
		}
		if hsts != "" && c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}
