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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// publicRoutes bypass authentication.
var publicRoutes = map[string]bool{
	"/health":       true,
	"/metrics":      true,
	"/swagger/*any": true,
}

// SetupRoutes configures all routes for the REST API
func SetupRoutes(router *gin.Engine, handler *Handler) {
	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		v1.POST("/restore/blobs", handler.SubmitRestore)
		v1.GET("/restore/:datebucket/:id", handler.GetRestoreStatus)
	}

	// Unversioned routes; status locations point here
	api := router.Group("/api")
	{
		api.POST("/restore/blobs", handler.SubmitRestore)
		api.GET("/restore/:datebucket/:id", handler.GetRestoreStatus)
	}
}
