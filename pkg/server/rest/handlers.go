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
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jeremyhahn/go-objbackup/pkg/adapters"
	"github.com/jeremyhahn/go-objbackup/pkg/jobs"
	"github.com/jeremyhahn/go-objbackup/pkg/restore"
	"github.com/jeremyhahn/go-objbackup/pkg/service"
	"github.com/jeremyhahn/go-objbackup/pkg/version"
)

// Handler serves the restore endpoints.
type Handler struct {
	svc     *service.RestoreService
	baseURL string
	logger  adapters.Logger
}

// NewHandler creates a Handler. An empty baseURL derives status locations
// from the incoming request.
func NewHandler(svc *service.RestoreService, baseURL string, logger adapters.Logger) *Handler {
	if logger == nil {
		logger = adapters.NewNoOpLogger()
	}
	return &Handler{svc: svc, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

func (h *Handler) requestBaseURL(c *gin.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + c.Request.Host
}

// SubmitRestore godoc
// @Summary Submit a restore
// @Description Replays the journal for a date range. Sync requests run inline; Async requests are queued and return a status location.
// @Tags restore
// @Accept json
// @Produce json
// @Param request body restore.Request true "Restore request"
// @Success 200 {object} service.Response "Sync restore completed"
// @Success 202 {object} service.Response "Async restore accepted"
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} service.Response
// @Router /restore/blobs [post]
func (h *Handler) SubmitRestore(c *gin.Context) {
	var req restore.Request
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		var verr *restore.ValidationError
		if errors.As(err, &verr) {
			RespondWithError(c, http.StatusBadRequest, verr.Error())
			return
		}
		RespondWithError(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Submit(c.Request.Context(), req, h.requestBaseURL(c))
	if err != nil {
		var verr *restore.ValidationError
		if errors.As(err, &verr) {
			RespondWithError(c, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error(c.Request.Context(), "Restore submission failed",
			adapters.Field{Key: "error", Value: err.Error()})
		RespondWithError(c, http.StatusInternalServerError, "Failed to submit restore")
		return
	}

	switch {
	case resp.Status == string(jobs.StatusAccepted):
		c.Header("Location", resp.StatusLocationURI)
		c.JSON(http.StatusAccepted, resp)
	case resp.Status == string(jobs.StatusException):
		c.JSON(http.StatusInternalServerError, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// GetRestoreStatus godoc
// @Summary Get restore job status
// @Description Returns the current state of an asynchronous restore. Unknown jobs report Status "Unknown".
// @Tags restore
// @Produce json
// @Param datebucket path string true "Job partition key (year_week)"
// @Param id path string true "Job id"
// @Success 200 {object} service.Response
// @Router /restore/{datebucket}/{id} [get]
func (h *Handler) GetRestoreStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Status(c.Request.Context(), c.Param("datebucket"), c.Param("id")))
}

// HealthCheck godoc
// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Get(),
	})
}
