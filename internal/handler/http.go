// Package handler exposes the plot and version services over HTTP. Handlers
// stay thin: decode, delegate, map sentinel errors to status codes.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"plot-server/internal/models"
	"plot-server/internal/service"
)

// PlotHandler serves the plot and version HTTP API.
type PlotHandler struct {
	plots    service.PlotService
	versions service.VersionService
	logger   *zap.Logger
}

// NewPlotHandler wires the handler dependencies.
func NewPlotHandler(plots service.PlotService, versions service.VersionService, logger *zap.Logger) *PlotHandler {
	return &PlotHandler{
		plots:    plots,
		versions: versions,
		logger:   logger.Named("PlotHandler"),
	}
}

// RegisterRoutes mounts the API routes.
func (h *PlotHandler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/projects/:project_id/plots", h.createPlot)
		api.GET("/projects/:project_id/plots", h.listPlots)
		api.GET("/plots/:id", h.getPlot)
		api.PATCH("/plots/:id", h.patchPlot)
		api.DELETE("/plots/:id", h.deletePlot)
		api.POST("/plots/:id/generate", h.generateFlow)

		api.POST("/projects/:project_id/versions", h.createSnapshot)
		api.GET("/projects/:project_id/versions", h.listVersions)
		api.GET("/versions/:id", h.reconstructVersion)
		api.GET("/versions/:id/compare/:other", h.compareVersions)
		api.POST("/projects/:project_id/versions/:id/rollback", h.rollbackToVersion)
	}
}

func (h *PlotHandler) createPlot(c *gin.Context) {
	projectID, ok := pathUUID(c, "project_id")
	if !ok {
		return
	}
	var req createPlotRequest
	_ = c.ShouldBindJSON(&req) // empty body means default title

	plot, err := h.plots.CreatePlot(c.Request.Context(), projectID, req.Title)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plot)
}

func (h *PlotHandler) getPlot(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	plot, err := h.plots.GetPlot(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plot)
}

func (h *PlotHandler) listPlots(c *gin.Context) {
	projectID, ok := pathUUID(c, "project_id")
	if !ok {
		return
	}
	plots, err := h.plots.ListPlots(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plots)
}

func (h *PlotHandler) deletePlot(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	if err := h.plots.DeletePlot(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PlotHandler) patchPlot(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req patchPlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "request body must be JSON with an action"})
		return
	}
	plot, outcome, err := h.plots.PatchPlot(c.Request.Context(), id, req.Action, req.Payload)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plot": plot, "outcome": outcome})
}

func (h *PlotHandler) generateFlow(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req generateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "request body must be JSON with a prompt"})
		return
	}
	result, err := h.plots.GenerateFlow(c.Request.Context(), id, req.Prompt, req.PromptID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PlotHandler) createSnapshot(c *gin.Context) {
	projectID, ok := pathUUID(c, "project_id")
	if !ok {
		return
	}
	var req createSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.State) == 0 {
		c.JSON(http.StatusBadRequest, APIError{Message: "request body must carry a JSON state"})
		return
	}
	source := models.VersionSource(req.Source)
	if source != models.VersionSourceAI && source != models.VersionSourceManual {
		c.JSON(http.StatusBadRequest, APIError{Message: "source must be \"ai\" or \"manual\""})
		return
	}

	var state any
	if err := json.Unmarshal(req.State, &state); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "state is not valid JSON"})
		return
	}
	version, err := h.versions.CreateSnapshot(c.Request.Context(), projectID, state, source)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if version == nil {
		c.Status(http.StatusNoContent) // unchanged state, no version created
		return
	}
	c.JSON(http.StatusCreated, version)
}

func (h *PlotHandler) listVersions(c *gin.Context) {
	projectID, ok := pathUUID(c, "project_id")
	if !ok {
		return
	}
	versions, err := h.versions.ListVersions(c.Request.Context(), projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *PlotHandler) reconstructVersion(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	state, err := h.versions.ReconstructVersion(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *PlotHandler) compareVersions(c *gin.Context) {
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	other, ok := pathUUID(c, "other")
	if !ok {
		return
	}
	delta, err := h.versions.CompareVersions(c.Request.Context(), id, other)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": delta})
}

func (h *PlotHandler) rollbackToVersion(c *gin.Context) {
	projectID, ok := pathUUID(c, "project_id")
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	state, err := h.versions.RollbackToVersion(c.Request.Context(), projectID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

// respondError maps sentinel errors to HTTP statuses.
func (h *PlotHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrPlotNotFound),
		errors.Is(err, models.ErrVersionNotFound),
		errors.Is(err, models.ErrProjectNotFound),
		errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrUnknownPatchAction),
		errors.Is(err, models.ErrInvalidWorkflow),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, models.ErrBadRequest):
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
	case errors.Is(err, models.ErrVersionConflict):
		c.JSON(http.StatusConflict, APIError{Message: err.Error()})
	default:
		h.logger.Error("Unhandled error in handler", zap.Error(err))
		c.JSON(http.StatusInternalServerError, APIError{Message: models.ErrInternalServer.Error()})
	}
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
