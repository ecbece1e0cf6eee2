package handler

import (
	"fmt"
	"net/http"

	"sppg/internal/middleware"
	"sppg/internal/repository"
	"sppg/internal/service"
	"sppg/pkg/pagination"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
)

type DistributionHandler struct {
	distributionService service.DistributionService
	guard               *middleware.Guard
}

func NewDistributionHandler(distributionService service.DistributionService, guard *middleware.Guard) *DistributionHandler {
	return &DistributionHandler{distributionService: distributionService, guard: guard}
}

func (h *DistributionHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guard.RequirePermission("distribution.read")

	group := router.Group("/api/distributions")
	group.Use(h.guard.RequireAuth())
	{
		group.GET("", read, h.ListDistributions)
		group.GET("/:id", read, h.GetDistribution)
		group.GET("/:id/manifest.pdf", read, h.Manifest)
		group.POST("", h.guard.RequirePermission("distribution.create"), h.CreateDistribution)
		group.POST("/:id/advance", h.guard.RequirePermission("distribution.manage"), h.AdvanceDistribution)
	}
}

// CreateDistribution handles POST /distributions
// @Summary      Create distribution
// @Description  Every batch must be COMPLETED and pass the quality gate. School allocations may not exceed what was produced.
// @Tags         distribution
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDistributionRequest  true  "Distribution"
// @Success      201      {object}  response.Response{data=model.Distribution}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/distributions [post]
func (h *DistributionHandler) CreateDistribution(c *gin.Context) {
	var req service.CreateDistributionRequest
	if !bindJSON(c, &req) {
		return
	}
	dist, err := h.distributionService.CreateDistribution(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, dist))
}

// ListDistributions handles GET /distributions
// @Summary      List distributions
// @Tags         distribution
// @Produce      json
// @Security     BearerAuth
// @Param        status     query     string  false  "Status"
// @Param        driver_id  query     string  false  "Driver ID"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=object}
// @Router       /api/distributions [get]
func (h *DistributionHandler) ListDistributions(c *gin.Context) {
	p := pagination.Parse(c)
	driverID, ok := optionalID(c, "driver_id")
	if !ok {
		return
	}
	filter := repository.DistributionFilter{Status: c.Query("status"), DriverID: driverID, Page: p.Page, Limit: p.Limit}

	dists, total, err := h.distributionService.ListDistributions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(dists, total, p)))
}

func (h *DistributionHandler) GetDistribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	dist, err := h.distributionService.GetDistribution(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dist))
}

// AdvanceDistribution moves the distribution to the requested status
// @Summary      Advance distribution
// @Tags         distribution
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                              true  "Distribution ID"
// @Param        payload  body      service.AdvanceDistributionRequest  true  "Target status"
// @Success      200      {object}  response.Response{data=model.Distribution}
// @Failure      409      {object}  response.Response
// @Router       /api/distributions/{id}/advance [post]
func (h *DistributionHandler) AdvanceDistribution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.AdvanceDistributionRequest
	if !bindJSON(c, &req) {
		return
	}
	dist, err := h.distributionService.AdvanceDistribution(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dist))
}

// Manifest streams the driver manifest PDF
// @Summary      Distribution manifest
// @Tags         distribution
// @Produce      application/pdf
// @Security     BearerAuth
// @Param        id   path  string  true  "Distribution ID"
// @Success      200  {file}  binary
// @Router       /api/distributions/{id}/manifest.pdf [get]
func (h *DistributionHandler) Manifest(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	pdf, err := h.distributionService.RenderManifest(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="manifest-%s.pdf"`, id))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
