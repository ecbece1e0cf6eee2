package handler

import (
	"net/http"
	"time"

	"sppg/internal/middleware"
	"sppg/internal/service"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	guard             *middleware.Guard
}

func NewStatisticsHandler(statisticsService service.StatisticsService, guard *middleware.Guard) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, guard: guard}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/statistics", h.guard.RequireAuth(), h.guard.RequirePermission("dashboard.read"), h.GetStatistics)

	maintenance := router.Group("/api/maintenance/driver-stats")
	maintenance.Use(h.guard.RequireAuth(), h.guard.RequirePermission("drivers.manage"))
	{
		maintenance.POST("/recompute", h.RecomputeAll)
		maintenance.POST("/recompute/pending", h.RecomputePending)
		maintenance.POST("/recompute/:id", h.RecomputeDriver)
	}
}

// @Summary      Get Dashboard Statistics
// @Description  Plan, batch and delivery totals plus the top drivers bounded by time
// @Tags         Statistics
// @Accept       json
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339)"
// @Param        end_date   query string false "End Date (RFC3339)"
// @Success      200 {object} response.Response{data=model.StatisticsResponse}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/statistics [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	startDateStr := c.Query("start_date")
	endDateStr := c.Query("end_date")

	var startDate, endDate time.Time
	var err error

	// Default to current month if no dates are provided
	now := time.Now()
	if startDateStr == "" {
		startDate = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	} else {
		startDate, err = time.Parse(time.RFC3339, startDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid start_date format, expected RFC3339"))
			return
		}
	}

	if endDateStr == "" {
		endDate = now
	} else {
		endDate, err = time.Parse(time.RFC3339, endDateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid end_date format, expected RFC3339"))
			return
		}
	}

	stats, err := h.statisticsService.GetStatistics(c.Request.Context(), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

// RecomputeAll rewrites every driver's delivery total from the DELIVERED rows
// @Summary      Recompute all driver stats
// @Tags         maintenance
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.DriverStatsResult}
// @Router       /api/maintenance/driver-stats/recompute [post]
func (h *StatisticsHandler) RecomputeAll(c *gin.Context) {
	result, err := h.statisticsService.RecomputeDriverStats(c.Request.Context(), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func (h *StatisticsHandler) RecomputeDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.statisticsService.RecomputeDriverStats(c.Request.Context(), &id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// RecomputePending drains the dirty-driver queue
func (h *StatisticsHandler) RecomputePending(c *gin.Context) {
	result, err := h.statisticsService.RecomputePendingDriverStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
