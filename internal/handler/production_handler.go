package handler

import (
	"net/http"

	"sppg/internal/middleware"
	"sppg/internal/repository"
	"sppg/internal/service"
	"sppg/pkg/pagination"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProductionHandler struct {
	productionService service.ProductionService
	guard             *middleware.Guard
}

func NewProductionHandler(productionService service.ProductionService, guard *middleware.Guard) *ProductionHandler {
	return &ProductionHandler{productionService: productionService, guard: guard}
}

func (h *ProductionHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guard.RequirePermission("production.read")
	create := h.guard.RequirePermission("production.create")
	manage := h.guard.RequirePermission("production.manage")

	plans := router.Group("/api/production/plans")
	plans.Use(h.guard.RequireAuth())
	{
		plans.GET("", read, h.ListPlans)
		plans.GET("/:id", read, h.GetPlan)
		plans.POST("", create, h.CreatePlan)
		plans.POST("/:id/cancel", manage, h.CancelPlan)
	}

	batches := router.Group("/api/production/batches")
	batches.Use(h.guard.RequireAuth())
	{
		batches.GET("", read, h.ListBatches)
		batches.GET("/:id", read, h.GetBatch)
		batches.POST("", create, h.CreateBatch)
		batches.POST("/:id/start", manage, h.StartBatch)
		batches.POST("/:id/complete", manage, h.CompleteBatch)
		batches.POST("/:id/cancel", manage, h.CancelBatch)
	}
}

func productionFilter(c *gin.Context) (repository.ProductionFilter, pagination.Params, bool) {
	p := pagination.Parse(c)
	planID, ok := optionalID(c, "plan_id")
	if !ok {
		return repository.ProductionFilter{}, p, false
	}
	return repository.ProductionFilter{Status: c.Query("status"), PlanID: planID, Page: p.Page, Limit: p.Limit}, p, true
}

// CreatePlan handles POST /production/plans
// @Summary      Create production plan
// @Tags         production
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreatePlanRequest  true  "Plan"
// @Success      201      {object}  response.Response{data=model.ProductionPlan}
// @Failure      400      {object}  response.Response
// @Router       /api/production/plans [post]
func (h *ProductionHandler) CreatePlan(c *gin.Context) {
	var req service.CreatePlanRequest
	if !bindJSON(c, &req) {
		return
	}
	plan, err := h.productionService.CreatePlan(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, plan))
}

// ListPlans handles GET /production/plans
// @Summary      List production plans
// @Tags         production
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Plan status"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/production/plans [get]
func (h *ProductionHandler) ListPlans(c *gin.Context) {
	filter, p, ok := productionFilter(c)
	if !ok {
		return
	}
	plans, total, err := h.productionService.ListPlans(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(plans, total, p)))
}

func (h *ProductionHandler) GetPlan(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	plan, err := h.productionService.GetPlan(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, plan))
}

// CancelPlan cancels the plan and every batch that has not finished
// @Summary      Cancel production plan
// @Tags         production
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true   "Plan ID"
// @Param        payload  body      service.CancelRequest  false  "Reason"
// @Success      200      {object}  response.Response{data=model.ProductionPlan}
// @Failure      409      {object}  response.Response
// @Router       /api/production/plans/{id}/cancel [post]
func (h *ProductionHandler) CancelPlan(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	plan, err := h.productionService.CancelPlan(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, plan))
}

// CreateBatch handles POST /production/batches
// @Summary      Create production batch
// @Tags         production
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateBatchRequest  true  "Batch"
// @Success      201      {object}  response.Response{data=model.ProductionBatch}
// @Failure      409      {object}  response.Response
// @Router       /api/production/batches [post]
func (h *ProductionHandler) CreateBatch(c *gin.Context) {
	var req service.CreateBatchRequest
	if !bindJSON(c, &req) {
		return
	}
	batch, err := h.productionService.CreateBatch(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, batch))
}

func (h *ProductionHandler) ListBatches(c *gin.Context) {
	filter, p, ok := productionFilter(c)
	if !ok {
		return
	}
	batches, total, err := h.productionService.ListBatches(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(batches, total, p)))
}

func (h *ProductionHandler) GetBatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	batch, err := h.productionService.GetBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// StartBatch moves a PLANNED batch to IN_PROGRESS
// @Summary      Start batch
// @Tags         production
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=model.ProductionBatch}
// @Failure      409  {object}  response.Response
// @Router       /api/production/batches/{id}/start [post]
func (h *ProductionHandler) StartBatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	batch, err := h.productionService.StartBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

// CompleteBatch records the actual quantity and variance
// @Summary      Complete batch
// @Tags         production
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true   "Batch ID"
// @Param        payload  body      service.CompleteBatchRequest  false  "Actual quantity"
// @Success      200      {object}  response.Response{data=model.ProductionBatch}
// @Failure      409      {object}  response.Response
// @Router       /api/production/batches/{id}/complete [post]
func (h *ProductionHandler) CompleteBatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CompleteBatchRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	batch, err := h.productionService.CompleteBatch(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}

func (h *ProductionHandler) CancelBatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CancelRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	batch, err := h.productionService.CancelBatch(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, batch))
}
