package handler

import (
	"net/http"

	"sppg/internal/middleware"
	"sppg/internal/service"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
)

type QualityHandler struct {
	qualityService service.QualityService
	guard          *middleware.Guard
}

func NewQualityHandler(qualityService service.QualityService, guard *middleware.Guard) *QualityHandler {
	return &QualityHandler{qualityService: qualityService, guard: guard}
}

func (h *QualityHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guard.RequirePermission("quality.read")
	manage := h.guard.RequirePermission("quality.manage")

	group := router.Group("/api/quality")
	group.Use(h.guard.RequireAuth())
	{
		group.GET("/checkpoints", read, h.ListCheckpoints)
		group.POST("/checkpoints", manage, h.RecordCheckpoint)
		group.GET("/checks/:type/:id", read, h.GetCheck)
		group.POST("/checks", manage, h.RecordCheck)
		group.GET("/batches/:id/gate", read, h.GetGate)
	}
}

// RecordCheckpoint appends an inspection or rework outcome to a batch or plan
// @Summary      Record quality checkpoint
// @Tags         quality
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RecordCheckpointRequest  true  "Checkpoint"
// @Success      201      {object}  response.Response{data=model.QualityCheckpoint}
// @Failure      400      {object}  response.Response
// @Router       /api/quality/checkpoints [post]
func (h *QualityHandler) RecordCheckpoint(c *gin.Context) {
	var req service.RecordCheckpointRequest
	if !bindJSON(c, &req) {
		return
	}
	cp, err := h.qualityService.RecordCheckpoint(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, cp))
}

// ListCheckpoints handles GET /quality/checkpoints?batch_id=&plan_id=
// @Summary      List quality checkpoints
// @Tags         quality
// @Produce      json
// @Security     BearerAuth
// @Param        batch_id  query     string  false  "Batch ID"
// @Param        plan_id   query     string  false  "Plan ID"
// @Success      200       {object}  response.Response{data=[]model.QualityCheckpoint}
// @Router       /api/quality/checkpoints [get]
func (h *QualityHandler) ListCheckpoints(c *gin.Context) {
	batchID, ok := optionalID(c, "batch_id")
	if !ok {
		return
	}
	planID, ok := optionalID(c, "plan_id")
	if !ok {
		return
	}
	cps, err := h.qualityService.ListCheckpoints(c.Request.Context(), batchID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cps))
}

// RecordCheck stores the single summary check for a reference; repeats return the existing row
// @Summary      Record quality check
// @Tags         quality
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RecordCheckRequest  true  "Check"
// @Success      201      {object}  response.Response{data=model.QualityCheck}
// @Router       /api/quality/checks [post]
func (h *QualityHandler) RecordCheck(c *gin.Context) {
	var req service.RecordCheckRequest
	if !bindJSON(c, &req) {
		return
	}
	check, err := h.qualityService.RecordCheck(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, check))
}

func (h *QualityHandler) GetCheck(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	check, err := h.qualityService.GetCheck(c.Request.Context(), c.Param("type"), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, check))
}

// GetGate reports whether a batch may be distributed
// @Summary      Quality gate decision
// @Tags         quality
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Batch ID"
// @Success      200  {object}  response.Response{data=service.GateDecision}
// @Router       /api/quality/batches/{id}/gate [get]
func (h *QualityHandler) GetGate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	decision, err := h.qualityService.GateForBatch(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, decision))
}
