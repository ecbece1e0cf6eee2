package handler

import (
	"mime/multipart"
	"net/http"
	"strings"

	"sppg/internal/middleware"
	"sppg/internal/repository"
	"sppg/internal/service"
	"sppg/pkg/pagination"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxProofSize = 10 << 20

type DeliveryHandler struct {
	deliveryService service.DeliveryService
	guard           *middleware.Guard
}

func NewDeliveryHandler(deliveryService service.DeliveryService, guard *middleware.Guard) *DeliveryHandler {
	return &DeliveryHandler{deliveryService: deliveryService, guard: guard}
}

func (h *DeliveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guard.RequirePermission("delivery.read")
	update := h.guard.RequirePermission("delivery.update")

	group := router.Group("/api/deliveries")
	group.Use(h.guard.RequireAuth())
	{
		group.GET("", read, h.ListDeliveries)
		group.GET("/:id", read, h.GetDelivery)
		group.POST("", h.guard.RequirePermission("delivery.create"), h.CreateDelivery)
		group.POST("/:id/depart", update, h.DepartDelivery)
		group.POST("/:id/complete", update, h.CompleteDelivery)
		group.POST("/:id/fail", update, h.FailDelivery)
		group.POST("/:id/proof", update, h.UploadProof)
		group.POST("/:id/correct", h.guard.RequirePermission("delivery.override"), h.CorrectDelivery)
	}
}

// CreateDelivery handles POST /deliveries
// @Summary      Create delivery
// @Description  Creates the PENDING delivery for one school allocation of a distribution
// @Tags         delivery
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateDeliveryRequest  true  "Delivery"
// @Success      201      {object}  response.Response{data=model.Delivery}
// @Failure      409      {object}  response.Response
// @Router       /api/deliveries [post]
func (h *DeliveryHandler) CreateDelivery(c *gin.Context) {
	var req service.CreateDeliveryRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deliveryService.CreateDelivery(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, d))
}

// ListDeliveries handles GET /deliveries
// @Summary      List deliveries
// @Tags         delivery
// @Produce      json
// @Security     BearerAuth
// @Param        status           query     string  false  "Status"
// @Param        distribution_id  query     string  false  "Distribution ID"
// @Param        driver_id        query     string  false  "Driver ID"
// @Param        page             query     int     false  "Page number (default 1)"
// @Param        limit            query     int     false  "Number of items per page (default 20)"
// @Success      200              {object}  response.Response{data=object}
// @Router       /api/deliveries [get]
func (h *DeliveryHandler) ListDeliveries(c *gin.Context) {
	p := pagination.Parse(c)
	distributionID, ok := optionalID(c, "distribution_id")
	if !ok {
		return
	}
	driverID, ok := optionalID(c, "driver_id")
	if !ok {
		return
	}
	filter := repository.DeliveryFilter{
		Status:         c.Query("status"),
		DistributionID: distributionID,
		DriverID:       driverID,
		Page:           p.Page,
		Limit:          p.Limit,
	}

	deliveries, total, err := h.deliveryService.ListDeliveries(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(deliveries, total, p)))
}

func (h *DeliveryHandler) GetDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.deliveryService.GetDelivery(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

// DepartDelivery marks the delivery IN_TRANSIT
// @Summary      Depart delivery
// @Tags         delivery
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true   "Delivery ID"
// @Param        payload  body      service.DepartDeliveryRequest  false  "Departure time"
// @Success      200      {object}  response.Response{data=model.Delivery}
// @Failure      409      {object}  response.Response
// @Router       /api/deliveries/{id}/depart [post]
func (h *DeliveryHandler) DepartDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.DepartDeliveryRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	d, err := h.deliveryService.DepartDelivery(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

// CompleteDelivery marks an IN_TRANSIT delivery DELIVERED. Accepts JSON, or multipart form
// with an optional "proof" file that is stored before completion.
// @Summary      Complete delivery
// @Tags         delivery
// @Accept       json
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                           true   "Delivery ID"
// @Param        payload  body      service.CompleteDeliveryRequest  true   "Delivered portions"
// @Param        proof    formData  file                             false  "Proof photo"
// @Success      200      {object}  response.Response{data=model.Delivery}
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/deliveries/{id}/complete [post]
func (h *DeliveryHandler) CompleteDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req service.CompleteDeliveryRequest
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
			return
		}
		if fh, err := c.FormFile("proof"); err == nil {
			ref, ok := h.storeProof(c, id, fh)
			if !ok {
				return
			}
			req.ProofReference = ref
		}
	} else if !bindJSON(c, &req) {
		return
	}

	d, err := h.deliveryService.CompleteDelivery(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

// UploadProof stores a proof file and returns its reference
// @Summary      Upload delivery proof
// @Tags         delivery
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id     path      string  true  "Delivery ID"
// @Param        proof  formData  file    true  "Proof photo"
// @Success      201    {object}  response.Response{data=object}
// @Router       /api/deliveries/{id}/proof [post]
func (h *DeliveryHandler) UploadProof(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("proof")
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "proof file is required"))
		return
	}
	ref, ok := h.storeProof(c, id, fh)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, gin.H{"proof_reference": ref}))
}

func (h *DeliveryHandler) storeProof(c *gin.Context, id uuid.UUID, fh *multipart.FileHeader) (string, bool) {
	if fh.Size > maxProofSize {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "proof file exceeds 10MB"))
		return "", false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Failed to read proof file"))
		return "", false
	}
	defer f.Close()

	ref, err := h.deliveryService.UploadProof(c.Request.Context(), id, service.ProofUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return ref, true
}

// FailDelivery marks a PENDING or IN_TRANSIT delivery FAILED
// @Summary      Fail delivery
// @Tags         delivery
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Delivery ID"
// @Param        payload  body      service.FailDeliveryRequest  true  "Reason"
// @Success      200      {object}  response.Response{data=model.Delivery}
// @Failure      409      {object}  response.Response
// @Router       /api/deliveries/{id}/fail [post]
func (h *DeliveryHandler) FailDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.FailDeliveryRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deliveryService.FailDelivery(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

// CorrectDelivery is the administrative DELIVERED -> FAILED override
// @Summary      Correct delivery
// @Tags         delivery
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                          true  "Delivery ID"
// @Param        payload  body      service.CorrectDeliveryRequest  true  "Correction"
// @Success      200      {object}  response.Response{data=model.Delivery}
// @Failure      409      {object}  response.Response
// @Router       /api/deliveries/{id}/correct [post]
func (h *DeliveryHandler) CorrectDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.CorrectDeliveryRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.deliveryService.CorrectDelivery(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}
