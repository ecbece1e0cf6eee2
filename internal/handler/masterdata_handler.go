package handler

import (
	"net/http"

	"sppg/internal/middleware"
	"sppg/internal/service"
	"sppg/pkg/pagination"
	"sppg/pkg/response"

	"github.com/gin-gonic/gin"
)

// MasterDataHandler serves drivers, vehicles and schools.
type MasterDataHandler struct {
	masterService service.MasterDataService
	guard         *middleware.Guard
}

func NewMasterDataHandler(masterService service.MasterDataService, guard *middleware.Guard) *MasterDataHandler {
	return &MasterDataHandler{masterService: masterService, guard: guard}
}

func (h *MasterDataHandler) RegisterRoutes(router *gin.RouterGroup) {
	fleetRead := h.guard.RequirePermission("drivers.read")
	fleetManage := h.guard.RequirePermission("drivers.manage")

	drivers := router.Group("/api/drivers")
	drivers.Use(h.guard.RequireAuth())
	{
		drivers.GET("", fleetRead, h.ListDrivers)
		drivers.GET("/:id", fleetRead, h.GetDriver)
		drivers.POST("", fleetManage, h.CreateDriver)
		drivers.PUT("/:id", fleetManage, h.UpdateDriver)
	}

	vehicles := router.Group("/api/vehicles")
	vehicles.Use(h.guard.RequireAuth())
	{
		vehicles.GET("", fleetRead, h.ListVehicles)
		vehicles.POST("", fleetManage, h.CreateVehicle)
		vehicles.PUT("/:id", fleetManage, h.UpdateVehicle)
	}

	schools := router.Group("/api/schools")
	schools.Use(h.guard.RequireAuth())
	{
		schools.GET("", h.guard.RequirePermission("schools.read"), h.ListSchools)
		schools.GET("/:id", h.guard.RequirePermission("schools.read"), h.GetSchool)
		schools.POST("", h.guard.RequirePermission("schools.manage"), h.CreateSchool)
		schools.PUT("/:id", h.guard.RequirePermission("schools.manage"), h.UpdateSchool)
	}
}

// ListDrivers handles GET /drivers
// @Summary      List drivers
// @Tags         fleet
// @Produce      json
// @Security     BearerAuth
// @Param        active  query     bool  false  "Only active drivers"
// @Param        page    query     int   false  "Page number (default 1)"
// @Param        limit   query     int   false  "Number of items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Router       /api/drivers [get]
func (h *MasterDataHandler) ListDrivers(c *gin.Context) {
	p := pagination.Parse(c)
	drivers, total, err := h.masterService.ListDrivers(c.Request.Context(), c.Query("active") == "true", p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(drivers, total, p)))
}

func (h *MasterDataHandler) GetDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.masterService.GetDriver(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

func (h *MasterDataHandler) CreateDriver(c *gin.Context) {
	var req service.DriverRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.masterService.CreateDriver(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, d))
}

func (h *MasterDataHandler) UpdateDriver(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.DriverRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.masterService.UpdateDriver(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, d))
}

func (h *MasterDataHandler) ListVehicles(c *gin.Context) {
	p := pagination.Parse(c)
	vehicles, total, err := h.masterService.ListVehicles(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(vehicles, total, p)))
}

func (h *MasterDataHandler) CreateVehicle(c *gin.Context) {
	var req service.VehicleRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.masterService.CreateVehicle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, v))
}

func (h *MasterDataHandler) UpdateVehicle(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.VehicleRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.masterService.UpdateVehicle(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, v))
}

func (h *MasterDataHandler) ListSchools(c *gin.Context) {
	p := pagination.Parse(c)
	schools, total, err := h.masterService.ListSchools(c.Request.Context(), p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, pagination.NewPage(schools, total, p)))
}

func (h *MasterDataHandler) GetSchool(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s, err := h.masterService.GetSchool(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, s))
}

func (h *MasterDataHandler) CreateSchool(c *gin.Context) {
	var req service.SchoolRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.masterService.CreateSchool(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, s))
}

func (h *MasterDataHandler) UpdateSchool(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.SchoolRequest
	if !bindJSON(c, &req) {
		return
	}
	s, err := h.masterService.UpdateSchool(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, s))
}
