package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
)

type DriverRequest struct {
	EmployeeID    string     `json:"employee_id" binding:"required"`
	Name          string     `json:"name" binding:"required"`
	Phone         string     `json:"phone"`
	LicenseNumber string     `json:"license_number"`
	LicenseExpiry *time.Time `json:"license_expiry"`
	IsActive      *bool      `json:"is_active"`
}

type VehicleRequest struct {
	PlateNumber string `json:"plate_number" binding:"required"`
	VehicleType string `json:"vehicle_type"`
	Capacity    int    `json:"capacity" binding:"gte=0"`
	IsActive    *bool  `json:"is_active"`
}

type SchoolRequest struct {
	Code         string `json:"code" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Address      string `json:"address"`
	StudentCount int    `json:"student_count" binding:"gte=0"`
	IsActive     *bool  `json:"is_active"`
}

// MasterDataService maintains the drivers, vehicles and schools the workflow references.
type MasterDataService interface {
	CreateDriver(ctx context.Context, req DriverRequest) (*model.Driver, error)
	UpdateDriver(ctx context.Context, id uuid.UUID, req DriverRequest) (*model.Driver, error)
	GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error)
	ListDrivers(ctx context.Context, activeOnly bool, page, limit int) ([]model.Driver, int64, error)

	CreateVehicle(ctx context.Context, req VehicleRequest) (*model.Vehicle, error)
	UpdateVehicle(ctx context.Context, id uuid.UUID, req VehicleRequest) (*model.Vehicle, error)
	ListVehicles(ctx context.Context, page, limit int) ([]model.Vehicle, int64, error)

	CreateSchool(ctx context.Context, req SchoolRequest) (*model.School, error)
	UpdateSchool(ctx context.Context, id uuid.UUID, req SchoolRequest) (*model.School, error)
	GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error)
	ListSchools(ctx context.Context, page, limit int) ([]model.School, int64, error)
}

type masterDataService struct {
	drivers  repository.DriverRepository
	vehicles repository.VehicleRepository
	schools  repository.SchoolRepository
}

func NewMasterDataService(drivers repository.DriverRepository, vehicles repository.VehicleRepository, schools repository.SchoolRepository) MasterDataService {
	return &masterDataService{drivers: drivers, vehicles: vehicles, schools: schools}
}

func activeOr(flag *bool, fallback bool) bool {
	if flag == nil {
		return fallback
	}
	return *flag
}

func (s *masterDataService) CreateDriver(ctx context.Context, req DriverRequest) (*model.Driver, error) {
	d := &model.Driver{
		EmployeeID:    strings.TrimSpace(req.EmployeeID),
		Name:          strings.TrimSpace(req.Name),
		Phone:         req.Phone,
		LicenseNumber: req.LicenseNumber,
		LicenseExpiry: req.LicenseExpiry,
		IsActive:      activeOr(req.IsActive, true),
	}
	if d.EmployeeID == "" || d.Name == "" {
		return nil, apperror.Invalid("employee_id", "employee id and name are required")
	}
	if err := s.drivers.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}
	return d, nil
}

func (s *masterDataService) UpdateDriver(ctx context.Context, id uuid.UUID, req DriverRequest) (*model.Driver, error) {
	d, err := s.drivers.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDriver, id)
	}
	d.EmployeeID = strings.TrimSpace(req.EmployeeID)
	d.Name = strings.TrimSpace(req.Name)
	d.Phone = req.Phone
	d.LicenseNumber = req.LicenseNumber
	d.LicenseExpiry = req.LicenseExpiry
	d.IsActive = activeOr(req.IsActive, d.IsActive)
	if err := s.drivers.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to update driver: %w", err)
	}
	return d, nil
}

func (s *masterDataService) GetDriver(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	d, err := s.drivers.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDriver, id)
	}
	return d, nil
}

func (s *masterDataService) ListDrivers(ctx context.Context, activeOnly bool, page, limit int) ([]model.Driver, int64, error) {
	return s.drivers.List(ctx, activeOnly, page, limit)
}

func (s *masterDataService) CreateVehicle(ctx context.Context, req VehicleRequest) (*model.Vehicle, error) {
	v := &model.Vehicle{
		PlateNumber: strings.ToUpper(strings.TrimSpace(req.PlateNumber)),
		VehicleType: req.VehicleType,
		Capacity:    req.Capacity,
		IsActive:    activeOr(req.IsActive, true),
	}
	if v.PlateNumber == "" {
		return nil, apperror.Invalid("plate_number", "is required")
	}
	if err := s.vehicles.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to create vehicle: %w", err)
	}
	return v, nil
}

func (s *masterDataService) UpdateVehicle(ctx context.Context, id uuid.UUID, req VehicleRequest) (*model.Vehicle, error) {
	v, err := s.vehicles.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityVehicle, id)
	}
	v.PlateNumber = strings.ToUpper(strings.TrimSpace(req.PlateNumber))
	v.VehicleType = req.VehicleType
	v.Capacity = req.Capacity
	v.IsActive = activeOr(req.IsActive, v.IsActive)
	if err := s.vehicles.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("failed to update vehicle: %w", err)
	}
	return v, nil
}

func (s *masterDataService) ListVehicles(ctx context.Context, page, limit int) ([]model.Vehicle, int64, error) {
	return s.vehicles.List(ctx, page, limit)
}

func (s *masterDataService) CreateSchool(ctx context.Context, req SchoolRequest) (*model.School, error) {
	sc := &model.School{
		Code:         strings.TrimSpace(req.Code),
		Name:         strings.TrimSpace(req.Name),
		Address:      req.Address,
		StudentCount: req.StudentCount,
		IsActive:     activeOr(req.IsActive, true),
	}
	if sc.Code == "" || sc.Name == "" {
		return nil, apperror.Invalid("code", "code and name are required")
	}
	if err := s.schools.Create(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to create school: %w", err)
	}
	return sc, nil
}

func (s *masterDataService) UpdateSchool(ctx context.Context, id uuid.UUID, req SchoolRequest) (*model.School, error) {
	sc, err := s.schools.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntitySchool, id)
	}
	sc.Code = strings.TrimSpace(req.Code)
	sc.Name = strings.TrimSpace(req.Name)
	sc.Address = req.Address
	sc.StudentCount = req.StudentCount
	sc.IsActive = activeOr(req.IsActive, sc.IsActive)
	if err := s.schools.Update(ctx, sc); err != nil {
		return nil, fmt.Errorf("failed to update school: %w", err)
	}
	return sc, nil
}

func (s *masterDataService) GetSchool(ctx context.Context, id uuid.UUID) (*model.School, error) {
	sc, err := s.schools.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntitySchool, id)
	}
	return sc, nil
}

func (s *masterDataService) ListSchools(ctx context.Context, page, limit int) ([]model.School, int64, error) {
	return s.schools.List(ctx, page, limit)
}
