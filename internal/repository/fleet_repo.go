package repository

import (
	"context"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VehicleRepository interface {
	Create(ctx context.Context, v *model.Vehicle) error
	Update(ctx context.Context, v *model.Vehicle) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error)
	List(ctx context.Context, page, limit int) ([]model.Vehicle, int64, error)
}

type vehicleRepository struct {
	db *gorm.DB
}

func NewVehicleRepository(db *gorm.DB) VehicleRepository {
	return &vehicleRepository{db: db}
}

func (r *vehicleRepository) Create(ctx context.Context, v *model.Vehicle) error {
	return GetDB(ctx, r.db).Create(v).Error
}

func (r *vehicleRepository) Update(ctx context.Context, v *model.Vehicle) error {
	return GetDB(ctx, r.db).Save(v).Error
}

func (r *vehicleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Vehicle, error) {
	var v model.Vehicle
	if err := GetDB(ctx, r.db).First(&v, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *vehicleRepository) List(ctx context.Context, page, limit int) ([]model.Vehicle, int64, error) {
	var vehicles []model.Vehicle
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Vehicle{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("plate_number asc").Scopes(paginate(page, limit)).Find(&vehicles).Error; err != nil {
		return nil, 0, err
	}
	return vehicles, total, nil
}

type SchoolRepository interface {
	Create(ctx context.Context, s *model.School) error
	Update(ctx context.Context, s *model.School) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.School, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.School, error)
	List(ctx context.Context, page, limit int) ([]model.School, int64, error)
}

type schoolRepository struct {
	db *gorm.DB
}

func NewSchoolRepository(db *gorm.DB) SchoolRepository {
	return &schoolRepository{db: db}
}

func (r *schoolRepository) Create(ctx context.Context, s *model.School) error {
	return GetDB(ctx, r.db).Create(s).Error
}

func (r *schoolRepository) Update(ctx context.Context, s *model.School) error {
	return GetDB(ctx, r.db).Save(s).Error
}

func (r *schoolRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.School, error) {
	var s model.School
	if err := GetDB(ctx, r.db).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *schoolRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.School, error) {
	var schools []model.School
	if len(ids) == 0 {
		return schools, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&schools).Error; err != nil {
		return nil, err
	}
	return schools, nil
}

func (r *schoolRepository) List(ctx context.Context, page, limit int) ([]model.School, int64, error) {
	var schools []model.School
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.School{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("name asc").Scopes(paginate(page, limit)).Find(&schools).Error; err != nil {
		return nil, 0, err
	}
	return schools, total, nil
}
