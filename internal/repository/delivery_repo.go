package repository

import (
	"context"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeliveryFilter struct {
	Status         string
	DistributionID *uuid.UUID
	DriverID       *uuid.UUID
	Page           int
	Limit          int
}

type DeliveryRepository interface {
	Create(ctx context.Context, d *model.Delivery) error
	Update(ctx context.Context, d *model.Delivery) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	ExistsForSchool(ctx context.Context, distributionID, schoolID uuid.UUID) (bool, error)
	ListByDistribution(ctx context.Context, distributionID uuid.UUID) ([]model.Delivery, error)
	List(ctx context.Context, filter DeliveryFilter) ([]model.Delivery, int64, error)
}

type deliveryRepository struct {
	db *gorm.DB
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &deliveryRepository{db: db}
}

func (r *deliveryRepository) Create(ctx context.Context, d *model.Delivery) error {
	return GetDB(ctx, r.db).Create(d).Error
}

func (r *deliveryRepository) Update(ctx context.Context, d *model.Delivery) error {
	return GetDB(ctx, r.db).Save(d).Error
}

func (r *deliveryRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var d model.Delivery
	if err := GetDB(ctx, r.db).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deliveryRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	var d model.Delivery
	if err := forUpdate(ctx, r.db).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *deliveryRepository) ExistsForSchool(ctx context.Context, distributionID, schoolID uuid.UUID) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Delivery{}).
		Where("distribution_id = ? AND school_id = ?", distributionID, schoolID).
		Count(&count).Error
	return count > 0, err
}

func (r *deliveryRepository) ListByDistribution(ctx context.Context, distributionID uuid.UUID) ([]model.Delivery, error) {
	var ds []model.Delivery
	if err := GetDB(ctx, r.db).Where("distribution_id = ?", distributionID).Order("delivery_order asc").Find(&ds).Error; err != nil {
		return nil, err
	}
	return ds, nil
}

func (r *deliveryRepository) List(ctx context.Context, filter DeliveryFilter) ([]model.Delivery, int64, error) {
	var ds []model.Delivery
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.DistributionID != nil {
			db = db.Where("distribution_id = ?", *filter.DistributionID)
		}
		if filter.DriverID != nil {
			db = db.Where("driver_id = ?", *filter.DriverID)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Delivery{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(scope).Order("created_at desc, delivery_order asc").Scopes(paginate(filter.Page, filter.Limit)).Find(&ds).Error; err != nil {
		return nil, 0, err
	}
	return ds, total, nil
}
