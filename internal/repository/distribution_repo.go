package repository

import (
	"context"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DistributionFilter struct {
	Status   string
	DriverID *uuid.UUID
	Page     int
	Limit    int
}

type DistributionRepository interface {
	Create(ctx context.Context, dist *model.Distribution) error
	Update(ctx context.Context, dist *model.Distribution) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Distribution, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Distribution, error)
	List(ctx context.Context, filter DistributionFilter) ([]model.Distribution, int64, error)

	FindAllocation(ctx context.Context, distributionID, schoolID uuid.UUID) (*model.DistributionSchool, error)
	FindAllocationForUpdate(ctx context.Context, distributionID, schoolID uuid.UUID) (*model.DistributionSchool, error)
	UpdateAllocation(ctx context.Context, alloc *model.DistributionSchool) error
	// AllocatedBatchIDs returns which of the given batches already feed a non-cancelled distribution.
	AllocatedBatchIDs(ctx context.Context, batchIDs []uuid.UUID) ([]uuid.UUID, error)
}

type distributionRepository struct {
	db *gorm.DB
}

func NewDistributionRepository(db *gorm.DB) DistributionRepository {
	return &distributionRepository{db: db}
}

// Create inserts the distribution together with its school allocations and batch links.
func (r *distributionRepository) Create(ctx context.Context, dist *model.Distribution) error {
	return GetDB(ctx, r.db).Create(dist).Error
}

func (r *distributionRepository) Update(ctx context.Context, dist *model.Distribution) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(dist).Error
}

func (r *distributionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Distribution, error) {
	var dist model.Distribution
	err := GetDB(ctx, r.db).
		Preload("Schools", func(db *gorm.DB) *gorm.DB { return db.Order("route_order asc") }).
		Preload("Batches").
		First(&dist, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &dist, nil
}

func (r *distributionRepository) FindForUpdate(ctx context.Context, id uuid.UUID) (*model.Distribution, error) {
	var dist model.Distribution
	if err := forUpdate(ctx, r.db).First(&dist, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dist, nil
}

func (r *distributionRepository) List(ctx context.Context, filter DistributionFilter) ([]model.Distribution, int64, error) {
	var dists []model.Distribution
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.DriverID != nil {
			db = db.Where("driver_id = ?", *filter.DriverID)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.Distribution{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(scope).Preload("Schools").Order("distribution_date desc, created_at desc").Scopes(paginate(filter.Page, filter.Limit)).Find(&dists).Error; err != nil {
		return nil, 0, err
	}
	return dists, total, nil
}

func (r *distributionRepository) FindAllocation(ctx context.Context, distributionID, schoolID uuid.UUID) (*model.DistributionSchool, error) {
	var alloc model.DistributionSchool
	err := GetDB(ctx, r.db).
		Where("distribution_id = ? AND school_id = ?", distributionID, schoolID).
		First(&alloc).Error
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (r *distributionRepository) FindAllocationForUpdate(ctx context.Context, distributionID, schoolID uuid.UUID) (*model.DistributionSchool, error) {
	var alloc model.DistributionSchool
	err := forUpdate(ctx, r.db).
		Where("distribution_id = ? AND school_id = ?", distributionID, schoolID).
		First(&alloc).Error
	if err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (r *distributionRepository) UpdateAllocation(ctx context.Context, alloc *model.DistributionSchool) error {
	return GetDB(ctx, r.db).Save(alloc).Error
}

func (r *distributionRepository) AllocatedBatchIDs(ctx context.Context, batchIDs []uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if len(batchIDs) == 0 {
		return ids, nil
	}
	err := GetDB(ctx, r.db).Model(&model.DistributionBatch{}).
		Joins("JOIN distributions ON distributions.id = distribution_batches.distribution_id").
		Where("distribution_batches.batch_id IN ? AND distributions.status <> ?", batchIDs, model.DistributionCancelled).
		Distinct().
		Pluck("distribution_batches.batch_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
