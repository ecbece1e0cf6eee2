package repository

import (
	"context"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductionFilter struct {
	Status string
	PlanID *uuid.UUID
	Page   int
	Limit  int
}

type ProductionRepository interface {
	CreatePlan(ctx context.Context, plan *model.ProductionPlan) error
	UpdatePlan(ctx context.Context, plan *model.ProductionPlan) error
	FindPlanByID(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error)
	FindPlanForUpdate(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error)
	ListPlans(ctx context.Context, filter ProductionFilter) ([]model.ProductionPlan, int64, error)

	CreateBatch(ctx context.Context, batch *model.ProductionBatch) error
	UpdateBatch(ctx context.Context, batch *model.ProductionBatch) error
	FindBatchByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	FindBatchForUpdate(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	FindBatchesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ProductionBatch, error)
	ListBatchesByPlan(ctx context.Context, planID uuid.UUID) ([]model.ProductionBatch, error)
	ListBatches(ctx context.Context, filter ProductionFilter) ([]model.ProductionBatch, int64, error)
	CountBatchesWithPrefix(ctx context.Context, prefix string) (int64, error)
}

type productionRepository struct {
	db *gorm.DB
}

func NewProductionRepository(db *gorm.DB) ProductionRepository {
	return &productionRepository{db: db}
}

func (r *productionRepository) CreatePlan(ctx context.Context, plan *model.ProductionPlan) error {
	return GetDB(ctx, r.db).Omit("Batches").Create(plan).Error
}

func (r *productionRepository) UpdatePlan(ctx context.Context, plan *model.ProductionPlan) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(plan).Error
}

func (r *productionRepository) FindPlanByID(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error) {
	var plan model.ProductionPlan
	err := GetDB(ctx, r.db).
		Preload("Batches", func(db *gorm.DB) *gorm.DB { return db.Order("batch_number asc") }).
		First(&plan, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *productionRepository) FindPlanForUpdate(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error) {
	var plan model.ProductionPlan
	if err := forUpdate(ctx, r.db).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *productionRepository) ListPlans(ctx context.Context, filter ProductionFilter) ([]model.ProductionPlan, int64, error) {
	var plans []model.ProductionPlan
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.ProductionPlan{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := db.Model(&model.ProductionPlan{})
	if filter.Status != "" {
		fetch = fetch.Where("status = ?", filter.Status)
	}
	if err := fetch.Order("plan_date desc, created_at desc").Scopes(paginate(filter.Page, filter.Limit)).Find(&plans).Error; err != nil {
		return nil, 0, err
	}
	return plans, total, nil
}

func (r *productionRepository) CreateBatch(ctx context.Context, batch *model.ProductionBatch) error {
	return GetDB(ctx, r.db).Create(batch).Error
}

func (r *productionRepository) UpdateBatch(ctx context.Context, batch *model.ProductionBatch) error {
	return GetDB(ctx, r.db).Save(batch).Error
}

func (r *productionRepository) FindBatchByID(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	var batch model.ProductionBatch
	if err := GetDB(ctx, r.db).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *productionRepository) FindBatchForUpdate(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	var batch model.ProductionBatch
	if err := forUpdate(ctx, r.db).First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *productionRepository) FindBatchesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	if len(ids) == 0 {
		return batches, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *productionRepository) ListBatchesByPlan(ctx context.Context, planID uuid.UUID) ([]model.ProductionBatch, error) {
	var batches []model.ProductionBatch
	if err := GetDB(ctx, r.db).Where("plan_id = ?", planID).Order("batch_number asc").Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *productionRepository) ListBatches(ctx context.Context, filter ProductionFilter) ([]model.ProductionBatch, int64, error) {
	var batches []model.ProductionBatch
	var total int64

	scope := func(db *gorm.DB) *gorm.DB {
		if filter.Status != "" {
			db = db.Where("status = ?", filter.Status)
		}
		if filter.PlanID != nil {
			db = db.Where("plan_id = ?", *filter.PlanID)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.ProductionBatch{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(scope).Order("created_at desc").Scopes(paginate(filter.Page, filter.Limit)).Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *productionRepository) CountBatchesWithPrefix(ctx context.Context, prefix string) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ProductionBatch{}).Where("batch_number LIKE ?", prefix+"%").Count(&count).Error
	return count, err
}
