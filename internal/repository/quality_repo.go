package repository

import (
	"context"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QualityRepository interface {
	CreateCheckpoint(ctx context.Context, cp *model.QualityCheckpoint) error
	ListCheckpointsByBatch(ctx context.Context, batchID uuid.UUID) ([]model.QualityCheckpoint, error)
	ListCheckpointsByBatches(ctx context.Context, batchIDs []uuid.UUID) ([]model.QualityCheckpoint, error)
	ListCheckpointsByPlan(ctx context.Context, planID uuid.UUID) ([]model.QualityCheckpoint, error)

	UpsertCheck(ctx context.Context, check *model.QualityCheck) error
	FindCheck(ctx context.Context, referenceType string, referenceID uuid.UUID) (*model.QualityCheck, error)
	CountChecks(ctx context.Context, referenceType string, referenceID uuid.UUID) (int64, error)
}

type qualityRepository struct {
	db *gorm.DB
}

func NewQualityRepository(db *gorm.DB) QualityRepository {
	return &qualityRepository{db: db}
}

func (r *qualityRepository) CreateCheckpoint(ctx context.Context, cp *model.QualityCheckpoint) error {
	return GetDB(ctx, r.db).Create(cp).Error
}

func (r *qualityRepository) ListCheckpointsByBatch(ctx context.Context, batchID uuid.UUID) ([]model.QualityCheckpoint, error) {
	return r.ListCheckpointsByBatches(ctx, []uuid.UUID{batchID})
}

func (r *qualityRepository) ListCheckpointsByBatches(ctx context.Context, batchIDs []uuid.UUID) ([]model.QualityCheckpoint, error) {
	var cps []model.QualityCheckpoint
	if len(batchIDs) == 0 {
		return cps, nil
	}
	if err := GetDB(ctx, r.db).Where("batch_id IN ?", batchIDs).Order("checked_at asc").Find(&cps).Error; err != nil {
		return nil, err
	}
	return cps, nil
}

func (r *qualityRepository) ListCheckpointsByPlan(ctx context.Context, planID uuid.UUID) ([]model.QualityCheckpoint, error) {
	var cps []model.QualityCheckpoint
	if err := GetDB(ctx, r.db).Where("plan_id = ?", planID).Order("checked_at asc").Find(&cps).Error; err != nil {
		return nil, err
	}
	return cps, nil
}

// UpsertCheck inserts the check or overwrites the live record for its reference pair.
func (r *qualityRepository) UpsertCheck(ctx context.Context, check *model.QualityCheck) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "reference_type"}, {Name: "reference_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "score", "metrics", "notes", "checked_by", "checked_at", "updated_at",
		}),
	}).Create(check).Error
}

func (r *qualityRepository) FindCheck(ctx context.Context, referenceType string, referenceID uuid.UUID) (*model.QualityCheck, error) {
	var check model.QualityCheck
	err := GetDB(ctx, r.db).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		First(&check).Error
	if err != nil {
		return nil, err
	}
	return &check, nil
}

func (r *qualityRepository) CountChecks(ctx context.Context, referenceType string, referenceID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.QualityCheck{}).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceID).
		Count(&count).Error
	return count, err
}
