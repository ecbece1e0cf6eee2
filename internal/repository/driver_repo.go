package repository

import (
	"context"
	"time"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DriverRepository interface {
	Create(ctx context.Context, d *model.Driver) error
	Update(ctx context.Context, d *model.Driver) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Driver, error)
	List(ctx context.Context, activeOnly bool, page, limit int) ([]model.Driver, int64, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
	// SetTotalDeliveries writes the recomputed counter; nothing else touches total_deliveries.
	SetTotalDeliveries(ctx context.Context, id uuid.UUID, total int, at time.Time) error
}

type driverRepository struct {
	db *gorm.DB
}

func NewDriverRepository(db *gorm.DB) DriverRepository {
	return &driverRepository{db: db}
}

func (r *driverRepository) Create(ctx context.Context, d *model.Driver) error {
	return GetDB(ctx, r.db).Create(d).Error
}

// Update saves profile fields only.
func (r *driverRepository) Update(ctx context.Context, d *model.Driver) error {
	return GetDB(ctx, r.db).Omit("total_deliveries", "stats_recomputed_at").Save(d).Error
}

func (r *driverRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Driver, error) {
	var d model.Driver
	if err := GetDB(ctx, r.db).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *driverRepository) List(ctx context.Context, activeOnly bool, page, limit int) ([]model.Driver, int64, error) {
	var drivers []model.Driver
	var total int64

	db := GetDB(ctx, r.db)
	query := db.Model(&model.Driver{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	fetch := db.Model(&model.Driver{})
	if activeOnly {
		fetch = fetch.Where("is_active = ?", true)
	}
	if err := fetch.Order("name asc").Scopes(paginate(page, limit)).Find(&drivers).Error; err != nil {
		return nil, 0, err
	}
	return drivers, total, nil
}

func (r *driverRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := GetDB(ctx, r.db).Model(&model.Driver{}).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *driverRepository) SetTotalDeliveries(ctx context.Context, id uuid.UUID, total int, at time.Time) error {
	res := GetDB(ctx, r.db).Model(&model.Driver{}).Where("id = ?", id).Updates(map[string]interface{}{
		"total_deliveries":    total,
		"stats_recomputed_at": at,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
