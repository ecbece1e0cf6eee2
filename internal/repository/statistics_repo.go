package repository

import (
	"context"
	"fmt"
	"time"

	"sppg/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StatisticsRepository interface {
	CountDelivered(ctx context.Context, driverID uuid.UUID) (int64, error)
	CountDeliveredByDriver(ctx context.Context) ([]model.DriverDeliveryCount, error)

	CountPlans(ctx context.Context, start, end time.Time) (int64, error)
	CountByStatus(ctx context.Context, table, dateColumn string, start, end time.Time) (map[string]int64, error)
	SumProducedPortions(ctx context.Context, start, end time.Time) (int64, error)
	SumDeliveredPortions(ctx context.Context, start, end time.Time) (int64, error)
	GetTopDrivers(ctx context.Context, limit int) ([]model.DriverRanking, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

// CountDelivered is the live source of truth for a driver's totalDeliveries.
func (r *statisticsRepository) CountDelivered(ctx context.Context, driverID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Delivery{}).
		Where("driver_id = ? AND status = ?", driverID, model.DeliveryDelivered).
		Count(&count).Error
	return count, err
}

func (r *statisticsRepository) CountDeliveredByDriver(ctx context.Context) ([]model.DriverDeliveryCount, error) {
	var rows []model.DriverDeliveryCount
	err := GetDB(ctx, r.db).Model(&model.Delivery{}).
		Select("driver_id, COUNT(*) as delivered").
		Where("driver_id IS NOT NULL AND status = ?", model.DeliveryDelivered).
		Group("driver_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count deliveries per driver: %w", err)
	}
	return rows, nil
}

func (r *statisticsRepository) CountPlans(ctx context.Context, start, end time.Time) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.ProductionPlan{}).
		Where("plan_date >= ? AND plan_date <= ?", start, end).
		Count(&count).Error
	return count, err
}

// CountByStatus groups rows of a workflow table by status within the date window.
func (r *statisticsRepository) CountByStatus(ctx context.Context, table, dateColumn string, start, end time.Time) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := GetDB(ctx, r.db).Table(table).
		Select("status, COUNT(*) as count").
		Where(dateColumn+" >= ? AND "+dateColumn+" <= ?", start, end).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count %s by status: %w", table, err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *statisticsRepository) SumProducedPortions(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.ProductionBatch{}).
		Select("COALESCE(SUM(actual_quantity), 0)").
		Where("status = ? AND completed_at >= ? AND completed_at <= ?", model.ProductionCompleted, start, end).
		Scan(&total).Error
	return total, err
}

func (r *statisticsRepository) SumDeliveredPortions(ctx context.Context, start, end time.Time) (int64, error) {
	var total int64
	err := GetDB(ctx, r.db).Model(&model.Delivery{}).
		Select("COALESCE(SUM(portions_delivered), 0)").
		Where("status = ? AND completion_time >= ? AND completion_time <= ?", model.DeliveryDelivered, start, end).
		Scan(&total).Error
	return total, err
}

func (r *statisticsRepository) GetTopDrivers(ctx context.Context, limit int) ([]model.DriverRanking, error) {
	var rankings []model.DriverRanking
	if err := GetDB(ctx, r.db).Model(&model.Driver{}).
		Select("id as driver_id, name as driver_name, total_deliveries").
		Where("total_deliveries > 0").
		Order("total_deliveries DESC, name ASC").
		Limit(limit).
		Scan(&rankings).Error; err != nil {
		return nil, fmt.Errorf("failed to query top drivers: %w", err)
	}
	return rankings, nil
}
