package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// pendingDrainChunk bounds how many dirty drivers are popped from the queue per round.
const pendingDrainChunk = 500

// DriverStatsResult summarizes one recomputation run.
type DriverStatsResult struct {
	Drivers int            `json:"drivers"`
	Totals  map[string]int `json:"totals"`
	RanAt   time.Time      `json:"ran_at"`
}

type StatisticsService interface {
	GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error)
	// RecomputeDriverStats rewrites totalDeliveries from the live DELIVERED count. A nil id recomputes
	// every driver. Safe to re-run.
	RecomputeDriverStats(ctx context.Context, driverID *uuid.UUID) (*DriverStatsResult, error)
	// RecomputePendingDriverStats drains the dirty-driver queue and recomputes those drivers.
	RecomputePendingDriverStats(ctx context.Context) (*DriverStatsResult, error)
}

type statisticsService struct {
	deps    Deps
	repo    repository.StatisticsRepository
	drivers repository.DriverRepository
}

func NewStatisticsService(deps Deps, repo repository.StatisticsRepository, drivers repository.DriverRepository) StatisticsService {
	return &statisticsService{deps: deps, repo: repo, drivers: drivers}
}

// GetStatistics aggregates the workflow counters inside the time bracket
func (s *statisticsService) GetStatistics(ctx context.Context, startDate, endDate time.Time) (model.StatisticsResponse, error) {
	var response model.StatisticsResponse
	response.TimeRangeStartDate = startDate
	response.TimeRangeEndDate = endDate

	var err error
	if response.TotalPlans, err = s.repo.CountPlans(ctx, startDate, endDate); err != nil {
		return response, fmt.Errorf("failed to count plans: %w", err)
	}
	if response.BatchesByStatus, err = s.repo.CountByStatus(ctx, "production_batches", "created_at", startDate, endDate); err != nil {
		return response, err
	}
	if response.PortionsProduced, err = s.repo.SumProducedPortions(ctx, startDate, endDate); err != nil {
		return response, fmt.Errorf("failed to sum produced portions: %w", err)
	}
	if response.DistributionsByStatus, err = s.repo.CountByStatus(ctx, "distributions", "distribution_date", startDate, endDate); err != nil {
		return response, err
	}
	if response.DeliveriesByStatus, err = s.repo.CountByStatus(ctx, "deliveries", "created_at", startDate, endDate); err != nil {
		return response, err
	}
	if response.PortionsDelivered, err = s.repo.SumDeliveredPortions(ctx, startDate, endDate); err != nil {
		return response, fmt.Errorf("failed to sum delivered portions: %w", err)
	}
	if response.TopDrivers, err = s.repo.GetTopDrivers(ctx, 5); err != nil {
		return response, err
	}
	return response, nil
}

func (s *statisticsService) RecomputeDriverStats(ctx context.Context, driverID *uuid.UUID) (*DriverStatsResult, error) {
	if driverID != nil {
		return s.recompute(ctx, []uuid.UUID{*driverID}, true, nil)
	}

	ids, err := s.drivers.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	rows, err := s.repo.CountDeliveredByDriver(ctx)
	if err != nil {
		return nil, err
	}
	// drivers without a delivered row are reset to zero
	counts := make(map[uuid.UUID]int64, len(ids))
	for _, id := range ids {
		counts[id] = 0
	}
	for _, row := range rows {
		counts[row.DriverID] = row.Delivered
	}
	return s.recompute(ctx, ids, false, counts)
}

func (s *statisticsService) RecomputePendingDriverStats(ctx context.Context) (*DriverStatsResult, error) {
	result := &DriverStatsResult{Totals: map[string]int{}, RanAt: s.deps.now()}
	if s.deps.Queue == nil {
		return result, nil
	}

	for {
		ids, err := s.deps.Queue.Drain(ctx, pendingDrainChunk)
		if err != nil {
			return nil, fmt.Errorf("failed to drain driver stats queue: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		chunk, err := s.recompute(ctx, ids, false, nil)
		if err != nil {
			// put the chunk back so the next run retries it
			s.deps.drivers().mark(ctx, toPtrs(ids)...)
			return nil, err
		}
		result.Drivers += chunk.Drivers
		for k, v := range chunk.Totals {
			result.Totals[k] = v
		}
		if len(ids) < pendingDrainChunk {
			break
		}
	}
	return result, nil
}

// recompute writes the DELIVERED count of each driver in one transaction, counting per driver unless
// precomputed counts are given. Drivers that vanished since being queued are skipped unless strict is set.
func (s *statisticsService) recompute(ctx context.Context, ids []uuid.UUID, strict bool, counts map[uuid.UUID]int64) (*DriverStatsResult, error) {
	now := s.deps.now()
	result := &DriverStatsResult{Totals: make(map[string]int, len(ids)), RanAt: now}

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, id := range ids {
			count, ok := counts[id]
			if !ok {
				var err error
				count, err = s.repo.CountDelivered(txCtx, id)
				if err != nil {
					return fmt.Errorf("failed to count deliveries for driver %s: %w", id, err)
				}
			}
			if err := s.drivers.SetTotalDeliveries(txCtx, id, int(count), now); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) && !strict {
					continue
				}
				return loadErr(err, model.EntityDriver, id)
			}
			result.Totals[id.String()] = int(count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Drivers = len(result.Totals)

	s.deps.logger().WithFields(logrus.Fields{"drivers": result.Drivers}).Info("driver statistics recomputed")
	s.deps.events().emit(ctx, event.New(event.DriverStatsRecomputed, "", map[string]interface{}{"drivers": result.Drivers}))
	return result, nil
}

func toPtrs(ids []uuid.UUID) []*uuid.UUID {
	out := make([]*uuid.UUID, len(ids))
	for i := range ids {
		out[i] = &ids[i]
	}
	return out
}
