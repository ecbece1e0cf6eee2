package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/document"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type SchoolAllocationRequest struct {
	SchoolID        string `json:"school_id" binding:"required,uuid"`
	PlannedPortions int    `json:"planned_portions" binding:"required,gt=0"`
	RouteOrder      int    `json:"route_order"`
}

type CreateDistributionRequest struct {
	DistributionDate  time.Time                 `json:"distribution_date" binding:"required"`
	BatchIDs          []string                  `json:"batch_ids" binding:"required,min=1,dive,uuid"`
	Schools           []SchoolAllocationRequest `json:"schools" binding:"required,min=1,dive"`
	TotalPortions     *int                      `json:"total_portions"`
	DriverID          *string                   `json:"driver_id" binding:"omitempty,uuid"`
	VehicleID         *string                   `json:"vehicle_id" binding:"omitempty,uuid"`
	EstimatedDuration *int                      `json:"estimated_duration"`
	Notes             string                    `json:"notes"`
}

type AdvanceDistributionRequest struct {
	Status model.DistributionStatus `json:"status" binding:"required"`
	Notes  string                   `json:"notes"`
}

const distributionCancelledNote = "distribution cancelled"

type DistributionService interface {
	CreateDistribution(ctx context.Context, req CreateDistributionRequest) (*model.Distribution, error)
	GetDistribution(ctx context.Context, id uuid.UUID) (*model.Distribution, error)
	ListDistributions(ctx context.Context, filter repository.DistributionFilter) ([]model.Distribution, int64, error)
	AdvanceDistribution(ctx context.Context, id uuid.UUID, req AdvanceDistributionRequest) (*model.Distribution, error)
	// RenderManifest returns the manifest PDF for drivers.
	RenderManifest(ctx context.Context, id uuid.UUID) ([]byte, error)
}

type distributionService struct {
	deps       Deps
	repo       repository.DistributionRepository
	deliveries repository.DeliveryRepository
	production repository.ProductionRepository
	quality    QualityService
	schools    repository.SchoolRepository
	drivers    repository.DriverRepository
	vehicles   repository.VehicleRepository
}

func NewDistributionService(
	deps Deps,
	repo repository.DistributionRepository,
	deliveries repository.DeliveryRepository,
	production repository.ProductionRepository,
	quality QualityService,
	schools repository.SchoolRepository,
	drivers repository.DriverRepository,
	vehicles repository.VehicleRepository,
) DistributionService {
	return &distributionService{
		deps:       deps,
		repo:       repo,
		deliveries: deliveries,
		production: production,
		quality:    quality,
		schools:    schools,
		drivers:    drivers,
		vehicles:   vehicles,
	}
}

func parseIDs(field string, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]struct{}, len(raw))
	for _, r := range raw {
		id, err := ParseID(field, r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			return nil, apperror.Invalid(field, fmt.Sprintf("%s is listed twice", id))
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOptionalID(field string, raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := ParseID(field, *raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *distributionService) CreateDistribution(ctx context.Context, req CreateDistributionRequest) (*model.Distribution, error) {
	if len(req.BatchIDs) == 0 {
		return nil, apperror.Invalid("batch_ids", "at least one batch is required")
	}
	if len(req.Schools) == 0 {
		return nil, apperror.Invalid("schools", "at least one school allocation is required")
	}
	batchIDs, err := parseIDs("batch_ids", req.BatchIDs)
	if err != nil {
		return nil, err
	}
	driverID, err := parseOptionalID("driver_id", req.DriverID)
	if err != nil {
		return nil, err
	}
	vehicleID, err := parseOptionalID("vehicle_id", req.VehicleID)
	if err != nil {
		return nil, err
	}
	if req.EstimatedDuration != nil && *req.EstimatedDuration < 0 {
		return nil, apperror.Invalid("estimated_duration", "must not be negative")
	}

	allocations := make([]model.DistributionSchool, 0, len(req.Schools))
	schoolIDs := make([]uuid.UUID, 0, len(req.Schools))
	seenSchools := make(map[uuid.UUID]struct{}, len(req.Schools))
	allocated := 0
	for _, a := range req.Schools {
		id, err := ParseID("school_id", a.SchoolID)
		if err != nil {
			return nil, err
		}
		if _, dup := seenSchools[id]; dup {
			return nil, apperror.Invalid("schools", fmt.Sprintf("school %s is allocated twice", id))
		}
		if a.PlannedPortions <= 0 {
			return nil, apperror.Invalid("planned_portions", "must be positive")
		}
		seenSchools[id] = struct{}{}
		schoolIDs = append(schoolIDs, id)
		allocated += a.PlannedPortions
		allocations = append(allocations, model.DistributionSchool{
			SchoolID:        id,
			PlannedPortions: a.PlannedPortions,
			RouteOrder:      a.RouteOrder,
		})
	}

	total := allocated
	if req.TotalPortions != nil {
		total = *req.TotalPortions
	}
	if allocated > total {
		return nil, &apperror.OverAllocationError{Entity: model.EntityDistribution, ID: "new", Requested: allocated, Limit: total}
	}

	dist := &model.Distribution{
		DistributionDate:  req.DistributionDate,
		Status:            model.DistributionPreparing,
		TotalPortions:     total,
		DriverID:          driverID,
		VehicleID:         vehicleID,
		EstimatedDuration: req.EstimatedDuration,
		Notes:             req.Notes,
		CreatedBy:         ActorFrom(ctx),
		Schools:           allocations,
	}

	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		produced, err := s.lockDistributableBatches(txCtx, batchIDs)
		if err != nil {
			return err
		}
		if total > produced {
			return &apperror.OverAllocationError{Entity: model.EntityDistribution, ID: "new", Requested: total, Limit: produced}
		}

		if err := s.checkSchools(txCtx, schoolIDs); err != nil {
			return err
		}
		if driverID != nil {
			if _, err := activeDriver(txCtx, s.drivers, *driverID); err != nil {
				return err
			}
		}
		if vehicleID != nil {
			v, err := s.vehicles.FindByID(txCtx, *vehicleID)
			if err != nil {
				return loadErr(err, model.EntityVehicle, *vehicleID)
			}
			if !v.IsActive {
				return apperror.Invalid("vehicle_id", fmt.Sprintf("vehicle %s is inactive", v.PlateNumber))
			}
		}

		for _, id := range batchIDs {
			dist.Batches = append(dist.Batches, model.DistributionBatch{BatchID: id})
		}
		if err := s.repo.Create(txCtx, dist); err != nil {
			return fmt.Errorf("failed to create distribution: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreateDistribution, model.EntityDistribution, dist.ID,
			dist.DistributionDate.Format("2006-01-02"),
			map[string]interface{}{"batch_ids": batchIDs, "total_portions": total, "schools": len(allocations)})
	})
	if err != nil {
		return nil, err
	}

	s.deps.logger().WithFields(logrus.Fields{
		"distribution_id": dist.ID,
		"batches":         len(batchIDs),
		"total_portions":  total,
	}).Info("distribution created")
	s.deps.events().emit(ctx, event.New(event.DistributionCreated, dist.ID.String(),
		map[string]interface{}{"batch_ids": batchIDs, "total_portions": total}))
	return s.GetDistribution(ctx, dist.ID)
}

// lockDistributableBatches locks the batches in id order and enforces the distribution policy:
// each batch is COMPLETED, passes the quality gate and feeds no other live distribution.
// It returns the portions the batches produced.
func (s *distributionService) lockDistributableBatches(ctx context.Context, ids []uuid.UUID) (int, error) {
	sorted := append([]uuid.UUID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	batches := make(map[uuid.UUID]*model.ProductionBatch, len(sorted))
	for _, id := range sorted {
		b, err := s.production.FindBatchForUpdate(ctx, id)
		if err != nil {
			return 0, loadErr(err, model.EntityBatch, id)
		}
		batches[id] = b
	}

	produced := 0
	for _, id := range ids {
		b := batches[id]
		if b.Status != model.ProductionCompleted {
			return 0, apperror.Invalid("batch_ids", fmt.Sprintf("batch %s is %s, only COMPLETED batches can be distributed", b.BatchNumber, b.Status))
		}
		if b.ActualQuantity != nil {
			produced += *b.ActualQuantity
		}
	}

	decisions, err := s.quality.GateForBatches(ctx, ids)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if d := decisions[id]; !d.Passed {
			return 0, &apperror.QualityGateError{BatchID: id.String(), Status: d.Status}
		}
	}

	taken, err := s.repo.AllocatedBatchIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to check batch allocations: %w", err)
	}
	if len(taken) > 0 {
		return 0, apperror.Invalid("batch_ids", fmt.Sprintf("batch %s already feeds another distribution", batches[taken[0]].BatchNumber))
	}
	return produced, nil
}

func (s *distributionService) checkSchools(ctx context.Context, ids []uuid.UUID) error {
	schools, err := s.schools.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to fetch schools: %w", err)
	}
	found := make(map[uuid.UUID]model.School, len(schools))
	for _, sc := range schools {
		found[sc.ID] = sc
	}
	for _, id := range ids {
		sc, ok := found[id]
		if !ok {
			return apperror.NotFound(model.EntitySchool, id.String())
		}
		if !sc.IsActive {
			return apperror.Invalid("schools", fmt.Sprintf("school %s is inactive", sc.Name))
		}
	}
	return nil
}

func activeDriver(ctx context.Context, drivers repository.DriverRepository, id uuid.UUID) (*model.Driver, error) {
	d, err := drivers.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDriver, id)
	}
	if !d.IsActive {
		return nil, apperror.Invalid("driver_id", fmt.Sprintf("driver %s is inactive", d.Name))
	}
	return d, nil
}

func (s *distributionService) GetDistribution(ctx context.Context, id uuid.UUID) (*model.Distribution, error) {
	dist, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDistribution, id)
	}
	return dist, nil
}

func (s *distributionService) ListDistributions(ctx context.Context, filter repository.DistributionFilter) ([]model.Distribution, int64, error) {
	dists, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch distributions: %w", err)
	}
	return dists, total, nil
}

func (s *distributionService) AdvanceDistribution(ctx context.Context, id uuid.UUID, req AdvanceDistributionRequest) (*model.Distribution, error) {
	to := req.Status
	if !to.Valid() {
		return nil, apperror.Invalid("status", "must be PREPARING, IN_TRANSIT, COMPLETED or CANCELLED")
	}

	var from model.DistributionStatus
	var events []event.Event
	var dirty []*uuid.UUID

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		dist, err := s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDistribution, id)
		}
		if err := model.CheckTransition(model.EntityDistribution, dist.ID, dist.Status, to); err != nil {
			return err
		}

		now := s.deps.now()
		switch to {
		case model.DistributionInTransit:
			dist.DepartedAt = &now
		case model.DistributionCompleted:
			deliveries, err := s.deliveries.ListByDistribution(txCtx, dist.ID)
			if err != nil {
				return fmt.Errorf("failed to load deliveries: %w", err)
			}
			for _, d := range deliveries {
				if !d.Status.IsTerminal() {
					return &apperror.InvalidTransitionError{
						Entity: model.EntityDistribution,
						ID:     dist.ID.String(),
						From:   string(dist.Status),
						To:     string(to),
						Reason: fmt.Sprintf("delivery %s is still %s", d.ID, d.Status),
					}
				}
			}
			dist.CompletedAt = &now
			if dist.DepartedAt != nil {
				minutes := int(now.Sub(*dist.DepartedAt).Minutes())
				dist.ActualDuration = &minutes
			}
		case model.DistributionCancelled:
			failed, err := s.failOpenDeliveries(txCtx, dist.ID, now)
			if err != nil {
				return err
			}
			for i := range failed {
				dirty = append(dirty, failed[i].DriverID)
				events = append(events, event.New(event.DeliveryFailed, failed[i].ID.String(),
					map[string]interface{}{"distribution_id": dist.ID, "reason": distributionCancelledNote}))
			}
		}

		from = dist.Status
		dist.Status = to
		dist.Notes = appendNote(dist.Notes, req.Notes)
		if err := s.repo.Update(txCtx, dist); err != nil {
			return fmt.Errorf("failed to update distribution: %w", err)
		}
		events = append(events, event.New(event.DistributionAdvanced, dist.ID.String(), transition(from, to)))
		return s.deps.audits().record(txCtx, model.ActionAdvanceDistribution, model.EntityDistribution, dist.ID,
			dist.DistributionDate.Format("2006-01-02"), transition(from, to))
	})
	if err != nil {
		return nil, err
	}

	s.deps.logger().WithFields(logrus.Fields{"distribution_id": id, "from": from, "to": to}).Info("distribution transitioned")
	s.deps.drivers().mark(ctx, dirty...)
	s.deps.events().emit(ctx, events...)
	return s.GetDistribution(ctx, id)
}

// failOpenDeliveries fails every non-terminal delivery of a cancelled distribution.
func (s *distributionService) failOpenDeliveries(ctx context.Context, distributionID uuid.UUID, now time.Time) ([]model.Delivery, error) {
	deliveries, err := s.deliveries.ListByDistribution(ctx, distributionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}

	var failed []model.Delivery
	for _, d := range deliveries {
		if d.Status.IsTerminal() {
			continue
		}
		locked, err := s.deliveries.FindForUpdate(ctx, d.ID)
		if err != nil {
			return nil, loadErr(err, model.EntityDelivery, d.ID)
		}
		from := locked.Status
		locked.Status = model.DeliveryFailed
		locked.PortionsDelivered = nil
		locked.CompletionTime = nil
		locked.Notes = appendNote(locked.Notes, distributionCancelledNote)
		if err := s.deliveries.Update(ctx, locked); err != nil {
			return nil, fmt.Errorf("failed to fail delivery: %w", err)
		}
		if err := s.deps.audits().record(ctx, model.ActionFailDelivery, model.EntityDelivery, locked.ID, distributionCancelledNote,
			map[string]interface{}{"from": from, "to": locked.Status, "at": now}); err != nil {
			return nil, err
		}
		failed = append(failed, *locked)
	}
	return failed, nil
}

func (s *distributionService) RenderManifest(ctx context.Context, id uuid.UUID) ([]byte, error) {
	dist, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDistribution, id)
	}

	data := document.ManifestData{
		DistributionID: dist.ID.String(),
		Date:           dist.DistributionDate,
		Status:         string(dist.Status),
		TotalPortions:  dist.TotalPortions,
	}
	if dist.DriverID != nil {
		if d, err := s.drivers.FindByID(ctx, *dist.DriverID); err == nil {
			data.DriverName = d.Name
		}
	}
	if dist.VehicleID != nil {
		if v, err := s.vehicles.FindByID(ctx, *dist.VehicleID); err == nil {
			data.VehiclePlate = v.PlateNumber
		}
	}

	batchIDs := make([]uuid.UUID, 0, len(dist.Batches))
	for _, b := range dist.Batches {
		batchIDs = append(batchIDs, b.BatchID)
	}
	batches, err := s.production.FindBatchesByIDs(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batches: %w", err)
	}
	for _, b := range batches {
		data.BatchNumbers = append(data.BatchNumbers, b.BatchNumber)
	}
	sort.Strings(data.BatchNumbers)

	schoolIDs := make([]uuid.UUID, 0, len(dist.Schools))
	for _, a := range dist.Schools {
		schoolIDs = append(schoolIDs, a.SchoolID)
	}
	schools, err := s.schools.FindByIDs(ctx, schoolIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schools: %w", err)
	}
	byID := make(map[uuid.UUID]model.School, len(schools))
	for _, sc := range schools {
		byID[sc.ID] = sc
	}

	deliveries, err := s.deliveries.ListByDistribution(ctx, dist.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deliveries: %w", err)
	}
	statusBySchool := make(map[uuid.UUID]model.DeliveryStatus, len(deliveries))
	for _, d := range deliveries {
		statusBySchool[d.SchoolID] = d.Status
	}

	for _, a := range dist.Schools {
		status := "NOT SCHEDULED"
		if st, ok := statusBySchool[a.SchoolID]; ok {
			status = string(st)
		}
		data.Stops = append(data.Stops, document.ManifestStop{
			RouteOrder:      a.RouteOrder,
			SchoolName:      byID[a.SchoolID].Name,
			Address:         byID[a.SchoolID].Address,
			PlannedPortions: a.PlannedPortions,
			ActualPortions:  a.ActualPortions,
			Status:          status,
		})
	}

	pdf, err := document.RenderManifestPDF(data, s.deps.now())
	if err != nil {
		return nil, fmt.Errorf("failed to render manifest: %w", err)
	}
	return pdf, nil
}
