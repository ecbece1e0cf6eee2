package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"
	"sppg/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreateDeliveryRequest struct {
	DistributionID string     `json:"distribution_id" binding:"required,uuid"`
	SchoolID       string     `json:"school_id" binding:"required,uuid"`
	DriverID       *string    `json:"driver_id" binding:"omitempty,uuid"`
	VehicleID      *string    `json:"vehicle_id" binding:"omitempty,uuid"`
	DeliveryOrder  *int       `json:"delivery_order"`
	PlannedTime    *time.Time `json:"planned_time"`
	Notes          string     `json:"notes"`
}

type DepartDeliveryRequest struct {
	DepartureTime *time.Time `json:"departure_time"`
}

type CompleteDeliveryRequest struct {
	PortionsDelivered *int       `json:"portions_delivered" form:"portions_delivered" binding:"required"`
	ProofReference    string     `json:"proof_reference" form:"proof_reference"`
	ArrivalTime       *time.Time `json:"arrival_time" form:"arrival_time"`
	CompletionTime    *time.Time `json:"completion_time" form:"completion_time"`
	Notes             string     `json:"notes" form:"notes"`
}

type FailDeliveryRequest struct {
	Reason string `json:"reason" binding:"required"`
}

type CorrectDeliveryRequest struct {
	Status model.DeliveryStatus `json:"status" binding:"required"`
	Reason string               `json:"reason" binding:"required"`
}

// ProofUpload is a proof file received from the client.
type ProofUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type DeliveryService interface {
	CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (*model.Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error)
	ListDeliveries(ctx context.Context, filter repository.DeliveryFilter) ([]model.Delivery, int64, error)
	DepartDelivery(ctx context.Context, id uuid.UUID, req DepartDeliveryRequest) (*model.Delivery, error)
	CompleteDelivery(ctx context.Context, id uuid.UUID, req CompleteDeliveryRequest) (*model.Delivery, error)
	FailDelivery(ctx context.Context, id uuid.UUID, req FailDeliveryRequest) (*model.Delivery, error)
	// CorrectDelivery is the administrative override that turns a DELIVERED delivery into FAILED.
	CorrectDelivery(ctx context.Context, id uuid.UUID, req CorrectDeliveryRequest) (*model.Delivery, error)
	// UploadProof stores a proof file and returns the reference to pass to CompleteDelivery.
	UploadProof(ctx context.Context, id uuid.UUID, file ProofUpload) (string, error)
}

type deliveryService struct {
	deps          Deps
	repo          repository.DeliveryRepository
	distributions repository.DistributionRepository
	drivers       repository.DriverRepository
	vehicles      repository.VehicleRepository
	proofs        storage.ProofStore
}

func NewDeliveryService(
	deps Deps,
	repo repository.DeliveryRepository,
	distributions repository.DistributionRepository,
	drivers repository.DriverRepository,
	vehicles repository.VehicleRepository,
	proofs storage.ProofStore,
) DeliveryService {
	return &deliveryService{
		deps:          deps,
		repo:          repo,
		distributions: distributions,
		drivers:       drivers,
		vehicles:      vehicles,
		proofs:        proofs,
	}
}

func (s *deliveryService) CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (*model.Delivery, error) {
	distID, err := ParseID("distribution_id", req.DistributionID)
	if err != nil {
		return nil, err
	}
	schoolID, err := ParseID("school_id", req.SchoolID)
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

	var delivery *model.Delivery
	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		dist, err := s.distributions.FindForUpdate(txCtx, distID)
		if err != nil {
			return loadErr(err, model.EntityDistribution, distID)
		}
		if dist.Status.IsTerminal() {
			return &apperror.TerminalStateError{
				Entity:    model.EntityDistribution,
				ID:        dist.ID.String(),
				State:     string(dist.Status),
				Attempted: "ADD_DELIVERY",
			}
		}

		alloc, err := s.distributions.FindAllocation(txCtx, distID, schoolID)
		if err != nil {
			return apperror.Invalid("school_id", "school is not allocated in this distribution")
		}
		exists, err := s.repo.ExistsForSchool(txCtx, distID, schoolID)
		if err != nil {
			return fmt.Errorf("failed to check deliveries: %w", err)
		}
		if exists {
			return apperror.Invalid("school_id", "a delivery for this school already exists in the distribution")
		}

		if driverID == nil {
			driverID = dist.DriverID
		}
		if vehicleID == nil {
			vehicleID = dist.VehicleID
		}
		if driverID != nil {
			if _, err := activeDriver(txCtx, s.drivers, *driverID); err != nil {
				return err
			}
		}
		if vehicleID != nil {
			if _, err := s.vehicles.FindByID(txCtx, *vehicleID); err != nil {
				return loadErr(err, model.EntityVehicle, *vehicleID)
			}
		}

		order := alloc.RouteOrder
		if req.DeliveryOrder != nil {
			order = *req.DeliveryOrder
		}

		delivery = &model.Delivery{
			DistributionID: distID,
			SchoolID:       schoolID,
			VehicleID:      vehicleID,
			DriverID:       driverID,
			DeliveryOrder:  order,
			PlannedTime:    req.PlannedTime,
			Status:         model.DeliveryPending,
			Notes:          req.Notes,
		}
		if err := s.repo.Create(txCtx, delivery); err != nil {
			return fmt.Errorf("failed to create delivery: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreateDelivery, model.EntityDelivery, delivery.ID, "",
			map[string]interface{}{"distribution_id": distID, "school_id": schoolID, "driver_id": driverID})
	})
	if err != nil {
		return nil, err
	}

	s.deps.events().emit(ctx, event.New(event.DeliveryCreated, delivery.ID.String(),
		map[string]interface{}{"distribution_id": distID, "school_id": schoolID}))
	return delivery, nil
}

func (s *deliveryService) GetDelivery(ctx context.Context, id uuid.UUID) (*model.Delivery, error) {
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityDelivery, id)
	}
	return d, nil
}

func (s *deliveryService) ListDeliveries(ctx context.Context, filter repository.DeliveryFilter) ([]model.Delivery, int64, error) {
	ds, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch deliveries: %w", err)
	}
	return ds, total, nil
}

// DepartDelivery locks the distribution before the delivery; the first departure puts a PREPARING
// distribution in transit.
func (s *deliveryService) DepartDelivery(ctx context.Context, id uuid.UUID, req DepartDeliveryRequest) (*model.Delivery, error) {
	var delivery *model.Delivery
	var events []event.Event

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		peek, err := s.repo.FindByID(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDelivery, id)
		}
		dist, err := s.distributions.FindForUpdate(txCtx, peek.DistributionID)
		if err != nil {
			return loadErr(err, model.EntityDistribution, peek.DistributionID)
		}
		delivery, err = s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDelivery, id)
		}
		if err := model.CheckTransition(model.EntityDelivery, delivery.ID, delivery.Status, model.DeliveryInTransit); err != nil {
			return err
		}
		if dist.Status.IsTerminal() {
			return &apperror.TerminalStateError{
				Entity:    model.EntityDistribution,
				ID:        dist.ID.String(),
				State:     string(dist.Status),
				Attempted: "DEPART_DELIVERY",
			}
		}

		departure := s.deps.now()
		if req.DepartureTime != nil {
			departure = *req.DepartureTime
		}

		from := delivery.Status
		delivery.Status = model.DeliveryInTransit
		delivery.DepartureTime = &departure
		if err := s.repo.Update(txCtx, delivery); err != nil {
			return fmt.Errorf("failed to depart delivery: %w", err)
		}
		if err := s.deps.audits().record(txCtx, model.ActionDepartDelivery, model.EntityDelivery, delivery.ID, "",
			transition(from, delivery.Status)); err != nil {
			return err
		}
		events = append(events, event.New(event.DeliveryDeparted, delivery.ID.String(),
			map[string]interface{}{"distribution_id": delivery.DistributionID, "departure_time": departure}))

		if dist.Status == model.DistributionPreparing {
			dist.Status = model.DistributionInTransit
			dist.DepartedAt = &departure
			if err := s.distributions.Update(txCtx, dist); err != nil {
				return fmt.Errorf("failed to update distribution: %w", err)
			}
			if err := s.deps.audits().record(txCtx, model.ActionAdvanceDistribution, model.EntityDistribution, dist.ID,
				dist.DistributionDate.Format("2006-01-02"), transition(model.DistributionPreparing, dist.Status)); err != nil {
				return err
			}
			events = append(events, event.New(event.DistributionAdvanced, dist.ID.String(),
				transition(model.DistributionPreparing, dist.Status)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(delivery, model.DeliveryPending)
	s.deps.drivers().mark(ctx, delivery.DriverID)
	s.deps.events().emit(ctx, events...)
	return delivery, nil
}

func (s *deliveryService) CompleteDelivery(ctx context.Context, id uuid.UUID, req CompleteDeliveryRequest) (*model.Delivery, error) {
	if req.PortionsDelivered == nil {
		return nil, apperror.Invalid("portions_delivered", "is required")
	}
	portions := *req.PortionsDelivered
	if portions < 0 {
		return nil, apperror.Invalid("portions_delivered", "must not be negative")
	}

	var delivery *model.Delivery
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		delivery, err = s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDelivery, id)
		}
		if err := model.CheckTransition(model.EntityDelivery, delivery.ID, delivery.Status, model.DeliveryDelivered); err != nil {
			return err
		}

		alloc, err := s.distributions.FindAllocationForUpdate(txCtx, delivery.DistributionID, delivery.SchoolID)
		if err != nil {
			return loadErr(err, model.EntitySchool, delivery.SchoolID)
		}
		if portions > alloc.PlannedPortions {
			return &apperror.OverAllocationError{
				Entity:    model.EntityDelivery,
				ID:        delivery.ID.String(),
				Requested: portions,
				Limit:     alloc.PlannedPortions,
			}
		}

		now := s.deps.now()
		arrival, completion := now, now
		if req.ArrivalTime != nil {
			arrival = *req.ArrivalTime
		}
		if req.CompletionTime != nil {
			completion = *req.CompletionTime
		}
		if delivery.DepartureTime != nil && arrival.Before(*delivery.DepartureTime) {
			return apperror.Invalid("arrival_time", "must not be before the departure time")
		}
		if completion.Before(arrival) {
			return apperror.Invalid("completion_time", "must not be before the arrival time")
		}

		from := delivery.Status
		delivery.Status = model.DeliveryDelivered
		delivery.ArrivalTime = &arrival
		delivery.CompletionTime = &completion
		delivery.PortionsDelivered = &portions
		if ref := strings.TrimSpace(req.ProofReference); ref != "" {
			delivery.ProofReference = ref
		}
		delivery.Notes = appendNote(delivery.Notes, req.Notes)
		if err := s.repo.Update(txCtx, delivery); err != nil {
			return fmt.Errorf("failed to complete delivery: %w", err)
		}

		alloc.ActualPortions = &portions
		if err := s.distributions.UpdateAllocation(txCtx, alloc); err != nil {
			return fmt.Errorf("failed to update school allocation: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCompleteDelivery, model.EntityDelivery, delivery.ID, "",
			map[string]interface{}{"from": from, "to": delivery.Status, "portions_delivered": portions, "planned_portions": alloc.PlannedPortions})
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(delivery, model.DeliveryInTransit)
	s.deps.drivers().mark(ctx, delivery.DriverID)
	s.deps.events().emit(ctx, event.New(event.DeliveryDelivered, delivery.ID.String(),
		map[string]interface{}{"distribution_id": delivery.DistributionID, "school_id": delivery.SchoolID, "portions_delivered": portions}))
	return delivery, nil
}

// FailDelivery is permitted from any non-terminal state and requires a reason.
func (s *deliveryService) FailDelivery(ctx context.Context, id uuid.UUID, req FailDeliveryRequest) (*model.Delivery, error) {
	reason := strings.TrimSpace(req.Reason)

	var delivery *model.Delivery
	var from model.DeliveryStatus
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		delivery, err = s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDelivery, id)
		}
		if err := model.CheckTransition(model.EntityDelivery, delivery.ID, delivery.Status, model.DeliveryFailed); err != nil {
			return err
		}
		if reason == "" {
			return apperror.Invalid("reason", "a failure explanation is required")
		}

		from = delivery.Status
		delivery.Status = model.DeliveryFailed
		delivery.PortionsDelivered = nil
		delivery.CompletionTime = nil
		delivery.Notes = appendNote(delivery.Notes, reason)
		if err := s.repo.Update(txCtx, delivery); err != nil {
			return fmt.Errorf("failed to fail delivery: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionFailDelivery, model.EntityDelivery, delivery.ID, "",
			map[string]interface{}{"from": from, "to": delivery.Status, "reason": reason})
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(delivery, from)
	s.deps.drivers().mark(ctx, delivery.DriverID)
	s.deps.events().emit(ctx, event.New(event.DeliveryFailed, delivery.ID.String(),
		map[string]interface{}{"distribution_id": delivery.DistributionID, "reason": reason}))
	return delivery, nil
}

func (s *deliveryService) CorrectDelivery(ctx context.Context, id uuid.UUID, req CorrectDeliveryRequest) (*model.Delivery, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperror.Invalid("reason", "a correction reason is required")
	}

	var delivery *model.Delivery
	var previous *int
	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		delivery, err = s.repo.FindForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityDelivery, id)
		}
		if delivery.Status.IsTerminal() && delivery.Status != model.DeliveryDelivered {
			return &apperror.TerminalStateError{
				Entity:    model.EntityDelivery,
				ID:        delivery.ID.String(),
				State:     string(delivery.Status),
				Attempted: string(req.Status),
			}
		}
		if delivery.Status != model.DeliveryDelivered || req.Status != model.DeliveryFailed {
			return &apperror.InvalidTransitionError{
				Entity: model.EntityDelivery,
				ID:     delivery.ID.String(),
				From:   string(delivery.Status),
				To:     string(req.Status),
				Reason: "only DELIVERED -> FAILED can be corrected",
			}
		}

		alloc, err := s.distributions.FindAllocationForUpdate(txCtx, delivery.DistributionID, delivery.SchoolID)
		if err != nil {
			return loadErr(err, model.EntitySchool, delivery.SchoolID)
		}

		previous = delivery.PortionsDelivered
		delivery.Status = model.DeliveryFailed
		delivery.PortionsDelivered = nil
		delivery.CompletionTime = nil
		delivery.Notes = appendNote(delivery.Notes, "corrected: "+reason)
		if err := s.repo.Update(txCtx, delivery); err != nil {
			return fmt.Errorf("failed to correct delivery: %w", err)
		}

		alloc.ActualPortions = nil
		if err := s.distributions.UpdateAllocation(txCtx, alloc); err != nil {
			return fmt.Errorf("failed to update school allocation: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCorrectDelivery, model.EntityDelivery, delivery.ID, "",
			map[string]interface{}{"from": model.DeliveryDelivered, "to": delivery.Status, "reason": reason, "previous_portions": previous})
	})
	if err != nil {
		return nil, err
	}

	s.deps.logger().WithFields(logrus.Fields{"delivery_id": delivery.ID, "reason": reason}).Warn("delivery corrected to FAILED")
	s.deps.drivers().mark(ctx, delivery.DriverID)
	s.deps.events().emit(ctx, event.New(event.DeliveryCorrected, delivery.ID.String(),
		map[string]interface{}{"distribution_id": delivery.DistributionID, "previous_portions": previous, "reason": reason}))
	return delivery, nil
}

func (s *deliveryService) UploadProof(ctx context.Context, id uuid.UUID, file ProofUpload) (string, error) {
	if s.proofs == nil {
		return "", apperror.Invalid("proof", "proof storage is not configured")
	}
	d, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", loadErr(err, model.EntityDelivery, id)
	}
	if d.Status.IsTerminal() {
		return "", &apperror.TerminalStateError{
			Entity:    model.EntityDelivery,
			ID:        d.ID.String(),
			State:     string(d.Status),
			Attempted: "UPLOAD_PROOF",
		}
	}

	ref, err := s.proofs.Upload(ctx, d.ID, file.FileName, file.ContentType, file.Body, file.Size)
	if err != nil {
		return "", err
	}
	s.deps.logger().WithFields(logrus.Fields{"delivery_id": d.ID, "proof": ref}).Info("delivery proof stored")
	return ref, nil
}

func (s *deliveryService) logTransition(d *model.Delivery, from model.DeliveryStatus) {
	s.deps.logger().WithFields(logrus.Fields{
		"delivery_id": d.ID,
		"from":        from,
		"to":          d.Status,
	}).Info("delivery transitioned")
}
