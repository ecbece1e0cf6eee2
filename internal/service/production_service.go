package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CreatePlanRequest struct {
	PlanDate         time.Time  `json:"plan_date" binding:"required"`
	TargetPortions   int        `json:"target_portions" binding:"required,gt=0"`
	MenuID           string     `json:"menu_id" binding:"required,uuid"`
	PlannedStartTime *time.Time `json:"planned_start_time"`
	PlannedEndTime   *time.Time `json:"planned_end_time"`
	Notes            string     `json:"notes"`
}

type CreateBatchRequest struct {
	PlanID          *string `json:"plan_id" binding:"omitempty,uuid"`
	RecipeID        string  `json:"recipe_id" binding:"required,uuid"`
	PlannedQuantity int     `json:"planned_quantity" binding:"required,gt=0"`
	BatchNumber     string  `json:"batch_number"`
	Notes           string  `json:"notes"`
}

type CompleteBatchRequest struct {
	// ActualQuantity defaults to the planned quantity when omitted.
	ActualQuantity *int   `json:"actual_quantity"`
	Notes          string `json:"notes"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type ProductionService interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*model.ProductionPlan, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error)
	ListPlans(ctx context.Context, filter repository.ProductionFilter) ([]model.ProductionPlan, int64, error)
	CancelPlan(ctx context.Context, id uuid.UUID, req CancelRequest) (*model.ProductionPlan, error)

	CreateBatch(ctx context.Context, req CreateBatchRequest) (*model.ProductionBatch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	ListBatches(ctx context.Context, filter repository.ProductionFilter) ([]model.ProductionBatch, int64, error)
	StartBatch(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error)
	CompleteBatch(ctx context.Context, id uuid.UUID, req CompleteBatchRequest) (*model.ProductionBatch, error)
	CancelBatch(ctx context.Context, id uuid.UUID, req CancelRequest) (*model.ProductionBatch, error)
}

type productionService struct {
	deps Deps
	repo repository.ProductionRepository
}

func NewProductionService(deps Deps, repo repository.ProductionRepository) ProductionService {
	return &productionService{deps: deps, repo: repo}
}

func (s *productionService) CreatePlan(ctx context.Context, req CreatePlanRequest) (*model.ProductionPlan, error) {
	if req.TargetPortions <= 0 {
		return nil, apperror.Invalid("target_portions", "must be positive")
	}
	menuID, err := ParseID("menu_id", req.MenuID)
	if err != nil {
		return nil, err
	}
	if req.PlannedStartTime != nil && req.PlannedEndTime != nil && req.PlannedEndTime.Before(*req.PlannedStartTime) {
		return nil, apperror.Invalid("planned_end_time", "must not be before planned_start_time")
	}

	plan := &model.ProductionPlan{
		PlanDate:         req.PlanDate,
		TargetPortions:   req.TargetPortions,
		MenuID:           menuID,
		Status:           model.ProductionPending,
		PlannedStartTime: req.PlannedStartTime,
		PlannedEndTime:   req.PlannedEndTime,
		Notes:            req.Notes,
		CreatedBy:        ActorFrom(ctx),
	}

	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.CreatePlan(txCtx, plan); err != nil {
			return fmt.Errorf("failed to create production plan: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreatePlan, model.EntityPlan, plan.ID, plan.PlanDate.Format("2006-01-02"),
			map[string]interface{}{"target_portions": plan.TargetPortions, "menu_id": plan.MenuID})
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *productionService) GetPlan(ctx context.Context, id uuid.UUID) (*model.ProductionPlan, error) {
	plan, err := s.repo.FindPlanByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityPlan, id)
	}
	return plan, nil
}

func (s *productionService) ListPlans(ctx context.Context, filter repository.ProductionFilter) ([]model.ProductionPlan, int64, error) {
	plans, total, err := s.repo.ListPlans(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch production plans: %w", err)
	}
	return plans, total, nil
}

// CancelPlan force-cancels every batch still PENDING or IN_PROGRESS; completed batches keep their outcome.
func (s *productionService) CancelPlan(ctx context.Context, id uuid.UUID, req CancelRequest) (*model.ProductionPlan, error) {
	var plan *model.ProductionPlan
	var events []event.Event

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		plan, err = s.repo.FindPlanForUpdate(txCtx, id)
		if err != nil {
			return loadErr(err, model.EntityPlan, id)
		}
		if err := model.CheckTransition(model.EntityPlan, plan.ID, plan.Status, model.ProductionCancelled); err != nil {
			return err
		}

		batches, err := s.repo.ListBatchesByPlan(txCtx, plan.ID)
		if err != nil {
			return fmt.Errorf("failed to load plan batches: %w", err)
		}

		now := s.deps.now()
		var cancelled []string
		for i := range batches {
			b, err := s.repo.FindBatchForUpdate(txCtx, batches[i].ID)
			if err != nil {
				return loadErr(err, model.EntityBatch, batches[i].ID)
			}
			if b.Status.IsTerminal() {
				continue
			}
			from := b.Status
			b.Status = model.ProductionCancelled
			b.Notes = appendNote(b.Notes, "plan cancelled")
			if err := s.repo.UpdateBatch(txCtx, b); err != nil {
				return fmt.Errorf("failed to cancel batch: %w", err)
			}
			if err := s.deps.audits().record(txCtx, model.ActionCancelBatch, model.EntityBatch, b.ID, b.BatchNumber,
				transition(from, b.Status)); err != nil {
				return err
			}
			cancelled = append(cancelled, b.BatchNumber)
			events = append(events, event.New(event.BatchCancelled, b.ID.String(), map[string]interface{}{"plan_id": plan.ID, "from": from}))
		}

		from := plan.Status
		plan.Status = model.ProductionCancelled
		if plan.ActualEndTime == nil {
			plan.ActualEndTime = &now
		}
		plan.Notes = appendNote(plan.Notes, req.Reason)
		if err := s.repo.UpdatePlan(txCtx, plan); err != nil {
			return fmt.Errorf("failed to cancel production plan: %w", err)
		}
		events = append(events, event.New(event.PlanCancelled, plan.ID.String(), map[string]interface{}{"from": from, "cancelled_batches": cancelled}))
		return s.deps.audits().record(txCtx, model.ActionCancelPlan, model.EntityPlan, plan.ID, plan.PlanDate.Format("2006-01-02"),
			map[string]interface{}{"from": from, "to": plan.Status, "reason": req.Reason, "cancelled_batches": cancelled})
	})
	if err != nil {
		return nil, err
	}

	s.deps.logger().WithFields(logrus.Fields{"plan_id": plan.ID, "to": plan.Status}).Info("production plan cancelled")
	s.deps.events().emit(ctx, events...)
	return s.GetPlan(ctx, plan.ID)
}

func (s *productionService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*model.ProductionBatch, error) {
	if req.PlannedQuantity <= 0 {
		return nil, apperror.Invalid("planned_quantity", "must be positive")
	}
	recipeID, err := ParseID("recipe_id", req.RecipeID)
	if err != nil {
		return nil, err
	}

	batch := &model.ProductionBatch{
		RecipeID:        recipeID,
		PlannedQuantity: req.PlannedQuantity,
		Status:          model.ProductionPending,
		Notes:           req.Notes,
		CreatedBy:       ActorFrom(ctx),
	}

	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if req.PlanID != nil && *req.PlanID != "" {
			planID, err := ParseID("plan_id", *req.PlanID)
			if err != nil {
				return err
			}
			plan, err := s.repo.FindPlanForUpdate(txCtx, planID)
			if err != nil {
				return loadErr(err, model.EntityPlan, planID)
			}
			if plan.Status.IsTerminal() {
				return &apperror.TerminalStateError{
					Entity:    model.EntityPlan,
					ID:        plan.ID.String(),
					State:     string(plan.Status),
					Attempted: "ADD_BATCH",
				}
			}
			batch.PlanID = &plan.ID
		}

		number := strings.TrimSpace(req.BatchNumber)
		if number == "" {
			var err error
			number, err = s.nextBatchNumber(txCtx)
			if err != nil {
				return err
			}
		}
		batch.BatchNumber = number

		if err := s.repo.CreateBatch(txCtx, batch); err != nil {
			return fmt.Errorf("failed to create production batch: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionCreateBatch, model.EntityBatch, batch.ID, batch.BatchNumber,
			map[string]interface{}{"plan_id": batch.PlanID, "planned_quantity": batch.PlannedQuantity})
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// nextBatchNumber allocates BATCH-YYYYMMDD-NNNN for the current day. On postgres a transaction-scoped
// advisory lock serializes concurrent allocations.
func (s *productionService) nextBatchNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("BATCH-%s-", s.deps.now().Format("20060102"))

	if s.deps.DB != nil {
		db := repository.GetDB(ctx, s.deps.DB)
		if db.Dialector.Name() == "postgres" {
			if err := db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", prefix).Error; err != nil {
				return "", fmt.Errorf("failed to lock batch sequence: %w", err)
			}
		}
	}

	count, err := s.repo.CountBatchesWithPrefix(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to count batches: %w", err)
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}

func (s *productionService) GetBatch(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	batch, err := s.repo.FindBatchByID(ctx, id)
	if err != nil {
		return nil, loadErr(err, model.EntityBatch, id)
	}
	return batch, nil
}

func (s *productionService) ListBatches(ctx context.Context, filter repository.ProductionFilter) ([]model.ProductionBatch, int64, error) {
	batches, total, err := s.repo.ListBatches(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch production batches: %w", err)
	}
	return batches, total, nil
}

// lockBatchWithPlan locks the parent plan before the batch so every production write takes locks
// in the same order.
func (s *productionService) lockBatchWithPlan(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, *model.ProductionPlan, error) {
	peek, err := s.repo.FindBatchByID(ctx, id)
	if err != nil {
		return nil, nil, loadErr(err, model.EntityBatch, id)
	}

	var plan *model.ProductionPlan
	if peek.PlanID != nil {
		plan, err = s.repo.FindPlanForUpdate(ctx, *peek.PlanID)
		if err != nil {
			return nil, nil, loadErr(err, model.EntityPlan, *peek.PlanID)
		}
	}

	batch, err := s.repo.FindBatchForUpdate(ctx, id)
	if err != nil {
		return nil, nil, loadErr(err, model.EntityBatch, id)
	}
	return batch, plan, nil
}

func (s *productionService) StartBatch(ctx context.Context, id uuid.UUID) (*model.ProductionBatch, error) {
	var batch *model.ProductionBatch
	var events []event.Event

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var plan *model.ProductionPlan
		var err error
		batch, plan, err = s.lockBatchWithPlan(txCtx, id)
		if err != nil {
			return err
		}
		if err := model.CheckTransition(model.EntityBatch, batch.ID, batch.Status, model.ProductionInProgress); err != nil {
			return err
		}

		now := s.deps.now()
		from := batch.Status
		batch.Status = model.ProductionInProgress
		batch.StartedAt = &now
		if err := s.repo.UpdateBatch(txCtx, batch); err != nil {
			return fmt.Errorf("failed to start batch: %w", err)
		}
		if err := s.deps.audits().record(txCtx, model.ActionStartBatch, model.EntityBatch, batch.ID, batch.BatchNumber,
			transition(from, batch.Status)); err != nil {
			return err
		}
		events = append(events, event.New(event.BatchStarted, batch.ID.String(), map[string]interface{}{"plan_id": batch.PlanID}))

		// the first batch to start moves its plan into production
		if plan != nil && plan.Status == model.ProductionPending {
			plan.Status = model.ProductionInProgress
			plan.ActualStartTime = &now
			if err := s.repo.UpdatePlan(txCtx, plan); err != nil {
				return fmt.Errorf("failed to start production plan: %w", err)
			}
			if err := s.deps.audits().record(txCtx, model.ActionStartBatch, model.EntityPlan, plan.ID, plan.PlanDate.Format("2006-01-02"),
				transition(model.ProductionPending, plan.Status)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(batch, model.ProductionPending)
	s.deps.events().emit(ctx, events...)
	return batch, nil
}

func (s *productionService) CompleteBatch(ctx context.Context, id uuid.UUID, req CompleteBatchRequest) (*model.ProductionBatch, error) {
	if req.ActualQuantity != nil && *req.ActualQuantity < 0 {
		return nil, apperror.Invalid("actual_quantity", "must not be negative")
	}

	var batch *model.ProductionBatch
	var events []event.Event
	var variance int

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var plan *model.ProductionPlan
		var err error
		batch, plan, err = s.lockBatchWithPlan(txCtx, id)
		if err != nil {
			return err
		}
		if err := model.CheckTransition(model.EntityBatch, batch.ID, batch.Status, model.ProductionCompleted); err != nil {
			return err
		}

		actual := batch.PlannedQuantity
		if req.ActualQuantity != nil {
			actual = *req.ActualQuantity
		}
		variance = actual - batch.PlannedQuantity

		now := s.deps.now()
		from := batch.Status
		batch.Status = model.ProductionCompleted
		batch.ActualQuantity = &actual
		batch.CompletedAt = &now
		batch.Notes = appendNote(batch.Notes, req.Notes)
		if err := s.repo.UpdateBatch(txCtx, batch); err != nil {
			return fmt.Errorf("failed to complete batch: %w", err)
		}
		if err := s.deps.audits().record(txCtx, model.ActionCompleteBatch, model.EntityBatch, batch.ID, batch.BatchNumber,
			map[string]interface{}{"from": from, "to": batch.Status, "planned_quantity": batch.PlannedQuantity, "actual_quantity": actual}); err != nil {
			return err
		}
		if variance != 0 {
			if err := s.deps.audits().record(txCtx, model.ActionVarianceLogged, model.EntityBatch, batch.ID, batch.BatchNumber,
				map[string]interface{}{"planned_quantity": batch.PlannedQuantity, "actual_quantity": actual, "variance": variance}); err != nil {
				return err
			}
		}
		events = append(events, event.New(event.BatchCompleted, batch.ID.String(),
			map[string]interface{}{"plan_id": batch.PlanID, "actual_quantity": actual, "variance": variance}))

		rolled, err := s.rollupPlan(txCtx, plan)
		if err != nil {
			return err
		}
		events = append(events, rolled...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if variance != 0 {
		s.deps.logger().WithFields(logrus.Fields{
			"batch_id": batch.ID,
			"planned":  batch.PlannedQuantity,
			"actual":   *batch.ActualQuantity,
		}).Warn("production variance recorded")
	}
	s.logTransition(batch, model.ProductionInProgress)
	s.deps.events().emit(ctx, events...)
	return batch, nil
}

func (s *productionService) CancelBatch(ctx context.Context, id uuid.UUID, req CancelRequest) (*model.ProductionBatch, error) {
	var batch *model.ProductionBatch
	var events []event.Event
	var from model.ProductionStatus

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var plan *model.ProductionPlan
		var err error
		batch, plan, err = s.lockBatchWithPlan(txCtx, id)
		if err != nil {
			return err
		}
		if err := model.CheckTransition(model.EntityBatch, batch.ID, batch.Status, model.ProductionCancelled); err != nil {
			return err
		}

		from = batch.Status
		batch.Status = model.ProductionCancelled
		batch.Notes = appendNote(batch.Notes, req.Reason)
		if err := s.repo.UpdateBatch(txCtx, batch); err != nil {
			return fmt.Errorf("failed to cancel batch: %w", err)
		}
		if err := s.deps.audits().record(txCtx, model.ActionCancelBatch, model.EntityBatch, batch.ID, batch.BatchNumber,
			map[string]interface{}{"from": from, "to": batch.Status, "reason": req.Reason}); err != nil {
			return err
		}
		events = append(events, event.New(event.BatchCancelled, batch.ID.String(), map[string]interface{}{"plan_id": batch.PlanID, "from": from}))

		rolled, err := s.rollupPlan(txCtx, plan)
		if err != nil {
			return err
		}
		events = append(events, rolled...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(batch, from)
	s.deps.events().emit(ctx, events...)
	return batch, nil
}

// rollupPlan completes an IN_PROGRESS plan once every batch under it is terminal. A plan that never
// started stays PENDING even if all its batches were cancelled.
func (s *productionService) rollupPlan(ctx context.Context, plan *model.ProductionPlan) ([]event.Event, error) {
	if plan == nil || plan.Status != model.ProductionInProgress {
		return nil, nil
	}

	batches, err := s.repo.ListBatchesByPlan(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load plan batches: %w", err)
	}
	completed := 0
	for _, b := range batches {
		if !b.Status.IsTerminal() {
			return nil, nil
		}
		if b.Status == model.ProductionCompleted {
			completed++
		}
	}

	now := s.deps.now()
	plan.Status = model.ProductionCompleted
	plan.ActualEndTime = &now
	if err := s.repo.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to complete production plan: %w", err)
	}
	if err := s.deps.audits().record(ctx, model.ActionCompletePlan, model.EntityPlan, plan.ID, plan.PlanDate.Format("2006-01-02"),
		map[string]interface{}{"from": model.ProductionInProgress, "to": plan.Status, "completed_batches": completed}); err != nil {
		return nil, err
	}

	s.deps.logger().WithFields(logrus.Fields{"plan_id": plan.ID, "completed_batches": completed}).Info("production plan completed")
	return []event.Event{event.New(event.PlanCompleted, plan.ID.String(), map[string]interface{}{"completed_batches": completed})}, nil
}

func (s *productionService) logTransition(batch *model.ProductionBatch, from model.ProductionStatus) {
	s.deps.logger().WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"from":     from,
		"to":       batch.Status,
	}).Info("production batch transitioned")
}

func appendNote(notes, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return notes
	}
	if notes == "" {
		return addition
	}
	return notes + "\n" + addition
}
