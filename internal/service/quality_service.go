package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// GateUnresolved is reported for batches that have no checkpoint at all.
const GateUnresolved = "UNRESOLVED"

var checkpointTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

var maxScore = decimal.NewFromInt(100)

type RecordCheckpointRequest struct {
	BatchID        *string                `json:"batch_id" binding:"omitempty,uuid"`
	PlanID         *string                `json:"plan_id" binding:"omitempty,uuid"`
	CheckpointType string                 `json:"checkpoint_type" binding:"required"`
	Status         model.QualityOutcome   `json:"status" binding:"required"`
	Score          *decimal.Decimal       `json:"score"`
	Metrics        map[string]interface{} `json:"metrics"`
	Notes          string                 `json:"notes"`
	CheckedAt      *time.Time             `json:"checked_at"`
}

type RecordCheckRequest struct {
	ReferenceType string                 `json:"reference_type" binding:"required"`
	ReferenceID   string                 `json:"reference_id" binding:"required,uuid"`
	Status        model.QualityOutcome   `json:"status" binding:"required"`
	Score         *decimal.Decimal       `json:"score"`
	Metrics       map[string]interface{} `json:"metrics"`
	Notes         string                 `json:"notes"`
}

// GateDecision is the outcome of the distribution quality gate for one batch.
type GateDecision struct {
	BatchID      uuid.UUID  `json:"batch_id"`
	Passed       bool       `json:"passed"`
	Status       string     `json:"status"`
	CheckpointID *uuid.UUID `json:"checkpoint_id,omitempty"`
	Rework       bool       `json:"rework"`
}

// decisiveCheckpoint returns the most recent checkpoint; a rework checkpoint wins a tie on timestamp.
func decisiveCheckpoint(checkpoints []model.QualityCheckpoint) *model.QualityCheckpoint {
	var decisive *model.QualityCheckpoint
	for i := range checkpoints {
		cp := &checkpoints[i]
		if decisive == nil {
			decisive = cp
			continue
		}
		switch {
		case cp.CheckedAt.After(decisive.CheckedAt):
			decisive = cp
		case cp.CheckedAt.Equal(decisive.CheckedAt) && cp.IsRework() && !decisive.IsRework():
			decisive = cp
		}
	}
	return decisive
}

// EvaluateGate applies the gating rule to a batch's checkpoint timeline. The decisive entry is the
// most recent checkpoint; a rework checkpoint wins a tie on timestamp. Only PASS and GOOD open the gate.
// RecordCheckpoint refuses a rework dated before the inspection it supersedes, so ordering by
// checked_at never hides a rework behind the failure it resolved.
func EvaluateGate(batchID uuid.UUID, checkpoints []model.QualityCheckpoint) GateDecision {
	decisive := decisiveCheckpoint(checkpoints)
	if decisive == nil {
		return GateDecision{BatchID: batchID, Status: GateUnresolved}
	}
	id := decisive.ID
	return GateDecision{
		BatchID:      batchID,
		Passed:       decisive.Status.Acceptable(),
		Status:       string(decisive.Status),
		CheckpointID: &id,
		Rework:       decisive.IsRework(),
	}
}

type QualityService interface {
	RecordCheckpoint(ctx context.Context, req RecordCheckpointRequest) (*model.QualityCheckpoint, error)
	ListCheckpoints(ctx context.Context, batchID, planID *uuid.UUID) ([]model.QualityCheckpoint, error)
	RecordCheck(ctx context.Context, req RecordCheckRequest) (*model.QualityCheck, error)
	GetCheck(ctx context.Context, referenceType string, referenceID uuid.UUID) (*model.QualityCheck, error)
	GateForBatch(ctx context.Context, batchID uuid.UUID) (GateDecision, error)
	// GateForBatches evaluates several batches at once, keyed by batch id.
	GateForBatches(ctx context.Context, batchIDs []uuid.UUID) (map[uuid.UUID]GateDecision, error)
}

type qualityService struct {
	deps       Deps
	repo       repository.QualityRepository
	production repository.ProductionRepository
}

func NewQualityService(deps Deps, repo repository.QualityRepository, production repository.ProductionRepository) QualityService {
	return &qualityService{deps: deps, repo: repo, production: production}
}

func validateScore(score *decimal.Decimal) (decimal.NullDecimal, error) {
	if score == nil {
		return decimal.NullDecimal{}, nil
	}
	if score.IsNegative() || score.GreaterThan(maxScore) {
		return decimal.NullDecimal{}, apperror.Invalid("score", "must be between 0 and 100")
	}
	return decimal.NewNullDecimal(score.Round(2)), nil
}

func (s *qualityService) RecordCheckpoint(ctx context.Context, req RecordCheckpointRequest) (*model.QualityCheckpoint, error) {
	hasBatch := req.BatchID != nil && *req.BatchID != ""
	hasPlan := req.PlanID != nil && *req.PlanID != ""
	if hasBatch == hasPlan {
		return nil, apperror.Invalid("batch_id", "exactly one of batch_id or plan_id is required")
	}

	cpType := strings.ToUpper(strings.TrimSpace(req.CheckpointType))
	if !checkpointTypePattern.MatchString(cpType) {
		return nil, apperror.Invalid("checkpoint_type", "must be an upper-case identifier such as FINAL")
	}
	status := model.QualityOutcome(strings.ToUpper(string(req.Status)))
	if !status.Valid() {
		return nil, apperror.Invalid("status", "must be one of PASS, FAIL, CONDITIONAL, GOOD, FAIR")
	}
	score, err := validateScore(req.Score)
	if err != nil {
		return nil, err
	}

	checkedAt := s.deps.now()
	if req.CheckedAt != nil {
		checkedAt = *req.CheckedAt
	}

	cp := &model.QualityCheckpoint{
		CheckpointType: cpType,
		Status:         status,
		Score:          score,
		Metrics:        datatypes.JSONMap(req.Metrics),
		Notes:          req.Notes,
		CheckedBy:      ActorFrom(ctx),
		CheckedAt:      checkedAt,
	}

	var entityName string
	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if hasBatch {
			batchID, err := ParseID("batch_id", *req.BatchID)
			if err != nil {
				return err
			}
			batch, err := s.production.FindBatchForUpdate(txCtx, batchID)
			if err != nil {
				return loadErr(err, model.EntityBatch, batchID)
			}

			prior, err := s.repo.ListCheckpointsByBatch(txCtx, batchID)
			if err != nil {
				return fmt.Errorf("failed to load checkpoints: %w", err)
			}
			if cp.IsRework() {
				latest, ok := latestInspection(prior)
				if !ok {
					return apperror.Invalid("checkpoint_type", "a rework checkpoint needs an earlier inspection to supersede")
				}
				if cp.CheckedAt.Before(latest) {
					return apperror.Invalid("checked_at", "a rework checkpoint cannot predate the inspection it supersedes")
				}
			}

			cp.BatchID = &batch.ID
			entityName = batch.BatchNumber
			// The batch score follows whichever checkpoint decides the gate.
			if decisive := decisiveCheckpoint(append(prior, *cp)); decisive.Score.Valid && !scoreEqual(batch.QualityScore, decisive.Score) {
				batch.QualityScore = decisive.Score
				if err := s.production.UpdateBatch(txCtx, batch); err != nil {
					return fmt.Errorf("failed to update batch quality score: %w", err)
				}
			}
		} else {
			planID, err := ParseID("plan_id", *req.PlanID)
			if err != nil {
				return err
			}
			plan, err := s.production.FindPlanByID(txCtx, planID)
			if err != nil {
				return loadErr(err, model.EntityPlan, planID)
			}
			cp.PlanID = &plan.ID
			entityName = plan.PlanDate.Format("2006-01-02")
		}

		if err := s.repo.CreateCheckpoint(txCtx, cp); err != nil {
			return fmt.Errorf("failed to record checkpoint: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionRecordQuality, model.EntityCheckpoint, cp.ID, entityName,
			map[string]interface{}{"checkpoint_type": cp.CheckpointType, "status": cp.Status, "batch_id": cp.BatchID, "plan_id": cp.PlanID})
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"checkpoint_id": cp.ID, "type": cp.CheckpointType, "status": cp.Status}
	if cp.BatchID != nil {
		fields["batch_id"] = *cp.BatchID
	}
	if status.NeedsRework() {
		s.deps.logger().WithFields(fields).Warn("quality checkpoint failed")
	} else {
		s.deps.logger().WithFields(fields).Info("quality checkpoint recorded")
	}
	s.deps.events().emit(ctx, event.New(event.CheckpointRecorded, cp.ID.String(),
		map[string]interface{}{"batch_id": cp.BatchID, "plan_id": cp.PlanID, "status": cp.Status, "type": cp.CheckpointType}))
	return cp, nil
}

// latestInspection is the newest checked_at among non-rework checkpoints.
func latestInspection(checkpoints []model.QualityCheckpoint) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, cp := range checkpoints {
		if cp.IsRework() {
			continue
		}
		if !found || cp.CheckedAt.After(latest) {
			latest, found = cp.CheckedAt, true
		}
	}
	return latest, found
}

func scoreEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func (s *qualityService) ListCheckpoints(ctx context.Context, batchID, planID *uuid.UUID) ([]model.QualityCheckpoint, error) {
	var (
		cps []model.QualityCheckpoint
		err error
	)
	switch {
	case batchID != nil:
		cps, err = s.repo.ListCheckpointsByBatch(ctx, *batchID)
	case planID != nil:
		cps, err = s.repo.ListCheckpointsByPlan(ctx, *planID)
	default:
		return nil, apperror.Invalid("batch_id", "batch_id or plan_id is required")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}
	return cps, nil
}

// RecordCheck upserts the live check for its reference pair.
func (s *qualityService) RecordCheck(ctx context.Context, req RecordCheckRequest) (*model.QualityCheck, error) {
	refType := strings.ToUpper(strings.TrimSpace(req.ReferenceType))
	switch refType {
	case model.ReferenceProductionBatch, model.ReferenceProductionPlan, model.ReferenceRawMaterial:
	default:
		return nil, apperror.Invalid("reference_type", "must be PRODUCTION_BATCH, PRODUCTION_PLAN or RAW_MATERIAL")
	}
	refID, err := ParseID("reference_id", req.ReferenceID)
	if err != nil {
		return nil, err
	}
	status := model.QualityOutcome(strings.ToUpper(string(req.Status)))
	if !status.Valid() {
		return nil, apperror.Invalid("status", "must be one of PASS, FAIL, CONDITIONAL, GOOD, FAIR")
	}
	score, err := validateScore(req.Score)
	if err != nil {
		return nil, err
	}

	now := s.deps.now()
	check := &model.QualityCheck{
		ReferenceType: refType,
		ReferenceID:   refID,
		Status:        status,
		Score:         score,
		Metrics:       datatypes.JSONMap(req.Metrics),
		Notes:         req.Notes,
		CheckedBy:     ActorFrom(ctx),
		CheckedAt:     now,
	}

	var stored *model.QualityCheck
	err = s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		switch refType {
		case model.ReferenceProductionBatch:
			if _, err := s.production.FindBatchByID(txCtx, refID); err != nil {
				return loadErr(err, model.EntityBatch, refID)
			}
		case model.ReferenceProductionPlan:
			if _, err := s.production.FindPlanByID(txCtx, refID); err != nil {
				return loadErr(err, model.EntityPlan, refID)
			}
		}

		if err := s.repo.UpsertCheck(txCtx, check); err != nil {
			return fmt.Errorf("failed to record quality check: %w", err)
		}
		// the upsert may have hit the existing row, so reload the live record
		var err error
		stored, err = s.repo.FindCheck(txCtx, refType, refID)
		if err != nil {
			return fmt.Errorf("failed to reload quality check: %w", err)
		}
		return s.deps.audits().record(txCtx, model.ActionRecordCheck, model.EntityCheck, stored.ID, refType,
			map[string]interface{}{"reference_id": refID, "status": status})
	})
	if err != nil {
		return nil, err
	}

	s.deps.events().emit(ctx, event.New(event.CheckRecorded, stored.ID.String(),
		map[string]interface{}{"reference_type": refType, "reference_id": refID, "status": status}))
	return stored, nil
}

func (s *qualityService) GetCheck(ctx context.Context, referenceType string, referenceID uuid.UUID) (*model.QualityCheck, error) {
	refType := strings.ToUpper(referenceType)
	check, err := s.repo.FindCheck(ctx, refType, referenceID)
	if err != nil {
		return nil, loadErr(err, model.EntityCheck, referenceID)
	}
	return check, nil
}

func (s *qualityService) GateForBatch(ctx context.Context, batchID uuid.UUID) (GateDecision, error) {
	if _, err := s.production.FindBatchByID(ctx, batchID); err != nil {
		return GateDecision{}, loadErr(err, model.EntityBatch, batchID)
	}
	decisions, err := s.GateForBatches(ctx, []uuid.UUID{batchID})
	if err != nil {
		return GateDecision{}, err
	}
	return decisions[batchID], nil
}

func (s *qualityService) GateForBatches(ctx context.Context, batchIDs []uuid.UUID) (map[uuid.UUID]GateDecision, error) {
	cps, err := s.repo.ListCheckpointsByBatches(ctx, batchIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	byBatch := make(map[uuid.UUID][]model.QualityCheckpoint, len(batchIDs))
	for _, cp := range cps {
		if cp.BatchID != nil {
			byBatch[*cp.BatchID] = append(byBatch[*cp.BatchID], cp)
		}
	}

	out := make(map[uuid.UUID]GateDecision, len(batchIDs))
	for _, id := range batchIDs {
		timeline := byBatch[id]
		sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].CheckedAt.Before(timeline[j].CheckedAt) })
		out[id] = EvaluateGate(id, timeline)
	}
	return out, nil
}
