package service

import (
	"errors"
	"testing"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateGate(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cp := func(cpType string, status model.QualityOutcome, minutes int) model.QualityCheckpoint {
		return model.QualityCheckpoint{
			ID:             uuid.New(),
			CheckpointType: cpType,
			Status:         status,
			CheckedAt:      base.Add(time.Duration(minutes) * time.Minute),
		}
	}

	tests := []struct {
		name       string
		timeline   []model.QualityCheckpoint
		wantPassed bool
		wantStatus string
		wantRework bool
	}{
		{"no checkpoints", nil, false, GateUnresolved, false},
		{"final pass", []model.QualityCheckpoint{cp("FINAL", model.QualityPass, 0)}, true, "PASS", false},
		{"good passes", []model.QualityCheckpoint{cp("FINAL", model.QualityGood, 0)}, true, "GOOD", false},
		{"fair blocks", []model.QualityCheckpoint{cp("FINAL", model.QualityFair, 0)}, false, "FAIR", false},
		{"conditional blocks", []model.QualityCheckpoint{cp("FINAL", model.QualityConditional, 0)}, false, "CONDITIONAL", false},
		{
			"fail superseded by rework pass",
			[]model.QualityCheckpoint{cp("FINAL", model.QualityFail, 0), cp("REWORK", model.QualityPass, 30)},
			true, "PASS", true,
		},
		{
			"later fail overrides earlier pass",
			[]model.QualityCheckpoint{cp("MID_PRODUCTION", model.QualityPass, 0), cp("FINAL", model.QualityFail, 10)},
			false, "FAIL", false,
		},
		{
			"rework wins a timestamp tie",
			[]model.QualityCheckpoint{cp("REWORK", model.QualityPass, 5), cp("FINAL", model.QualityFail, 5)},
			true, "PASS", true,
		},
		{
			"order of input does not matter",
			[]model.QualityCheckpoint{cp("REWORK", model.QualityFail, 20), cp("FINAL", model.QualityPass, 0)},
			false, "FAIL", true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.New()
			got := EvaluateGate(id, tt.timeline)
			assert.Equal(t, id, got.BatchID)
			assert.Equal(t, tt.wantPassed, got.Passed)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantRework, got.Rework)
		})
	}
}

func TestReworkGateScenario(t *testing.T) {
	h := newHarness(t)
	b := h.completedBatch(200)

	gate, err := h.quality.GateForBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, GateUnresolved, gate.Status)
	assert.False(t, gate.Passed)

	h.checkpoint(b.ID, model.CheckpointFinal, model.QualityFail)
	gate, err = h.quality.GateForBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, gate.Passed)

	rework := h.checkpoint(b.ID, model.CheckpointRework, model.QualityPass)
	gate, err = h.quality.GateForBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gate.Passed)
	assert.True(t, gate.Rework)
	require.NotNil(t, gate.CheckpointID)
	assert.Equal(t, rework.ID, *gate.CheckpointID)

	timeline, err := h.quality.ListCheckpoints(h.ctx, &b.ID, nil)
	require.NoError(t, err)
	assert.Len(t, timeline, 2, "the failed entry stays in the timeline")
}

func TestReworkNeedsPriorInspection(t *testing.T) {
	h := newHarness(t)
	b := h.completedBatch(50)
	raw := b.ID.String()

	_, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID:        &raw,
		CheckpointType: model.CheckpointRework,
		Status:         model.QualityPass,
	})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid))
}

func TestBackdatedReworkIsRejected(t *testing.T) {
	h := newHarness(t)
	b := h.completedBatch(120)
	raw := b.ID.String()

	failed := h.checkpoint(b.ID, model.CheckpointFinal, model.QualityFail)
	backdated := failed.CheckedAt.Add(-2 * time.Hour)
	_, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID:        &raw,
		CheckpointType: model.CheckpointRework,
		Status:         model.QualityPass,
		CheckedAt:      &backdated,
	})
	var invalid *apperror.ValidationError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "checked_at", invalid.Field)

	gate, err := h.quality.GateForBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, gate.Passed, "a refused rework leaves the failure decisive")
	require.NotNil(t, gate.CheckpointID)
	assert.Equal(t, failed.ID, *gate.CheckpointID)

	sameInstant := failed.CheckedAt
	rework, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID:        &raw,
		CheckpointType: model.CheckpointRework,
		Status:         model.QualityPass,
		CheckedAt:      &sameInstant,
	})
	require.NoError(t, err)
	gate, err = h.quality.GateForBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, gate.Passed)
	assert.Equal(t, rework.ID, *gate.CheckpointID)
}

func TestBatchScoreFollowsDecisiveCheckpoint(t *testing.T) {
	h := newHarness(t)
	b := h.completedBatch(90)
	raw := b.ID.String()

	final := decimal.NewFromInt(40)
	_, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &raw, CheckpointType: model.CheckpointFinal, Status: model.QualityFail, Score: &final,
	})
	require.NoError(t, err)

	earlier := h.clock.Add(-3 * time.Hour)
	mid := decimal.NewFromInt(95)
	_, err = h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &raw, CheckpointType: "MID_PRODUCTION", Status: model.QualityPass, Score: &mid, CheckedAt: &earlier,
	})
	require.NoError(t, err)

	stored, err := h.production.GetBatch(h.ctx, b.ID)
	require.NoError(t, err)
	require.True(t, stored.QualityScore.Valid)
	assert.Equal(t, "40.00", stored.QualityScore.Decimal.StringFixed(2), "an older inspection does not replace the decisive score")

	reworkScore := decimal.NewFromInt(88)
	_, err = h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &raw, CheckpointType: model.CheckpointRework, Status: model.QualityPass, Score: &reworkScore,
	})
	require.NoError(t, err)

	stored, err = h.production.GetBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "88.00", stored.QualityScore.Decimal.StringFixed(2))
}

func TestRecordCheckpointValidation(t *testing.T) {
	h := newHarness(t)
	plan := h.plan(100)
	b := h.completedBatch(100)
	batchID, planID := b.ID.String(), plan.ID.String()
	var invalid *apperror.ValidationError

	_, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{CheckpointType: "FINAL", Status: model.QualityPass})
	assert.True(t, errors.As(err, &invalid), "needs a target")

	_, err = h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &batchID, PlanID: &planID, CheckpointType: "FINAL", Status: model.QualityPass,
	})
	assert.True(t, errors.As(err, &invalid), "only one target")

	_, err = h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{BatchID: &batchID, CheckpointType: "final", Status: "EXCELLENT"})
	assert.True(t, errors.As(err, &invalid), "unknown outcome")

	tooHigh := decimal.NewFromInt(101)
	_, err = h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &batchID, CheckpointType: "FINAL", Status: model.QualityPass, Score: &tooHigh,
	})
	assert.True(t, errors.As(err, &invalid), "score out of range")

	score := decimal.RequireFromString("87.456")
	cp, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID: &batchID, CheckpointType: "final", Status: "pass", Score: &score,
		Metrics: map[string]interface{}{"temperature_c": 74},
	})
	require.NoError(t, err)
	assert.Equal(t, "FINAL", cp.CheckpointType)
	assert.Equal(t, model.QualityPass, cp.Status)

	stored, err := h.production.GetBatch(h.ctx, b.ID)
	require.NoError(t, err)
	require.True(t, stored.QualityScore.Valid)
	assert.Equal(t, "87.46", stored.QualityScore.Decimal.StringFixed(2))

	planCP, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{PlanID: &planID, CheckpointType: "MID_PRODUCTION", Status: model.QualityFair})
	require.NoError(t, err)
	assert.Nil(t, planCP.BatchID)

	byPlan, err := h.quality.ListCheckpoints(h.ctx, nil, &plan.ID)
	require.NoError(t, err)
	assert.Len(t, byPlan, 1)
}

func TestRecordCheckIsIdempotentPerReference(t *testing.T) {
	h := newHarness(t)
	b := h.completedBatch(80)

	first, err := h.quality.RecordCheck(h.ctx, RecordCheckRequest{
		ReferenceType: model.ReferenceProductionBatch,
		ReferenceID:   b.ID.String(),
		Status:        model.QualityFail,
		Notes:         "undercooked",
	})
	require.NoError(t, err)

	second, err := h.quality.RecordCheck(h.ctx, RecordCheckRequest{
		ReferenceType: "production_batch",
		ReferenceID:   b.ID.String(),
		Status:        model.QualityPass,
		Notes:         "re-heated",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.QualityPass, second.Status)

	count, err := h.qualityRepo.CountChecks(h.ctx, model.ReferenceProductionBatch, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	live, err := h.quality.GetCheck(h.ctx, "PRODUCTION_BATCH", b.ID)
	require.NoError(t, err)
	assert.Equal(t, "re-heated", live.Notes)

	_, err = h.quality.RecordCheck(h.ctx, RecordCheckRequest{
		ReferenceType: model.ReferenceProductionBatch,
		ReferenceID:   uuid.NewString(),
		Status:        model.QualityPass,
	})
	var notFound *apperror.NotFoundError
	assert.True(t, errors.As(err, &notFound))

	_, err = h.quality.RecordCheck(h.ctx, RecordCheckRequest{ReferenceType: "SUPPLIER", ReferenceID: uuid.NewString(), Status: model.QualityPass})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid))
}
