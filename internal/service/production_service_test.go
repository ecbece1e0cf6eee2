package service

import (
	"errors"
	"testing"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchCannotSkipInProgress(t *testing.T) {
	h := newHarness(t)
	b := h.batch(nil, 100)

	_, err := h.production.CompleteBatch(h.ctx, b.ID, CompleteBatchRequest{})
	var invalid *apperror.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "PENDING", invalid.From)
	assert.Equal(t, "COMPLETED", invalid.To)

	var terminal *apperror.TerminalStateError
	assert.False(t, errors.As(err, &terminal))

	got, err := h.production.GetBatch(h.ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionPending, got.Status)
}

func TestCompleteBatchRecordsVariance(t *testing.T) {
	h := newHarness(t)
	plan := h.plan(500)
	b := h.batch(&plan.ID, 500)

	started, err := h.production.StartBatch(h.ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, started.StartedAt)

	p, err := h.production.GetPlan(h.ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionInProgress, p.Status, "first batch start moves the plan")
	assert.NotNil(t, p.ActualStartTime)

	actual := 495
	done, err := h.production.CompleteBatch(h.ctx, b.ID, CompleteBatchRequest{ActualQuantity: &actual})
	require.NoError(t, err)
	assert.Equal(t, model.ProductionCompleted, done.Status)
	require.NotNil(t, done.ActualQuantity)
	assert.Equal(t, 495, *done.ActualQuantity)
	assert.True(t, done.CompletedAt.After(*done.StartedAt))

	assert.Contains(t, h.auditActions(b.ID), model.ActionVarianceLogged)

	p, err = h.production.GetPlan(h.ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionCompleted, p.Status, "plan completes once its only batch is terminal")
	assert.Contains(t, h.events.Types(), event.PlanCompleted)

	_, err = h.production.CancelBatch(h.ctx, b.ID, CancelRequest{Reason: "too late"})
	var terminal *apperror.TerminalStateError
	require.True(t, errors.As(err, &terminal))
	var invalid *apperror.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid), "terminal errors are also invalid transitions")
}

func TestCompleteBatchDefaultsToPlanned(t *testing.T) {
	h := newHarness(t)
	b := h.batch(nil, 120)
	_, err := h.production.StartBatch(h.ctx, b.ID)
	require.NoError(t, err)

	negative := -1
	_, err = h.production.CompleteBatch(h.ctx, b.ID, CompleteBatchRequest{ActualQuantity: &negative})
	var invalid *apperror.ValidationError
	require.True(t, errors.As(err, &invalid))

	done, err := h.production.CompleteBatch(h.ctx, b.ID, CompleteBatchRequest{Notes: "smooth"})
	require.NoError(t, err)
	assert.Equal(t, 120, *done.ActualQuantity)
	assert.Equal(t, "smooth", done.Notes)
	assert.NotContains(t, h.auditActions(b.ID), model.ActionVarianceLogged)
}

func TestPlanRollupWaitsForEveryBatch(t *testing.T) {
	h := newHarness(t)
	plan := h.plan(300)
	first := h.batch(&plan.ID, 150)
	second := h.batch(&plan.ID, 150)

	_, err := h.production.StartBatch(h.ctx, first.ID)
	require.NoError(t, err)
	_, err = h.production.CompleteBatch(h.ctx, first.ID, CompleteBatchRequest{})
	require.NoError(t, err)

	p, err := h.production.GetPlan(h.ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionInProgress, p.Status)

	_, err = h.production.CancelBatch(h.ctx, second.ID, CancelRequest{Reason: "stove broke"})
	require.NoError(t, err)

	p, err = h.production.GetPlan(h.ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionCompleted, p.Status)
	assert.NotNil(t, p.ActualEndTime)
}

func TestPlanThatNeverStartedStaysPending(t *testing.T) {
	h := newHarness(t)
	plan := h.plan(100)
	b := h.batch(&plan.ID, 100)

	_, err := h.production.CancelBatch(h.ctx, b.ID, CancelRequest{})
	require.NoError(t, err)

	p, err := h.production.GetPlan(h.ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ProductionPending, p.Status)
}

func TestCancelPlanCancelsOpenBatches(t *testing.T) {
	h := newHarness(t)
	plan := h.plan(300)
	done := h.batch(&plan.ID, 100)
	running := h.batch(&plan.ID, 100)
	waiting := h.batch(&plan.ID, 100)

	_, err := h.production.StartBatch(h.ctx, done.ID)
	require.NoError(t, err)
	_, err = h.production.CompleteBatch(h.ctx, done.ID, CompleteBatchRequest{})
	require.NoError(t, err)
	_, err = h.production.StartBatch(h.ctx, running.ID)
	require.NoError(t, err)

	cancelled, err := h.production.CancelPlan(h.ctx, plan.ID, CancelRequest{Reason: "menu withdrawn"})
	require.NoError(t, err)
	assert.Equal(t, model.ProductionCancelled, cancelled.Status)
	assert.Contains(t, cancelled.Notes, "menu withdrawn")

	statuses := map[string]model.ProductionStatus{}
	for _, id := range []*model.ProductionBatch{done, running, waiting} {
		b, err := h.production.GetBatch(h.ctx, id.ID)
		require.NoError(t, err)
		statuses[b.BatchNumber] = b.Status
	}
	assert.Equal(t, model.ProductionCompleted, statuses[done.BatchNumber])
	assert.Equal(t, model.ProductionCancelled, statuses[running.BatchNumber])
	assert.Equal(t, model.ProductionCancelled, statuses[waiting.BatchNumber])
	assert.Contains(t, h.events.Types(), event.PlanCancelled)

	_, err = h.production.CreateBatch(h.ctx, CreateBatchRequest{
		PlanID:          ptr(plan.ID.String()),
		RecipeID:        done.RecipeID.String(),
		PlannedQuantity: 10,
	})
	var terminal *apperror.TerminalStateError
	require.True(t, errors.As(err, &terminal))
	assert.Equal(t, "ADD_BATCH", terminal.Attempted)

	_, err = h.production.CancelPlan(h.ctx, plan.ID, CancelRequest{})
	assert.True(t, errors.As(err, &terminal))
}

func TestBatchNumbersAreSequentialPerDay(t *testing.T) {
	h := newHarness(t)
	first := h.batch(nil, 10)
	second := h.batch(nil, 10)
	assert.Equal(t, "BATCH-20260302-0001", first.BatchNumber)
	assert.Equal(t, "BATCH-20260302-0002", second.BatchNumber)

	custom, err := h.production.CreateBatch(h.ctx, CreateBatchRequest{
		RecipeID:        first.RecipeID.String(),
		PlannedQuantity: 10,
		BatchNumber:     "KITCHEN-A-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "KITCHEN-A-7", custom.BatchNumber)

	batches, total, err := h.production.ListBatches(h.ctx, repository.ProductionFilter{Status: "PENDING", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, batches, 3)
}

func TestCreatePlanValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.production.CreatePlan(h.ctx, CreatePlanRequest{PlanDate: h.clock, TargetPortions: 0, MenuID: "x"})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid))

	end := h.clock
	start := end.Add(1)
	_, err = h.production.CreatePlan(h.ctx, CreatePlanRequest{
		PlanDate:         h.clock,
		TargetPortions:   10,
		MenuID:           "0b6f3c1e-8a53-4d7e-9c2b-6a0f1c2d3e4f",
		PlannedStartTime: &start,
		PlannedEndTime:   &end,
	})
	assert.True(t, errors.As(err, &invalid))
}
