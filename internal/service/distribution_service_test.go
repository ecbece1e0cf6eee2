package service

import (
	"bytes"
	"errors"
	"testing"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistributionRequiresPassedGate(t *testing.T) {
	h := newHarness(t)
	driver := h.driver("Agus")
	school := h.school("SDN 01 Menteng")
	b := h.completedBatch(300)

	_, err := h.distribution.CreateDistribution(h.ctx, h.distributionRequest(driver, []*model.ProductionBatch{b}, allocation{school, 300}))
	var gateErr *apperror.QualityGateError
	require.True(t, errors.As(err, &gateErr), "no checkpoint yet")
	assert.Equal(t, GateUnresolved, gateErr.Status)

	h.checkpoint(b.ID, model.CheckpointFinal, model.QualityFail)
	_, err = h.distribution.CreateDistribution(h.ctx, h.distributionRequest(driver, []*model.ProductionBatch{b}, allocation{school, 300}))
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, "FAIL", gateErr.Status)

	h.checkpoint(b.ID, model.CheckpointRework, model.QualityPass)
	dist := h.distributionFor(driver, []*model.ProductionBatch{b}, allocation{school, 300})
	assert.Equal(t, model.DistributionPreparing, dist.Status)
	assert.Equal(t, 300, dist.TotalPortions)
	require.Len(t, dist.Schools, 1)
	require.Len(t, dist.Batches, 1)
	assert.Contains(t, h.events.Types(), event.DistributionCreated)
}

func TestDistributionRejectsUnfinishedBatches(t *testing.T) {
	h := newHarness(t)
	school := h.school("SDN 02")
	pending := h.batch(nil, 100)

	_, err := h.distribution.CreateDistribution(h.ctx, h.distributionRequest(nil, []*model.ProductionBatch{pending}, allocation{school, 100}))
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid))
}

func TestDistributionAllocationLimits(t *testing.T) {
	h := newHarness(t)
	a, b := h.school("SDN 03"), h.school("SDN 04")
	batch := h.gatedBatch(400)
	var over *apperror.OverAllocationError

	req := h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{a, 250}, allocation{b, 200})
	_, err := h.distribution.CreateDistribution(h.ctx, req)
	require.True(t, errors.As(err, &over), "450 allocated from 400 produced")
	assert.Equal(t, 450, over.Requested)
	assert.Equal(t, 400, over.Limit)

	req = h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{a, 200}, allocation{b, 100})
	req.TotalPortions = ptr(250)
	_, err = h.distribution.CreateDistribution(h.ctx, req)
	require.True(t, errors.As(err, &over), "allocations exceed the declared total")
	assert.Equal(t, 300, over.Requested)
	assert.Equal(t, 250, over.Limit)

	req = h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{a, 200}, allocation{a, 100})
	_, err = h.distribution.CreateDistribution(h.ctx, req)
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid), "same school twice")

	req = h.distributionRequest(nil, []*model.ProductionBatch{batch, batch}, allocation{a, 100})
	_, err = h.distribution.CreateDistribution(h.ctx, req)
	assert.True(t, errors.As(err, &invalid), "same batch twice")

	req = h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{a, 200}, allocation{b, 100})
	req.TotalPortions = ptr(380)
	dist, err := h.distribution.CreateDistribution(h.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 380, dist.TotalPortions)
}

func TestBatchFeedsOneLiveDistribution(t *testing.T) {
	h := newHarness(t)
	school := h.school("SDN 05")
	batch := h.gatedBatch(200)

	first := h.distributionFor(nil, []*model.ProductionBatch{batch}, allocation{school, 200})

	_, err := h.distribution.CreateDistribution(h.ctx, h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{school, 100}))
	var invalid *apperror.ValidationError
	require.True(t, errors.As(err, &invalid))

	_, err = h.distribution.AdvanceDistribution(h.ctx, first.ID, AdvanceDistributionRequest{Status: model.DistributionCancelled})
	require.NoError(t, err)

	_, err = h.distribution.CreateDistribution(h.ctx, h.distributionRequest(nil, []*model.ProductionBatch{batch}, allocation{school, 100}))
	assert.NoError(t, err, "a cancelled distribution releases its batches")
}

func TestAdvanceDistribution(t *testing.T) {
	h := newHarness(t)
	driver := h.driver("Budi")
	school := h.school("SDN 06")
	dist := h.distributionFor(driver, []*model.ProductionBatch{h.gatedBatch(100)}, allocation{school, 100})

	_, err := h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionCompleted})
	var invalid *apperror.InvalidTransitionError
	require.True(t, errors.As(err, &invalid), "PREPARING cannot skip IN_TRANSIT")

	_, err = h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: "LOST"})
	var validation *apperror.ValidationError
	require.True(t, errors.As(err, &validation))

	d := h.deliveryFor(dist, school)

	moving, err := h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionInTransit})
	require.NoError(t, err)
	assert.NotNil(t, moving.DepartedAt)

	_, err = h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionCompleted})
	require.True(t, errors.As(err, &invalid), "open deliveries block completion")
	assert.NotEmpty(t, invalid.Reason)

	_, err = h.delivery.DepartDelivery(h.ctx, d.ID, DepartDeliveryRequest{})
	require.NoError(t, err)
	_, err = h.delivery.CompleteDelivery(h.ctx, d.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(100)})
	require.NoError(t, err)

	done, err := h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionCompleted, Notes: "all served"})
	require.NoError(t, err)
	assert.Equal(t, model.DistributionCompleted, done.Status)
	require.NotNil(t, done.ActualDuration)
	assert.Positive(t, *done.ActualDuration)

	_, err = h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionCancelled})
	var terminal *apperror.TerminalStateError
	assert.True(t, errors.As(err, &terminal))

	list, total, err := h.distribution.ListDistributions(h.ctx, repository.DistributionFilter{Status: "COMPLETED", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)
}

func TestCancelDistributionFailsOpenDeliveries(t *testing.T) {
	h := newHarness(t)
	driver := h.driver("Citra")
	a, b := h.school("SDN 07"), h.school("SDN 08")
	dist := h.distributionFor(driver, []*model.ProductionBatch{h.gatedBatch(300)}, allocation{a, 150}, allocation{b, 150})
	first := h.deliveryFor(dist, a)
	second := h.deliveryFor(dist, b)

	_, err := h.delivery.DepartDelivery(h.ctx, first.ID, DepartDeliveryRequest{})
	require.NoError(t, err)
	_, err = h.delivery.CompleteDelivery(h.ctx, first.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(150)})
	require.NoError(t, err)

	cancelled, err := h.distribution.AdvanceDistribution(h.ctx, dist.ID, AdvanceDistributionRequest{Status: model.DistributionCancelled, Notes: "flood"})
	require.NoError(t, err)
	assert.Equal(t, model.DistributionCancelled, cancelled.Status)

	kept, err := h.delivery.GetDelivery(h.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, kept.Status)

	failed, err := h.delivery.GetDelivery(h.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, failed.Status)
	assert.Contains(t, failed.Notes, distributionCancelledNote)

	pending, err := h.queue.Drain(h.ctx, 10)
	require.NoError(t, err)
	assert.Contains(t, pending, driver.ID)
}

func TestRenderManifest(t *testing.T) {
	h := newHarness(t)
	driver := h.driver("Dedi")
	a, b := h.school("SDN 09"), h.school("SDN 10")
	dist := h.distributionFor(driver, []*model.ProductionBatch{h.gatedBatch(200)}, allocation{a, 120}, allocation{b, 80})
	h.deliveryFor(dist, a)

	pdf, err := h.distribution.RenderManifest(h.ctx, dist.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}
