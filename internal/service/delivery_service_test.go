package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routeFixture is a single-stop distribution with its pending delivery.
type routeFixture struct {
	driver   *model.Driver
	school   *model.School
	dist     *model.Distribution
	delivery *model.Delivery
}

func (h *harness) route(portions int) routeFixture {
	h.t.Helper()
	f := routeFixture{driver: h.driver("Eko"), school: h.school("SDN 11 Cikini")}
	f.dist = h.distributionFor(f.driver, []*model.ProductionBatch{h.gatedBatch(portions)}, allocation{f.school, portions})
	f.delivery = h.deliveryFor(f.dist, f.school)
	return f
}

func TestDeliveredIsFinal(t *testing.T) {
	h := newHarness(t)
	f := h.route(180)
	assert.Equal(t, f.driver.ID, *f.delivery.DriverID, "driver defaults from the distribution")

	_, err := h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	require.NoError(t, err)

	done, err := h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(180)})
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, done.Status)
	assert.Equal(t, 180, *done.PortionsDelivered)

	_, err = h.delivery.FailDelivery(h.ctx, f.delivery.ID, FailDeliveryRequest{Reason: "late complaint"})
	var terminal *apperror.TerminalStateError
	require.True(t, errors.As(err, &terminal))
	assert.Equal(t, "DELIVERED", terminal.State)

	stored, err := h.delivery.GetDelivery(h.ctx, f.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDelivered, stored.Status)
	assert.Equal(t, 180, *stored.PortionsDelivered)

	alloc, err := h.distRepo.FindAllocation(h.ctx, f.dist.ID, f.school.ID)
	require.NoError(t, err)
	require.NotNil(t, alloc.ActualPortions)
	assert.Equal(t, 180, *alloc.ActualPortions)
}

func TestCompleteDeliveryRejectsOverAllocation(t *testing.T) {
	h := newHarness(t)
	f := h.route(180)
	_, err := h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	require.NoError(t, err)

	_, err = h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(181)})
	var over *apperror.OverAllocationError
	require.True(t, errors.As(err, &over))
	assert.Equal(t, 181, over.Requested)
	assert.Equal(t, 180, over.Limit)

	_, err = h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{})
	var invalid *apperror.ValidationError
	assert.True(t, errors.As(err, &invalid), "portions are required")

	early := h.clock.Add(-24 * time.Hour)
	_, err = h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(100), ArrivalTime: &early})
	assert.True(t, errors.As(err, &invalid), "arrival before departure")

	stored, err := h.delivery.GetDelivery(h.ctx, f.delivery.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryInTransit, stored.Status)

	short, err := h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(170), Notes: "10 spilled"})
	require.NoError(t, err)
	assert.Equal(t, 170, *short.PortionsDelivered)
}

func TestPendingDeliveryCannotComplete(t *testing.T) {
	h := newHarness(t)
	f := h.route(50)

	_, err := h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(50)})
	var invalid *apperror.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid))
}

func TestFailDeliveryNeedsReason(t *testing.T) {
	h := newHarness(t)
	f := h.route(60)

	_, err := h.delivery.FailDelivery(h.ctx, f.delivery.ID, FailDeliveryRequest{Reason: "  "})
	var invalid *apperror.ValidationError
	require.True(t, errors.As(err, &invalid))

	failed, err := h.delivery.FailDelivery(h.ctx, f.delivery.ID, FailDeliveryRequest{Reason: "road closed"})
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, failed.Status)
	assert.Contains(t, failed.Notes, "road closed")
	assert.Contains(t, h.auditActions(f.delivery.ID), model.ActionFailDelivery)
	assert.Contains(t, h.events.Types(), event.DeliveryFailed)
}

func TestDepartMovesDistributionInTransit(t *testing.T) {
	h := newHarness(t)
	f := h.route(90)
	require.Equal(t, model.DistributionPreparing, f.dist.Status)

	departed, err := h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	require.NoError(t, err)
	require.NotNil(t, departed.DepartureTime)

	dist, err := h.distribution.GetDistribution(h.ctx, f.dist.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DistributionInTransit, dist.Status)
	require.NotNil(t, dist.DepartedAt)
	assert.True(t, dist.DepartedAt.Equal(*departed.DepartureTime))

	_, err = h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	var invalid *apperror.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid), "cannot depart twice")
}

func TestCreateDeliveryRules(t *testing.T) {
	h := newHarness(t)
	f := h.route(100)
	stranger := h.school("SDN 12")
	var invalid *apperror.ValidationError

	_, err := h.delivery.CreateDelivery(h.ctx, CreateDeliveryRequest{DistributionID: f.dist.ID.String(), SchoolID: stranger.ID.String()})
	assert.True(t, errors.As(err, &invalid), "school not allocated")

	_, err = h.delivery.CreateDelivery(h.ctx, CreateDeliveryRequest{DistributionID: f.dist.ID.String(), SchoolID: f.school.ID.String()})
	assert.True(t, errors.As(err, &invalid), "one delivery per school")

	_, err = h.delivery.CreateDelivery(h.ctx, CreateDeliveryRequest{DistributionID: uuid.NewString(), SchoolID: f.school.ID.String()})
	var notFound *apperror.NotFoundError
	assert.True(t, errors.As(err, &notFound))

	_, err = h.distribution.AdvanceDistribution(h.ctx, f.dist.ID, AdvanceDistributionRequest{Status: model.DistributionCancelled})
	require.NoError(t, err)
	_, err = h.delivery.CreateDelivery(h.ctx, CreateDeliveryRequest{DistributionID: f.dist.ID.String(), SchoolID: stranger.ID.String()})
	var terminal *apperror.TerminalStateError
	require.True(t, errors.As(err, &terminal))
	assert.Equal(t, "ADD_DELIVERY", terminal.Attempted)

	list, total, err := h.delivery.ListDeliveries(h.ctx, repository.DeliveryFilter{DistributionID: &f.dist.ID, Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, list, 1)
}

func TestCorrectingFailedDeliveryIsTerminal(t *testing.T) {
	h := newHarness(t)
	f := h.route(60)

	_, err := h.delivery.FailDelivery(h.ctx, f.delivery.ID, FailDeliveryRequest{Reason: "truck broke down"})
	require.NoError(t, err)

	_, err = h.delivery.CorrectDelivery(h.ctx, f.delivery.ID, CorrectDeliveryRequest{Status: model.DeliveryFailed, Reason: "again"})
	var terminal *apperror.TerminalStateError
	require.True(t, errors.As(err, &terminal))
	assert.Equal(t, string(model.DeliveryFailed), terminal.State)
	assert.Equal(t, string(model.DeliveryFailed), terminal.Attempted)

	var invalid *apperror.InvalidTransitionError
	assert.True(t, errors.As(err, &invalid), "terminal errors still read as invalid transitions")

	pending := h.route(40)
	_, err = h.delivery.CorrectDelivery(h.ctx, pending.delivery.ID, CorrectDeliveryRequest{Status: model.DeliveryFailed, Reason: "early"})
	require.True(t, errors.As(err, &invalid))
	assert.False(t, errors.As(err, &terminal), "a pending delivery is not terminal")
}

func TestCorrectionKeepsDriverStatsInStep(t *testing.T) {
	h := newHarness(t)
	f := h.route(180)

	_, err := h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	require.NoError(t, err)
	_, err = h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(180)})
	require.NoError(t, err)

	_, err = h.stats.RecomputePendingDriverStats(h.ctx)
	require.NoError(t, err)
	d, err := h.master.GetDriver(h.ctx, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalDeliveries)

	_, err = h.delivery.CorrectDelivery(h.ctx, f.delivery.ID, CorrectDeliveryRequest{Status: model.DeliveryInTransit, Reason: "typo"})
	var invalid *apperror.InvalidTransitionError
	require.True(t, errors.As(err, &invalid), "only DELIVERED -> FAILED is correctable")

	corrected, err := h.delivery.CorrectDelivery(h.ctx, f.delivery.ID, CorrectDeliveryRequest{Status: model.DeliveryFailed, Reason: "school reported no food"})
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryFailed, corrected.Status)
	assert.Nil(t, corrected.PortionsDelivered)
	assert.Contains(t, h.auditActions(f.delivery.ID), model.ActionCorrectDelivery)

	alloc, err := h.distRepo.FindAllocation(h.ctx, f.dist.ID, f.school.ID)
	require.NoError(t, err)
	assert.Nil(t, alloc.ActualPortions)

	result, err := h.stats.RecomputePendingDriverStats(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Totals[f.driver.ID.String()])

	d, err = h.master.GetDriver(h.ctx, f.driver.ID)
	require.NoError(t, err)
	live, err := repository.NewStatisticsRepository(h.db).CountDelivered(h.ctx, f.driver.ID)
	require.NoError(t, err)
	assert.EqualValues(t, live, d.TotalDeliveries)
	assert.Equal(t, 0, d.TotalDeliveries)
}

func TestUploadProof(t *testing.T) {
	h := newHarness(t)
	f := h.route(40)

	ref, err := h.delivery.UploadProof(h.ctx, f.delivery.ID, ProofUpload{
		FileName:    "handover.jpg",
		ContentType: "image/jpeg",
		Size:        5,
		Body:        strings.NewReader("photo"),
	})
	require.NoError(t, err)
	assert.Contains(t, ref, f.delivery.ID.String())
	assert.Equal(t, []string{ref}, h.proofs.uploads)

	_, err = h.delivery.DepartDelivery(h.ctx, f.delivery.ID, DepartDeliveryRequest{})
	require.NoError(t, err)
	done, err := h.delivery.CompleteDelivery(h.ctx, f.delivery.ID, CompleteDeliveryRequest{PortionsDelivered: ptr(40), ProofReference: ref})
	require.NoError(t, err)
	assert.Equal(t, ref, done.ProofReference)

	_, err = h.delivery.UploadProof(h.ctx, f.delivery.ID, ProofUpload{FileName: "late.jpg", Body: strings.NewReader("x")})
	var terminal *apperror.TerminalStateError
	assert.True(t, errors.As(err, &terminal))
}
