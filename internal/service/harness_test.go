package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"sppg/internal/auth"
	"sppg/internal/cache"
	"sppg/internal/event"
	"sppg/internal/logger"
	"sppg/internal/model"
	"sppg/internal/repository"
	"sppg/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// harness wires every service against one in-memory database.
type harness struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	events *event.Recorder
	queue  cache.DriverStatsQueue
	proofs *fakeProofStore
	clock  time.Time
	mu     sync.Mutex
	deps   Deps

	users          repository.UserRepository
	roles          repository.RoleRepository
	audit          repository.AuditRepository
	productionRepo repository.ProductionRepository
	qualityRepo    repository.QualityRepository
	distRepo       repository.DistributionRepository
	deliveryRepo   repository.DeliveryRepository
	driverRepo     repository.DriverRepository

	authz        AuthorizationService
	roleSvc      RoleService
	userSvc      UserService
	production   ProductionService
	quality      QualityService
	distribution DistributionService
	delivery     DeliveryService
	stats        StatisticsService
	master       MasterDataService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		db:     db,
		events: &event.Recorder{},
		queue:  cache.NewMemoryDriverStatsQueue(),
		proofs: &fakeProofStore{},
		clock:  time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC),
	}

	h.users = repository.NewUserRepository(db)
	h.roles = repository.NewRoleRepository(db)
	h.audit = repository.NewAuditRepository(db)
	h.productionRepo = repository.NewProductionRepository(db)
	h.qualityRepo = repository.NewQualityRepository(db)
	h.distRepo = repository.NewDistributionRepository(db)
	h.deliveryRepo = repository.NewDeliveryRepository(db)
	h.driverRepo = repository.NewDriverRepository(db)
	vehicles := repository.NewVehicleRepository(db)
	schools := repository.NewSchoolRepository(db)

	deps := Deps{
		DB:        db,
		Tx:        repository.NewTransactionManager(db),
		Audit:     h.audit,
		Publisher: h.events,
		Queue:     h.queue,
		Log:       logger.Discard(),
		Now:       h.tick,
	}
	h.deps = deps

	h.authz = NewAuthorizationService(h.users, h.roles, time.Minute)
	h.roleSvc = NewRoleService(deps, h.roles, h.authz)
	h.userSvc = NewUserService(deps, h.users, h.roles, h.authz, auth.NewIssuer("test-secret", time.Hour))
	h.production = NewProductionService(deps, h.productionRepo)
	h.quality = NewQualityService(deps, h.qualityRepo, h.productionRepo)
	h.distribution = NewDistributionService(deps, h.distRepo, h.deliveryRepo, h.productionRepo, h.quality, schools, h.driverRepo, vehicles)
	h.delivery = NewDeliveryService(deps, h.deliveryRepo, h.distRepo, h.driverRepo, vehicles, h.proofs)
	h.stats = NewStatisticsService(deps, repository.NewStatisticsRepository(db), h.driverRepo)
	h.master = NewMasterDataService(h.driverRepo, vehicles, schools)
	return h
}

// tick advances the clock one minute per call so timelines are strictly ordered.
func (h *harness) tick() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(time.Minute)
	return h.clock
}

func (h *harness) seedCatalog() {
	h.t.Helper()
	require.NoError(h.t, h.roleSvc.SeedDefaults(h.ctx))
}

func (h *harness) userWithRoles(roleNames ...string) uuid.UUID {
	h.t.Helper()
	user := &model.User{
		Username: "user-" + uuid.NewString()[:8],
		Email:    uuid.NewString()[:8] + "@sppg.test",
		Password: "x",
		IsActive: true,
	}
	require.NoError(h.t, h.users.Create(h.ctx, user))

	ids := make([]uuid.UUID, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := h.roles.FindByName(h.ctx, name)
		require.NoError(h.t, err)
		ids = append(ids, role.ID)
	}
	require.NoError(h.t, h.users.ReplaceRoles(h.ctx, user.ID, ids, nil))
	return user.ID
}

func (h *harness) plan(target int) *model.ProductionPlan {
	h.t.Helper()
	plan, err := h.production.CreatePlan(h.ctx, CreatePlanRequest{
		PlanDate:       h.clock,
		TargetPortions: target,
		MenuID:         uuid.NewString(),
	})
	require.NoError(h.t, err)
	return plan
}

func (h *harness) batch(planID *uuid.UUID, planned int) *model.ProductionBatch {
	h.t.Helper()
	req := CreateBatchRequest{RecipeID: uuid.NewString(), PlannedQuantity: planned}
	if planID != nil {
		raw := planID.String()
		req.PlanID = &raw
	}
	b, err := h.production.CreateBatch(h.ctx, req)
	require.NoError(h.t, err)
	return b
}

// completedBatch runs an ad-hoc batch through production with the given output.
func (h *harness) completedBatch(actual int) *model.ProductionBatch {
	h.t.Helper()
	b := h.batch(nil, actual)
	_, err := h.production.StartBatch(h.ctx, b.ID)
	require.NoError(h.t, err)
	b, err = h.production.CompleteBatch(h.ctx, b.ID, CompleteBatchRequest{ActualQuantity: &actual})
	require.NoError(h.t, err)
	return b
}

func (h *harness) checkpoint(batchID uuid.UUID, cpType string, status model.QualityOutcome) *model.QualityCheckpoint {
	h.t.Helper()
	raw := batchID.String()
	cp, err := h.quality.RecordCheckpoint(h.ctx, RecordCheckpointRequest{
		BatchID:        &raw,
		CheckpointType: cpType,
		Status:         status,
	})
	require.NoError(h.t, err)
	return cp
}

// gatedBatch is a completed batch whose final checkpoint passed.
func (h *harness) gatedBatch(actual int) *model.ProductionBatch {
	h.t.Helper()
	b := h.completedBatch(actual)
	h.checkpoint(b.ID, model.CheckpointFinal, model.QualityPass)
	return b
}

func (h *harness) school(name string) *model.School {
	h.t.Helper()
	sc, err := h.master.CreateSchool(h.ctx, SchoolRequest{Code: uuid.NewString()[:10], Name: name, Address: "Jl. Merdeka 1"})
	require.NoError(h.t, err)
	return sc
}

func (h *harness) driver(name string) *model.Driver {
	h.t.Helper()
	d, err := h.master.CreateDriver(h.ctx, DriverRequest{EmployeeID: uuid.NewString()[:10], Name: name})
	require.NoError(h.t, err)
	return d
}

func (h *harness) vehicle() *model.Vehicle {
	h.t.Helper()
	v, err := h.master.CreateVehicle(h.ctx, VehicleRequest{PlateNumber: "B " + uuid.NewString()[:4], Capacity: 1000})
	require.NoError(h.t, err)
	return v
}

type allocation struct {
	school   *model.School
	portions int
}

func (h *harness) distributionFor(driver *model.Driver, batches []*model.ProductionBatch, allocs ...allocation) *model.Distribution {
	h.t.Helper()
	dist, err := h.distribution.CreateDistribution(h.ctx, h.distributionRequest(driver, batches, allocs...))
	require.NoError(h.t, err)
	return dist
}

func (h *harness) distributionRequest(driver *model.Driver, batches []*model.ProductionBatch, allocs ...allocation) CreateDistributionRequest {
	req := CreateDistributionRequest{DistributionDate: h.clock}
	for _, b := range batches {
		req.BatchIDs = append(req.BatchIDs, b.ID.String())
	}
	for i, a := range allocs {
		req.Schools = append(req.Schools, SchoolAllocationRequest{
			SchoolID:        a.school.ID.String(),
			PlannedPortions: a.portions,
			RouteOrder:      i + 1,
		})
	}
	if driver != nil {
		raw := driver.ID.String()
		req.DriverID = &raw
	}
	return req
}

func (h *harness) deliveryFor(dist *model.Distribution, school *model.School) *model.Delivery {
	h.t.Helper()
	d, err := h.delivery.CreateDelivery(h.ctx, CreateDeliveryRequest{
		DistributionID: dist.ID.String(),
		SchoolID:       school.ID.String(),
	})
	require.NoError(h.t, err)
	return d
}

func (h *harness) auditActions(entityID uuid.UUID) []string {
	h.t.Helper()
	logs, _, err := h.audit.List(h.ctx, repository.AuditFilter{EntityID: entityID.String(), Page: 1, Limit: 100})
	require.NoError(h.t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

type fakeProofStore struct {
	uploads []string
}

func (f *fakeProofStore) Upload(_ context.Context, deliveryID uuid.UUID, fileName, _ string, r io.Reader, _ int64) (string, error) {
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	ref := "delivery-proofs/deliveries/" + deliveryID.String() + "/" + fileName
	f.uploads = append(f.uploads, ref)
	return ref, nil
}
