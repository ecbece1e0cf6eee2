package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sppg/internal/apperror"
	"sppg/internal/cache"
	"sppg/internal/event"
	"sppg/internal/model"
	"sppg/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type actorKey struct{}

// WithActor stores the authenticated user id on the request context for audit attribution.
func WithActor(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the user recorded by WithActor, or nil for system calls.
func ActorFrom(ctx context.Context) *uuid.UUID {
	if id, ok := ctx.Value(actorKey{}).(uuid.UUID); ok && id != uuid.Nil {
		return &id
	}
	return nil
}

// loadErr maps a repository lookup failure onto the error taxonomy.
func loadErr(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound(entity, id.String())
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}

// ParseID parses a path or body identifier.
func ParseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.Invalid(field, "must be a valid UUID")
	}
	return id, nil
}

// auditor writes AuditLog rows through the caller's transaction.
type auditor struct {
	repo repository.AuditRepository
}

func (a auditor) record(ctx context.Context, action, entityType string, entityID uuid.UUID, entityName string, details interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	entry := &model.AuditLog{
		UserID:     ActorFrom(ctx),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID.String(),
		EntityName: entityName,
		Details:    raw,
	}
	if err := a.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func transition(from, to interface{}) map[string]interface{} {
	return map[string]interface{}{"from": from, "to": to}
}

// notifier publishes committed workflow events; failures are logged and never surface to the caller.
type notifier struct {
	pub event.Publisher
	log *logrus.Logger
}

func (n notifier) emit(ctx context.Context, events ...event.Event) {
	if n.pub == nil {
		return
	}
	for _, evt := range events {
		if err := n.pub.Publish(ctx, evt); err != nil {
			n.log.WithError(err).WithFields(logrus.Fields{"type": evt.Type, "entity_id": evt.EntityID}).Warn("failed to publish workflow event")
		}
	}
}

// dirtyMarker flags drivers for the deferred statistics recomputation.
type dirtyMarker struct {
	queue cache.DriverStatsQueue
	log   *logrus.Logger
}

func (d dirtyMarker) mark(ctx context.Context, driverIDs ...*uuid.UUID) {
	if d.queue == nil {
		return
	}
	for _, id := range driverIDs {
		if id == nil {
			continue
		}
		if err := d.queue.MarkDirty(ctx, *id); err != nil {
			d.log.WithError(err).WithField("driver_id", id.String()).Warn("failed to queue driver stats recomputation")
		}
	}
}

// Deps bundles the collaborators shared by the workflow services.
type Deps struct {
	DB        *gorm.DB
	Tx        repository.TransactionManager
	Audit     repository.AuditRepository
	Publisher event.Publisher
	Queue     cache.DriverStatsQueue
	Log       *logrus.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) audits() auditor { return auditor{repo: d.Audit} }

func (d Deps) events() notifier { return notifier{pub: d.Publisher, log: d.logger()} }

func (d Deps) drivers() dirtyMarker { return dirtyMarker{queue: d.Queue, log: d.logger()} }

func (d Deps) logger() *logrus.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logrus.StandardLogger()
}

func ptr[T any](v T) *T { return &v }
