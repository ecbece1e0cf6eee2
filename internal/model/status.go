package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"sppg/internal/apperror"
)

// statusMachine is implemented by every closed status enum of the workflow.
type statusMachine[S any] interface {
	~string
	IsTerminal() bool
	CanTransitionTo(next S) bool
}

// CheckTransition validates moving entity id from one status to another.
// Terminal sources yield a TerminalStateError, other illegal moves an InvalidTransitionError.
func CheckTransition[S statusMachine[S]](entity string, id uuid.UUID, from, to S) error {
	if from.IsTerminal() {
		return &apperror.TerminalStateError{
			Entity:    entity,
			ID:        id.String(),
			State:     string(from),
			Attempted: string(to),
		}
	}
	if !from.CanTransitionTo(to) {
		return &apperror.InvalidTransitionError{
			Entity: entity,
			ID:     id.String(),
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// ProductionStatus is shared by production plans and production batches.
type ProductionStatus string

const (
	ProductionPending    ProductionStatus = "PENDING"
	ProductionInProgress ProductionStatus = "IN_PROGRESS"
	ProductionCompleted  ProductionStatus = "COMPLETED"
	ProductionCancelled  ProductionStatus = "CANCELLED"
)

func (s ProductionStatus) IsTerminal() bool {
	switch s {
	case ProductionCompleted, ProductionCancelled:
		return true
	default:
		return false
	}
}

func (s ProductionStatus) CanTransitionTo(next ProductionStatus) bool {
	switch s {
	case ProductionPending:
		return next == ProductionInProgress || next == ProductionCancelled
	case ProductionInProgress:
		return next == ProductionCompleted || next == ProductionCancelled
	case ProductionCompleted, ProductionCancelled:
		return false
	default:
		return false
	}
}

type DistributionStatus string

const (
	DistributionPreparing DistributionStatus = "PREPARING"
	DistributionInTransit DistributionStatus = "IN_TRANSIT"
	DistributionCompleted DistributionStatus = "COMPLETED"
	DistributionCancelled DistributionStatus = "CANCELLED"
)

func (s DistributionStatus) Valid() bool {
	switch s {
	case DistributionPreparing, DistributionInTransit, DistributionCompleted, DistributionCancelled:
		return true
	default:
		return false
	}
}

func (s DistributionStatus) IsTerminal() bool {
	switch s {
	case DistributionCompleted, DistributionCancelled:
		return true
	default:
		return false
	}
}

func (s DistributionStatus) CanTransitionTo(next DistributionStatus) bool {
	switch s {
	case DistributionPreparing:
		return next == DistributionInTransit || next == DistributionCancelled
	case DistributionInTransit:
		return next == DistributionCompleted || next == DistributionCancelled
	case DistributionCompleted, DistributionCancelled:
		return false
	default:
		return false
	}
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryInTransit DeliveryStatus = "IN_TRANSIT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case DeliveryDelivered, DeliveryFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo allows FAILED from any non-terminal state.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryPending:
		return next == DeliveryInTransit || next == DeliveryFailed
	case DeliveryInTransit:
		return next == DeliveryDelivered || next == DeliveryFailed
	case DeliveryDelivered, DeliveryFailed:
		return false
	default:
		return false
	}
}

// QualityOutcome is the resolved status of a checkpoint or check.
type QualityOutcome string

const (
	QualityPass        QualityOutcome = "PASS"
	QualityFail        QualityOutcome = "FAIL"
	QualityConditional QualityOutcome = "CONDITIONAL"
	QualityGood        QualityOutcome = "GOOD"
	QualityFair        QualityOutcome = "FAIR"
)

func (o QualityOutcome) Valid() bool {
	switch o {
	case QualityPass, QualityFail, QualityConditional, QualityGood, QualityFair:
		return true
	default:
		return false
	}
}

// Acceptable reports whether the outcome lets a batch feed a distribution.
func (o QualityOutcome) Acceptable() bool {
	return o == QualityPass || o == QualityGood
}

// NeedsRework reports outcomes that usually trigger a follow-up rework checkpoint.
func (o QualityOutcome) NeedsRework() bool {
	return o == QualityFail || o == QualityFair
}

// the hooks below give every table a client-side uuid so sqlite and postgres behave alike

func (p *Permission) BeforeCreate(tx *gorm.DB) error { assignID(&p.ID); return nil }
func (r *Role) BeforeCreate(tx *gorm.DB) error { assignID(&r.ID); return nil }
func (u *UserRole) BeforeCreate(tx *gorm.DB) error { assignID(&u.ID); return nil }
func (u *User) BeforeCreate(tx *gorm.DB) error { assignID(&u.ID); return nil }
func (p *ProductionPlan) BeforeCreate(tx *gorm.DB) error { assignID(&p.ID); return nil }
func (b *ProductionBatch) BeforeCreate(tx *gorm.DB) error { assignID(&b.ID); return nil }
func (c *QualityCheckpoint) BeforeCreate(tx *gorm.DB) error { assignID(&c.ID); return nil }
func (c *QualityCheck) BeforeCreate(tx *gorm.DB) error { assignID(&c.ID); return nil }
func (d *Distribution) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (d *DistributionSchool) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (d *DistributionBatch) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (d *Delivery) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (d *Driver) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (v *Vehicle) BeforeCreate(tx *gorm.DB) error { assignID(&v.ID); return nil }
func (s *School) BeforeCreate(tx *gorm.DB) error { assignID(&s.ID); return nil }
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error { assignID(&a.ID); return nil }
