package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionCreateRole       = "CREATE_ROLE"
	ActionUpdateRole       = "UPDATE_ROLE"
	ActionDeleteRole       = "DELETE_ROLE"
	ActionAssignRoles      = "ASSIGN_ROLES"
	ActionCreatePermission = "CREATE_PERMISSION"
	ActionUpdatePermission = "UPDATE_PERMISSION"

	// Production workflow actions
	ActionCreatePlan     = "CREATE_PRODUCTION_PLAN"
	ActionCancelPlan     = "CANCEL_PRODUCTION_PLAN"
	ActionCompletePlan   = "COMPLETE_PRODUCTION_PLAN"
	ActionCreateBatch    = "CREATE_PRODUCTION_BATCH"
	ActionStartBatch     = "START_PRODUCTION_BATCH"
	ActionCompleteBatch  = "COMPLETE_PRODUCTION_BATCH"
	ActionCancelBatch    = "CANCEL_PRODUCTION_BATCH"
	ActionRecordQuality  = "RECORD_QUALITY_CHECKPOINT"
	ActionRecordCheck    = "RECORD_QUALITY_CHECK"
	ActionVarianceLogged = "PRODUCTION_VARIANCE"

	// Distribution workflow actions
	ActionCreateDistribution  = "CREATE_DISTRIBUTION"
	ActionAdvanceDistribution = "ADVANCE_DISTRIBUTION"
	ActionCreateDelivery      = "CREATE_DELIVERY"
	ActionDepartDelivery      = "DEPART_DELIVERY"
	ActionCompleteDelivery    = "COMPLETE_DELIVERY"
	ActionFailDelivery        = "FAIL_DELIVERY"
	ActionCorrectDelivery     = "CORRECT_DELIVERY"
)

const (
	EntityRole         = "role"
	EntityPermission   = "permission"
	EntityUser         = "user"
	EntityPlan         = "production_plan"
	EntityBatch        = "production_batch"
	EntityCheckpoint   = "quality_checkpoint"
	EntityCheck        = "quality_check"
	EntityDistribution = "distribution"
	EntityDelivery     = "delivery"
	EntityDriver       = "driver"
	EntityVehicle      = "vehicle"
	EntitySchool       = "school"
)

// AuditLog tracks Who, What, and When for critical workflow changes
type AuditLog struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"` // nil for system jobs
	User       *User          `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string         `gorm:"type:varchar(50);index" json:"entity_type"`
	EntityID   string         `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string         `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    datatypes.JSON `json:"details"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
}
