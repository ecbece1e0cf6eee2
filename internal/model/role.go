package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Role bundles permission names. The names are stored denormalized on the row and
// reconciled against the Permission catalog on every write and every check.
type Role struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string                      `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description  string                      `gorm:"type:text" json:"description"`
	Color        string                      `gorm:"type:varchar(20)" json:"color"`
	Priority     int                         `gorm:"not null;default:0" json:"priority"` // higher = more authority
	IsSystemRole bool                        `gorm:"not null" json:"is_system_role"`     // Prevent deletion of built-in roles
	IsActive     bool                        `gorm:"not null" json:"is_active"`
	Permissions  datatypes.JSONSlice[string] `gorm:"not null" json:"permissions"`
	Metadata     datatypes.JSONMap           `json:"metadata"` // dashboardRoute, features, restrictions
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

const MetadataDashboardRoute = "dashboardRoute"

// DashboardRoute returns the landing route stored in the role metadata, if any.
func (r Role) DashboardRoute() string {
	if r.Metadata == nil {
		return ""
	}
	route, _ := r.Metadata[MetadataDashboardRoute].(string)
	return route
}

// Permission is a single `module.action` capability. Permissions are deactivated, never deleted.
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // e.g. "menus.approve"
	DisplayName string    `gorm:"type:varchar(255);not null" json:"display_name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"type:varchar(50);not null;index" json:"category"`
	Module      string    `gorm:"type:varchar(50);not null;index" json:"module"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserRole assigns a role to a user; unique per (user, role).
type UserRole struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_user_role" json:"user_id"`
	RoleID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_user_roles_user_role;index" json:"role_id"`
	Role       Role       `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE;" json:"role"`
	AssignedBy *uuid.UUID `gorm:"type:uuid" json:"assigned_by"`
	CreatedAt  time.Time  `json:"created_at"`
}
