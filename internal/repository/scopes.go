package repository

import (
	"sppg/pkg/pagination"

	"gorm.io/gorm"
)

// paginate applies the clamped page window.
func paginate(page, limit int) func(*gorm.DB) *gorm.DB {
	p := pagination.Normalize(page, limit)
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(p.Offset).Limit(p.Limit)
	}
}
