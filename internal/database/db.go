package database

import (
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"sppg/internal/model"
)

// NewConnection initializes the process-wide connection pool using GORM
func NewConnection(dsn string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		log.WithError(err).Warn("failed to auto-migrate models")
	}

	return db, nil
}

// Migrate auto-migrates every workflow model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Permission{},
		&model.Role{},
		&model.User{},
		&model.UserRole{},
		&model.ProductionPlan{},
		&model.ProductionBatch{},
		&model.QualityCheckpoint{},
		&model.QualityCheck{},
		&model.School{},
		&model.Driver{},
		&model.Vehicle{},
		&model.Distribution{},
		&model.DistributionSchool{},
		&model.DistributionBatch{},
		&model.Delivery{},
		&model.AuditLog{},
	)
}
