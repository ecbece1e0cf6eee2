package model

import (
	"time"

	"github.com/google/uuid"
)

// StatisticsResponse aggregates the kitchen's daily workflow counters
type StatisticsResponse struct {
	TotalPlans            int64            `json:"total_plans"`
	BatchesByStatus       map[string]int64 `json:"batches_by_status"`
	PortionsProduced      int64            `json:"portions_produced"`
	DistributionsByStatus map[string]int64 `json:"distributions_by_status"`
	DeliveriesByStatus    map[string]int64 `json:"deliveries_by_status"`
	PortionsDelivered     int64            `json:"portions_delivered"`
	TopDrivers            []DriverRanking  `json:"top_drivers"`
	TimeRangeStartDate    time.Time        `json:"time_range_start_date"`
	TimeRangeEndDate      time.Time        `json:"time_range_end_date"`
}

// DriverRanking represents a driver ranked by completed deliveries
type DriverRanking struct {
	DriverID        uuid.UUID `json:"driver_id"`
	DriverName      string    `json:"driver_name"`
	TotalDeliveries int       `json:"total_deliveries"`
}

// DriverDeliveryCount is one row of the delivered-count aggregate used by stats recomputation.
type DriverDeliveryCount struct {
	DriverID  uuid.UUID
	Delivered int64
}
