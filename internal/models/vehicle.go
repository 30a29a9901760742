package models

import "time"

// Vehicle 车辆信息（后端返回）
type Vehicle struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	PlateNumber      string  `json:"plate_number"`
	FuelLevel        float64 `json:"fuel_level"`          // 当前油量，升
	EfficiencyKmPerL float64 `json:"efficiency_km_per_l"` // 每升公里数，0 表示未配置
}

// FuelRecord 后端油料台账记录（只读展示）
type FuelRecord struct {
	ID           int64     `json:"id"`
	VehicleID    int64     `json:"vehicle_id"`
	TripTicketID *int64    `json:"trip_ticket_id,omitempty"`
	Liters       float64   `json:"liters"` // 正数为加油，负数为消耗
	Notes        string    `json:"notes,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}
