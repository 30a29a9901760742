package models

import "time"

// TripLogDraft 行车日志草稿：按行车票持久化的表单状态
// 时间字段以 12 小时制字符串保存（例如 "08:30 AM"），提交时在 API 边界转为 24 小时制
type TripLogDraft struct {
	TripTicketID int64  `json:"trip_ticket_id"`
	VehicleID    int64  `json:"vehicle_id"`
	Date         string `json:"date"` // YYYY-MM-DD

	// 四个时间节点
	OfficeDeparture      string `json:"office_departure,omitempty"`
	DestinationArrival   string `json:"destination_arrival,omitempty"`
	DestinationDeparture string `json:"destination_departure,omitempty"`
	OfficeArrival        string `json:"office_arrival,omitempty"`

	Destination string  `json:"destination,omitempty"`
	Purpose     string  `json:"purpose,omitempty"`
	DistanceKm  float64 `json:"distance_km"`

	// 油料字段：total 与 balance_end 永远由计算得出，不可手填
	FuelBalanceStart  float64 `json:"fuel_balance_start"`
	FuelIssuedOffice  float64 `json:"fuel_issued_office"`
	FuelPurchasedTrip float64 `json:"fuel_purchased_trip"`
	FuelTotal         float64 `json:"fuel_total"`
	FuelUsed          float64 `json:"fuel_used"`
	FuelBalanceEnd    float64 `json:"fuel_balance_end"`

	// 润滑油
	LubricantIssued float64 `json:"lubricant_issued"`
	LubricantUsed   float64 `json:"lubricant_used"`

	// 里程表 / 速度表读数：编辑里程表时速度表字段同步为相同值
	OdometerStart       float64 `json:"odometer_start"`
	OdometerEnd         float64 `json:"odometer_end"`
	SpeedometerStart    float64 `json:"speedometer_start"`
	SpeedometerEnd      float64 `json:"speedometer_end"`
	SpeedometerDistance float64 `json:"speedometer_distance"`

	Notes string `json:"notes,omitempty"`

	// 创建请求的幂等键：草稿生成后保持不变，直到提交成功
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
