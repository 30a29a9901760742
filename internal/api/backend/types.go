package backend

// LocationPing 位置上报载荷
// 必须携带 trip_ticket_id：会话切换后迟到的回调靠它在发送端被丢弃
type LocationPing struct {
	TripTicketID int64    `json:"trip_ticket_id"`
	Lat          float64  `json:"lat"`
	Lng          float64  `json:"lng"`
	Accuracy     *float64 `json:"accuracy,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Heading      *float64 `json:"heading,omitempty"`
}

// TripLogPayload 行车日志提交载荷
// 时间字段一律为 24 小时制（"HH:MM"），由调用方在提交前完成转换
type TripLogPayload struct {
	TripTicketID int64  `json:"trip_ticket_id"`
	VehicleID    int64  `json:"vehicle_id"`
	Date         string `json:"date"`

	OfficeDeparture      string `json:"office_departure,omitempty"`
	DestinationArrival   string `json:"destination_arrival,omitempty"`
	DestinationDeparture string `json:"destination_departure,omitempty"`
	OfficeArrival        string `json:"office_arrival,omitempty"`

	Destination string  `json:"destination,omitempty"`
	Purpose     string  `json:"purpose,omitempty"`
	DistanceKm  float64 `json:"distance_km"`

	FuelBalanceStart  float64 `json:"fuel_balance_start"`
	FuelIssuedOffice  float64 `json:"fuel_issued_office"`
	FuelPurchasedTrip float64 `json:"fuel_purchased_trip"`
	FuelTotal         float64 `json:"fuel_total"`
	FuelUsed          float64 `json:"fuel_used"`
	FuelBalanceEnd    float64 `json:"fuel_balance_end"`

	LubricantIssued float64 `json:"lubricant_issued"`
	LubricantUsed   float64 `json:"lubricant_used"`

	OdometerStart       float64 `json:"odometer_start"`
	OdometerEnd         float64 `json:"odometer_end"`
	SpeedometerStart    float64 `json:"speedometer_start"`
	SpeedometerEnd      float64 `json:"speedometer_end"`
	SpeedometerDistance float64 `json:"speedometer_distance"`

	Notes string `json:"notes,omitempty"`
}

// TripLog 后端已落库的行车日志
type TripLog struct {
	ID           int64 `json:"id"`
	TripTicketID int64 `json:"trip_ticket_id"`
}

// FuelConsumption 油耗上报载荷
type FuelConsumption struct {
	LitersConsumed float64 `json:"liters_consumed"`
	TripTicketID   int64   `json:"trip_ticket_id"`
	Notes          string  `json:"notes,omitempty"`
}
