package models

import "time"

// TripTicket 行车票：已批准、可排班的出车任务
type TripTicket struct {
	ID          int64  `json:"id"`
	VehicleID   int64  `json:"vehicle_id"`
	Date        string `json:"date"` // YYYY-MM-DD
	Destination string `json:"destination"`
	Purpose     string `json:"purpose"`
	Status      string `json:"status"`
	TripLogID   *int64 `json:"trip_log_id,omitempty"` // 已提交行车日志的 id，nil 表示未提交
}

// TripRecord 服务端已确认的行程记录
// 由于后端创建接口的重试路径不幂等，同一 trip_ticket_id 可能出现多条记录
type TripRecord struct {
	ID           int64     `json:"id"`
	TripTicketID *int64    `json:"trip_ticket_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	Date         string    `json:"date"`
	Destination  string    `json:"destination"`
	DistanceKm   float64   `json:"distance_km"`
	FuelUsed     float64   `json:"fuel_used"` // 升
}

// ActiveTripMarker 后台任务持久化的"行程进行中"标记
// 进程恢复时用于和内存状态做一致性校验
type ActiveTripMarker struct {
	TripID    int64     `json:"trip_id"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
