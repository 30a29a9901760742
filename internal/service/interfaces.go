package service

import (
	"context"
	"errors"
	"strings"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/models"
)

// 服务层错误
var (
	// ErrTripInProgress 已有其他行程在追踪中
	ErrTripInProgress = errors.New("service: another trip is already being tracked")
	// ErrTripLogRequired 行程完成前必须先提交行车日志
	ErrTripLogRequired = errors.New("service: trip log must be submitted before completing the trip")
)

// ValidationError 提交校验失败，一次性列出所有缺失字段
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Backend 行程后端能力（由 backend.Client 实现）
type Backend interface {
	DriverVehicles(ctx context.Context) ([]models.Vehicle, error)
	FuelRecords(ctx context.Context) ([]models.FuelRecord, error)
	Trips(ctx context.Context) ([]models.TripRecord, error)
	ActiveTrip(ctx context.Context) (*models.TripTicket, error)
	TripTicket(ctx context.Context, id int64) (*models.TripTicket, error)
	StartTrip(ctx context.Context, id int64) error
	CompleteTrip(ctx context.Context, id int64) error
	UpdateLocation(ctx context.Context, ping backend.LocationPing) error
	CreateTripLog(ctx context.Context, payload backend.TripLogPayload, idempotencyKey string) (*backend.TripLog, error)
	UpdateTripLog(ctx context.Context, id int64, payload backend.TripLogPayload) (*backend.TripLog, error)
	UpdateFuelConsumption(ctx context.Context, vehicleID int64, fc backend.FuelConsumption) error
}

// Geocoder 逆地理编码能力（由 geocoder.Client 实现）
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*models.Address, error)
}

// LocalStore 本地键值存储能力（由 store.Store 实现）
type LocalStore interface {
	Get(key string, v interface{}) error
	Set(key string, v interface{}) error
	Delete(key string) error
}

// Broadcaster 实时推送能力（由 ws.Hub 实现）
type Broadcaster interface {
	BroadcastTrackingUpdate(v interface{})
}
