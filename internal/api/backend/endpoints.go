package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/langchou/fleettrack/internal/models"
)

// DriverVehicles 获取当前司机的车辆列表
func (c *Client) DriverVehicles(ctx context.Context) ([]models.Vehicle, error) {
	var vehicles []models.Vehicle
	if err := c.get(ctx, "/api/driver/vehicles", &vehicles); err != nil {
		return nil, fmt.Errorf("list driver vehicles: %w", err)
	}
	return vehicles, nil
}

// FuelRecords 获取油料台账
func (c *Client) FuelRecords(ctx context.Context) ([]models.FuelRecord, error) {
	var records []models.FuelRecord
	if err := c.get(ctx, "/api/fuel-records", &records); err != nil {
		return nil, fmt.Errorf("list fuel records: %w", err)
	}
	return records, nil
}

// Trips 获取行程记录列表（未去重的服务端原始列表）
func (c *Client) Trips(ctx context.Context) ([]models.TripRecord, error) {
	var trips []models.TripRecord
	if err := c.get(ctx, "/api/trips", &trips); err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}

// ActiveTrip 获取当前进行中的行车票
// 没有进行中的行程时返回 ErrNotFound
func (c *Client) ActiveTrip(ctx context.Context) (*models.TripTicket, error) {
	var ticket models.TripTicket
	if err := c.get(ctx, "/api/trips/active", &ticket); err != nil {
		return nil, fmt.Errorf("get active trip: %w", err)
	}
	return &ticket, nil
}

// TripTicket 获取行车票详情
func (c *Client) TripTicket(ctx context.Context, id int64) (*models.TripTicket, error) {
	var ticket models.TripTicket
	if err := c.get(ctx, fmt.Sprintf("/api/trip-tickets/%d", id), &ticket); err != nil {
		return nil, fmt.Errorf("get trip ticket %d: %w", id, err)
	}
	return &ticket, nil
}

// StartTrip 标记行车票开始执行
func (c *Client) StartTrip(ctx context.Context, id int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/trip-tickets/%d/start", id), nil, nil)
	if err != nil {
		return fmt.Errorf("start trip %d: %w", id, err)
	}
	if err := decode(resp, nil); err != nil {
		return fmt.Errorf("start trip %d: %w", id, err)
	}
	return nil
}

// CompleteTrip 标记行车票完成
func (c *Client) CompleteTrip(ctx context.Context, id int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/trip-tickets/%d/complete", id), nil, nil)
	if err != nil {
		return fmt.Errorf("complete trip %d: %w", id, err)
	}
	if err := decode(resp, nil); err != nil {
		return fmt.Errorf("complete trip %d: %w", id, err)
	}
	return nil
}

// UpdateLocation 上报一次定位
func (c *Client) UpdateLocation(ctx context.Context, ping LocationPing) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/trips/location", ping, nil)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if err := decode(resp, nil); err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	return nil
}

// CreateTripLog 创建行车日志
// 带幂等键重试安全；该票已有日志时返回 *ConflictError，调用方转为按 id 更新
func (c *Client) CreateTripLog(ctx context.Context, payload TripLogPayload, idempotencyKey string) (*TripLog, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/trip-logs", payload, headers)
	if err != nil {
		return nil, fmt.Errorf("create trip log: %w", err)
	}

	var log TripLog
	if err := decodeData(resp, &log); err != nil {
		// ConflictError 原样向上传递，调用方依赖它拿到既有 id
		if _, ok := AsConflict(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("create trip log: %w", err)
	}
	return &log, nil
}

// UpdateTripLog 按 id 更新行车日志
func (c *Client) UpdateTripLog(ctx context.Context, id int64, payload TripLogPayload) (*TripLog, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/api/trip-logs/%d", id), payload, nil)
	if err != nil {
		return nil, fmt.Errorf("update trip log %d: %w", id, err)
	}

	var log TripLog
	if err := decodeData(resp, &log); err != nil {
		return nil, fmt.Errorf("update trip log %d: %w", id, err)
	}
	return &log, nil
}

// UpdateFuelConsumption 上报车辆油耗
func (c *Client) UpdateFuelConsumption(ctx context.Context, vehicleID int64, fc FuelConsumption) error {
	resp, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/vehicles/%d/fuel-consumption", vehicleID), fc, nil)
	if err != nil {
		return fmt.Errorf("update fuel consumption for vehicle %d: %w", vehicleID, err)
	}
	if err := decode(resp, nil); err != nil {
		return fmt.Errorf("update fuel consumption for vehicle %d: %w", vehicleID, err)
	}
	return nil
}
