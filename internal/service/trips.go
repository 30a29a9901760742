package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/dedup"
	"github.com/langchou/fleettrack/internal/models"
)

// TripService 行程数据查询
type TripService struct {
	logger  *zap.Logger
	backend Backend
}

// NewTripService 创建行程查询服务
func NewTripService(logger *zap.Logger, api Backend) *TripService {
	return &TripService{logger: logger, backend: api}
}

// History 行程历史，已按行车票去重并按时间倒序
func (s *TripService) History(ctx context.Context) ([]models.TripRecord, error) {
	records, err := s.backend.Trips(ctx)
	if err != nil {
		return nil, fmt.Errorf("load trips: %w", err)
	}

	unique := dedup.Deduplicate(records)
	if len(unique) != len(records) {
		s.logger.Debug("Trip records deduplicated",
			zap.Int("raw", len(records)),
			zap.Int("unique", len(unique)))
	}
	return unique, nil
}

// Active 当前进行中的行车票，没有时返回 backend.ErrNotFound
func (s *TripService) Active(ctx context.Context) (*models.TripTicket, error) {
	return s.backend.ActiveTrip(ctx)
}

// TripTicket 行车票详情
func (s *TripService) TripTicket(ctx context.Context, id int64) (*models.TripTicket, error) {
	return s.backend.TripTicket(ctx, id)
}

// Vehicles 当前司机名下的车辆
func (s *TripService) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	return s.backend.DriverVehicles(ctx)
}

// FuelRecords 油料台账
func (s *TripService) FuelRecords(ctx context.Context) ([]models.FuelRecord, error) {
	return s.backend.FuelRecords(ctx)
}
