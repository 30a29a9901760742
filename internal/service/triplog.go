package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/config"
	"github.com/langchou/fleettrack/internal/fuel"
	"github.com/langchou/fleettrack/internal/models"
	"github.com/langchou/fleettrack/internal/store"
	"github.com/langchou/fleettrack/internal/timefmt"
)

// DraftPatch 草稿增量更新，nil 字段表示不修改
type DraftPatch struct {
	Date                 *string  `json:"date,omitempty"`
	OfficeDeparture      *string  `json:"office_departure,omitempty"`
	DestinationArrival   *string  `json:"destination_arrival,omitempty"`
	DestinationDeparture *string  `json:"destination_departure,omitempty"`
	OfficeArrival        *string  `json:"office_arrival,omitempty"`
	Destination          *string  `json:"destination,omitempty"`
	Purpose              *string  `json:"purpose,omitempty"`
	DistanceKm           *float64 `json:"distance_km,omitempty"`
	FuelIssuedOffice     *float64 `json:"fuel_issued_office,omitempty"`
	FuelPurchasedTrip    *float64 `json:"fuel_purchased_trip,omitempty"`
	FuelUsed             *float64 `json:"fuel_used,omitempty"`
	LubricantIssued      *float64 `json:"lubricant_issued,omitempty"`
	LubricantUsed        *float64 `json:"lubricant_used,omitempty"`
	OdometerStart        *float64 `json:"odometer_start,omitempty"`
	OdometerEnd          *float64 `json:"odometer_end,omitempty"`
	Notes                *string  `json:"notes,omitempty"`
}

// TripLogService 行车日志服务：草稿自动保存、油料联动计算、幂等提交
type TripLogService struct {
	cfg     *config.Config
	logger  *zap.Logger
	backend Backend
	store   LocalStore

	mu         sync.Mutex
	drafts     map[int64]*models.TripLogDraft
	efficiency map[int64]float64 // 车辆油耗系数缓存，按行车票 id
	timers     map[int64]*time.Timer
}

// NewTripLogService 创建行车日志服务
func NewTripLogService(cfg *config.Config, logger *zap.Logger, api Backend, st LocalStore) *TripLogService {
	return &TripLogService{
		cfg:        cfg,
		logger:     logger,
		backend:    api,
		store:      st,
		drafts:     make(map[int64]*models.TripLogDraft),
		efficiency: make(map[int64]float64),
		timers:     make(map[int64]*time.Timer),
	}
}

// OpenDraft 打开（必要时新建）行车票对应的草稿
// 期初油量永远以车辆档案的实时油量为准，不信任持久化的旧值
func (s *TripLogService) OpenDraft(ctx context.Context, ticketID int64) (*models.TripLogDraft, error) {
	ticket, err := s.backend.TripTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load trip ticket %d: %w", ticketID, err)
	}

	var draft models.TripLogDraft
	err = s.store.Get(store.DraftKey(ticketID), &draft)
	if errors.Is(err, store.ErrNotFound) {
		draft = models.TripLogDraft{
			TripTicketID: ticket.ID,
			VehicleID:    ticket.VehicleID,
			Date:         ticket.Date,
			Destination:  ticket.Destination,
			Purpose:      ticket.Purpose,
		}
	} else if err != nil {
		return nil, fmt.Errorf("load draft for ticket %d: %w", ticketID, err)
	}

	if draft.IdempotencyKey == "" {
		draft.IdempotencyKey = uuid.NewString()
	}

	vehicles, err := s.backend.DriverVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: %w", err)
	}
	for _, v := range vehicles {
		if v.ID == ticket.VehicleID {
			draft.FuelBalanceStart = v.FuelLevel
			s.mu.Lock()
			s.efficiency[ticketID] = v.EfficiencyKmPerL
			s.mu.Unlock()
			break
		}
	}

	draft = fuel.Recompute(draft)
	draft.UpdatedAt = time.Now()

	if err := s.store.Set(store.DraftKey(ticketID), draft); err != nil {
		s.logger.Warn("Failed to persist trip log draft",
			zap.Int64("trip_ticket_id", ticketID),
			zap.Error(err))
	}

	s.mu.Lock()
	s.drafts[ticketID] = &draft
	s.mu.Unlock()

	out := draft
	return &out, nil
}

// UpdateDraft 应用一次增量编辑并延迟落盘
// 油料合计/结余在每次编辑后重算；编辑里程表时速度表字段同步，并按车辆油耗系数估算用油量
func (s *TripLogService) UpdateDraft(ticketID int64, patch DraftPatch) (*models.TripLogDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[ticketID]
	if !ok {
		var stored models.TripLogDraft
		if err := s.store.Get(store.DraftKey(ticketID), &stored); err != nil {
			return nil, fmt.Errorf("no open draft for ticket %d: %w", ticketID, err)
		}
		draft = &stored
		s.drafts[ticketID] = draft
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}

	applyString(&draft.Date, patch.Date)
	applyString(&draft.OfficeDeparture, patch.OfficeDeparture)
	applyString(&draft.DestinationArrival, patch.DestinationArrival)
	applyString(&draft.DestinationDeparture, patch.DestinationDeparture)
	applyString(&draft.OfficeArrival, patch.OfficeArrival)
	applyString(&draft.Destination, patch.Destination)
	applyString(&draft.Purpose, patch.Purpose)
	applyString(&draft.Notes, patch.Notes)
	applyFloat(&draft.DistanceKm, patch.DistanceKm)
	applyFloat(&draft.FuelIssuedOffice, patch.FuelIssuedOffice)
	applyFloat(&draft.FuelPurchasedTrip, patch.FuelPurchasedTrip)
	applyFloat(&draft.FuelUsed, patch.FuelUsed)
	applyFloat(&draft.LubricantIssued, patch.LubricantIssued)
	applyFloat(&draft.LubricantUsed, patch.LubricantUsed)

	if patch.OdometerStart != nil || patch.OdometerEnd != nil {
		applyFloat(&draft.OdometerStart, patch.OdometerStart)
		applyFloat(&draft.OdometerEnd, patch.OdometerEnd)
		*draft = fuel.SyncSpeedometer(*draft)

		// 两端读数都有且里程为正时才走估算，否则保留手填值
		if patch.FuelUsed == nil && draft.OdometerStart > 0 && draft.OdometerEnd > draft.OdometerStart {
			eff := s.efficiency[ticketID]
			if eff <= 0 {
				eff = s.cfg.FuelEfficiency
			}
			draft.FuelUsed = fuel.EstimateUsedLiters(draft.SpeedometerDistance, eff)
		}
	}

	*draft = fuel.Recompute(*draft)
	draft.UpdatedAt = time.Now()

	s.scheduleSaveLocked(ticketID)

	out := *draft
	return &out, nil
}

// scheduleSaveLocked 防抖落盘：连续编辑只在静默一个防抖周期后写一次
// 调用方必须持有 s.mu
func (s *TripLogService) scheduleSaveLocked(ticketID int64) {
	if t, ok := s.timers[ticketID]; ok {
		t.Stop()
	}
	s.timers[ticketID] = time.AfterFunc(s.cfg.AutosaveDebounce, func() {
		s.flushDraft(ticketID)
	})
}

// flushDraft 立即落盘当前草稿
func (s *TripLogService) flushDraft(ticketID int64) {
	s.mu.Lock()
	draft, ok := s.drafts[ticketID]
	if !ok {
		s.mu.Unlock()
		return
	}
	copyD := *draft
	s.mu.Unlock()

	if err := s.store.Set(store.DraftKey(ticketID), copyD); err != nil {
		s.logger.Warn("Failed to persist trip log draft",
			zap.Int64("trip_ticket_id", ticketID),
			zap.Error(err))
	}
}

// Submit 提交行车日志
// 校验一次性返回所有缺失字段；创建冲突（已有日志）时自动转为更新
// complete 为 true 时额外上报油耗并清除草稿
func (s *TripLogService) Submit(ctx context.Context, ticketID int64, complete bool) (*backend.TripLog, error) {
	s.mu.Lock()
	if t, ok := s.timers[ticketID]; ok {
		t.Stop()
		delete(s.timers, ticketID)
	}
	draft, ok := s.drafts[ticketID]
	if !ok {
		var stored models.TripLogDraft
		if err := s.store.Get(store.DraftKey(ticketID), &stored); err != nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("no draft for ticket %d: %w", ticketID, err)
		}
		draft = &stored
		s.drafts[ticketID] = draft
	}
	copyD := *draft
	s.mu.Unlock()

	s.flushDraft(ticketID)

	if missing := missingFields(copyD); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	payload, err := buildPayload(copyD)
	if err != nil {
		return nil, err
	}

	log, err := s.backend.CreateTripLog(ctx, payload, copyD.IdempotencyKey)
	if conflict, isConflict := backend.AsConflict(err); isConflict {
		s.logger.Info("Trip log already exists, switching to update",
			zap.Int64("trip_ticket_id", ticketID),
			zap.Int64("existing_id", conflict.ExistingID))
		log, err = s.backend.UpdateTripLog(ctx, conflict.ExistingID, payload)
	}
	if err != nil {
		return nil, fmt.Errorf("submit trip log for ticket %d: %w", ticketID, err)
	}

	if complete {
		fcErr := s.backend.UpdateFuelConsumption(ctx, copyD.VehicleID, backend.FuelConsumption{
			LitersConsumed: copyD.FuelUsed,
			TripTicketID:   ticketID,
			Notes:          copyD.Notes,
		})
		if fcErr != nil {
			s.logger.Warn("Failed to report fuel consumption",
				zap.Int64("vehicle_id", copyD.VehicleID),
				zap.Error(fcErr))
		}

		if err := s.store.Delete(store.DraftKey(ticketID)); err != nil {
			s.logger.Warn("Failed to delete trip log draft", zap.Error(err))
		}
		s.mu.Lock()
		delete(s.drafts, ticketID)
		delete(s.efficiency, ticketID)
		s.mu.Unlock()
	}

	s.logger.Info("Trip log submitted",
		zap.Int64("trip_ticket_id", ticketID),
		zap.Int64("trip_log_id", log.ID),
		zap.Bool("complete", complete))
	return log, nil
}

// missingFields 返回提交必填项中缺失的字段名
func missingFields(d models.TripLogDraft) []string {
	var missing []string
	if d.Date == "" {
		missing = append(missing, "date")
	}
	if d.OfficeDeparture == "" {
		missing = append(missing, "office_departure")
	}
	if d.DestinationArrival == "" {
		missing = append(missing, "destination_arrival")
	}
	if d.FuelUsed <= 0 {
		missing = append(missing, "fuel_used")
	}
	return missing
}

// buildPayload 组装提交载荷，时间字段在此统一转为 24 小时制
func buildPayload(d models.TripLogDraft) (backend.TripLogPayload, error) {
	p := backend.TripLogPayload{
		TripTicketID: d.TripTicketID,
		VehicleID:    d.VehicleID,
		Date:         d.Date,

		Destination: d.Destination,
		Purpose:     d.Purpose,
		DistanceKm:  d.DistanceKm,

		FuelBalanceStart:  d.FuelBalanceStart,
		FuelIssuedOffice:  d.FuelIssuedOffice,
		FuelPurchasedTrip: d.FuelPurchasedTrip,
		FuelTotal:         d.FuelTotal,
		FuelUsed:          d.FuelUsed,
		FuelBalanceEnd:    d.FuelBalanceEnd,

		LubricantIssued: d.LubricantIssued,
		LubricantUsed:   d.LubricantUsed,

		OdometerStart:       d.OdometerStart,
		OdometerEnd:         d.OdometerEnd,
		SpeedometerStart:    d.SpeedometerStart,
		SpeedometerEnd:      d.SpeedometerEnd,
		SpeedometerDistance: d.SpeedometerDistance,

		Notes: d.Notes,
	}

	times := []struct {
		name string
		src  string
		dst  *string
	}{
		{"office_departure", d.OfficeDeparture, &p.OfficeDeparture},
		{"destination_arrival", d.DestinationArrival, &p.DestinationArrival},
		{"destination_departure", d.DestinationDeparture, &p.DestinationDeparture},
		{"office_arrival", d.OfficeArrival, &p.OfficeArrival},
	}
	for _, t := range times {
		if t.src == "" {
			continue
		}
		v, err := timefmt.To24(t.src)
		if err != nil {
			return backend.TripLogPayload{}, fmt.Errorf("invalid %s %q: %w", t.name, t.src, err)
		}
		*t.dst = v
	}

	return p, nil
}
