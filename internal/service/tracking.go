// Package service 业务服务层：编排状态机、定位流、后端 API 与本地存储
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/api/backend"
	"github.com/langchou/fleettrack/internal/config"
	"github.com/langchou/fleettrack/internal/geo"
	"github.com/langchou/fleettrack/internal/location"
	"github.com/langchou/fleettrack/internal/models"
	"github.com/langchou/fleettrack/internal/state"
	"github.com/langchou/fleettrack/internal/store"
)

// TrackingService 行程追踪服务
// 会话生命周期：RequestStart -> searching -> active -> RequestStop/CompleteTrip -> stopped
type TrackingService struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  Backend
	geocoder Geocoder
	store    LocalStore
	provider location.Provider
	stream   *location.Stream
	hub      Broadcaster

	machine *state.Machine

	mu            sync.Mutex
	handle        *location.Handle
	consumeCancel context.CancelFunc
	geocodeCancel context.CancelFunc
	geocodeBusy   bool
	lastGeocodeAt time.Time
	bgStop        chan struct{}
	bgWarned      bool
	wg            sync.WaitGroup
}

// NewTrackingService 创建行程追踪服务
func NewTrackingService(cfg *config.Config, logger *zap.Logger, api Backend, geocoder Geocoder, st LocalStore, provider location.Provider, stream *location.Stream, hub Broadcaster) *TrackingService {
	s := &TrackingService{
		cfg:      cfg,
		logger:   logger,
		backend:  api,
		geocoder: geocoder,
		store:    st,
		provider: provider,
		stream:   stream,
		hub:      hub,
	}

	s.machine = state.NewMachine(func(tripID int64, from, to string) {
		logger.Info("Tracking state changed",
			zap.Int64("trip_id", tripID),
			zap.String("from", from),
			zap.String("to", to))
	})

	return s
}

// Status 当前会话快照
func (s *TrackingService) Status() *state.Session {
	return s.machine.Snapshot()
}

// RequestStart 开始追踪指定行程
// 同一行程重复调用直接返回；已有其他行程在追踪时返回 ErrTripInProgress
func (s *TrackingService) RequestStart(ctx context.Context, tripID int64) error {
	s.mu.Lock()
	cur := s.machine.Current()
	if cur == state.StateSearching || cur == state.StateActive {
		activeID := s.machine.Snapshot().TripID
		s.mu.Unlock()
		if activeID == tripID {
			s.logger.Info("Duplicate start request collapsed", zap.Int64("trip_id", tripID))
			return nil
		}
		return fmt.Errorf("%w: trip %d", ErrTripInProgress, activeID)
	}

	s.machine.Update(func(sess *state.Session) {
		sess.TripID = tripID
		sess.Route = nil
		sess.DistanceKm = 0
		sess.LastSample = nil
		sess.Address = ""
	})
	if err := s.machine.Trigger(state.EventSearch); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.broadcast()

	return s.beginTracking(ctx, tripID, true)
}

// beginTracking 搜星之后的公共路径：通知后端、拿首次定位、建立订阅
// callStart 为 false 时跳过后端 start 调用（恢复孤儿行程时后端早已是 in_progress）
func (s *TrackingService) beginTracking(ctx context.Context, tripID int64, callStart bool) error {
	if callStart {
		// 后端确认是追踪的前提，失败时不得进入 active
		if err := s.backend.StartTrip(ctx, tripID); err != nil {
			s.fail(tripID, err)
			return fmt.Errorf("start trip %d: %w", tripID, err)
		}
	}

	if !s.provider.HasPermission(location.PermissionForeground) {
		s.fail(tripID, location.ErrPermissionDenied)
		return location.ErrPermissionDenied
	}

	fixCtx, cancel := context.WithTimeout(ctx, s.cfg.FixTimeout)
	first, err := s.provider.CurrentPosition(fixCtx)
	cancel()
	if err != nil {
		s.fail(tripID, err)
		if errors.Is(err, location.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("%w: no fix within %s", location.ErrProviderUnavailable, s.cfg.FixTimeout)
	}

	handle, err := s.stream.Start(context.Background(), location.SamplingPolicy{
		MinInterval:  s.cfg.SampleMinInterval,
		MinDistanceM: s.cfg.SampleMinDistanceM,
		Accuracy:     location.AccuracyBest,
	})
	if err != nil {
		s.fail(tripID, err)
		return err
	}

	now := time.Now()
	s.machine.Update(func(sess *state.Session) {
		sess.StartedAt = now
		sess.Route = []models.Coordinate{first.Coordinate()}
		sess.DistanceKm = 0
		sess.LastSample = first
	})
	if err := s.machine.Trigger(state.EventFixAcquired); err != nil {
		s.stream.Stop(handle)
		return err
	}

	consumeCtx, consumeCancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.handle = handle
	s.consumeCancel = consumeCancel
	s.mu.Unlock()

	s.persistMarker(tripID, now)
	s.startBackgroundReporter()

	s.wg.Add(1)
	go s.consumeUpdates(consumeCtx, handle, tripID)

	s.broadcast()
	s.logger.Info("Tracking started",
		zap.Int64("trip_id", tripID),
		zap.Float64("lat", first.Lat),
		zap.Float64("lng", first.Lng))
	return nil
}

// fail 进入 error 状态（仅 searching/active 可转入）
func (s *TrackingService) fail(tripID int64, cause error) {
	if s.machine.Can(state.EventFail) {
		if err := s.machine.Trigger(state.EventFail); err != nil {
			s.logger.Error("Failed to enter error state", zap.Error(err))
		}
	}
	s.logger.Error("Tracking failed", zap.Int64("trip_id", tripID), zap.Error(cause))
	s.broadcast()
}

// consumeUpdates 消费定位订阅直到取消或通道关闭
func (s *TrackingService) consumeUpdates(ctx context.Context, handle *location.Handle, tripID int64) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-handle.Updates():
			if !ok {
				return
			}
			s.onSample(tripID, sample)
		}
	}
}

// onSample 处理一条定位采样：更新轨迹与里程，异步上报，节流解码地址
func (s *TrackingService) onSample(tripID int64, sample models.LocationSample) {
	if s.machine.Current() != state.StateActive {
		return
	}

	s.machine.Update(func(sess *state.Session) {
		if sess.TripID != tripID {
			return
		}
		if n := len(sess.Route); n > 0 {
			sess.DistanceKm += geo.DistanceKm(sess.Route[n-1], sample.Coordinate())
		}
		sess.Route = append(sess.Route, sample.Coordinate())
		sess.LastSample = &sample
	})

	go s.pushLocation(tripID, sample)
	s.maybeGeocode(tripID, sample)
	s.broadcast()
}

// pushLocation 上报一个采样点到后端
// 发送前校验会话仍属于同一行程，迟到的采样在发送端被丢弃；失败只记日志，不升级
func (s *TrackingService) pushLocation(tripID int64, sample models.LocationSample) {
	snap := s.machine.Snapshot()
	if snap.Status != state.StateActive || snap.TripID != tripID {
		s.logger.Debug("Discarding stale location ping",
			zap.Int64("trip_id", tripID),
			zap.String("status", snap.Status))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := s.backend.UpdateLocation(ctx, backend.LocationPing{
		TripTicketID: tripID,
		Lat:          sample.Lat,
		Lng:          sample.Lng,
		Accuracy:     sample.Accuracy,
		Speed:        sample.Speed,
		Heading:      sample.Heading,
	})
	if err != nil {
		s.logger.Warn("Failed to push location sample",
			zap.Int64("trip_id", tripID),
			zap.Error(err))
		return
	}

	s.machine.Update(func(sess *state.Session) {
		if sess.TripID == tripID {
			sess.LastServerSyncAt = time.Now()
		}
	})
}

// maybeGeocode 节流逆地理编码：距上次成功不足 GeocodeInterval 或仍有请求在途则跳过
func (s *TrackingService) maybeGeocode(tripID int64, sample models.LocationSample) {
	if s.geocoder == nil {
		return
	}

	s.mu.Lock()
	if s.geocodeBusy || time.Since(s.lastGeocodeAt) < s.cfg.GeocodeInterval {
		s.mu.Unlock()
		return
	}
	s.geocodeBusy = true
	ctx, cancel := context.WithCancel(context.Background())
	s.geocodeCancel = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		addr, err := s.geocoder.ReverseGeocode(ctx, sample.Lat, sample.Lng)

		s.mu.Lock()
		s.geocodeBusy = false
		if err == nil {
			s.lastGeocodeAt = time.Now()
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Debug("Reverse geocode failed", zap.Error(err))
			return
		}

		s.machine.Update(func(sess *state.Session) {
			if sess.TripID == tripID {
				sess.Address = addr.FormattedAddress
			}
		})
		s.broadcast()
	}()
}

// RequestStop 停止追踪并清理会话，幂等
func (s *TrackingService) RequestStop() error {
	s.mu.Lock()
	if s.machine.Current() == state.StateStopped {
		s.mu.Unlock()
		return nil
	}

	handle := s.handle
	s.handle = nil
	if s.consumeCancel != nil {
		s.consumeCancel()
		s.consumeCancel = nil
	}
	if s.geocodeCancel != nil {
		s.geocodeCancel()
		s.geocodeCancel = nil
	}
	bgStop := s.bgStop
	s.bgStop = nil
	s.mu.Unlock()

	s.stream.Stop(handle)
	if bgStop != nil {
		close(bgStop)
	}

	tripID := s.machine.Snapshot().TripID
	if err := s.machine.Trigger(state.EventStop); err != nil {
		return err
	}
	s.machine.Update(func(sess *state.Session) {
		sess.Route = nil
		sess.DistanceKm = 0
		sess.LastSample = nil
		sess.Address = ""
	})

	if err := s.store.Delete(store.KeyActiveTripMarker); err != nil {
		s.logger.Warn("Failed to delete active trip marker", zap.Error(err))
	}

	s.broadcast()
	s.logger.Info("Tracking stopped", zap.Int64("trip_id", tripID))
	return nil
}

// CompleteTrip 完成行程
// 行车日志未提交时拒绝；后端确认完成之后才停止本地追踪
func (s *TrackingService) CompleteTrip(ctx context.Context, tripID int64) error {
	ticket, err := s.backend.TripTicket(ctx, tripID)
	if err != nil {
		return fmt.Errorf("load trip ticket %d: %w", tripID, err)
	}
	if ticket.TripLogID == nil {
		return ErrTripLogRequired
	}

	if err := s.backend.CompleteTrip(ctx, tripID); err != nil {
		return fmt.Errorf("complete trip %d: %w", tripID, err)
	}

	snap := s.machine.Snapshot()
	if snap.TripID == tripID && snap.Status != state.StateStopped {
		if err := s.RequestStop(); err != nil {
			return err
		}
	}

	s.logger.Info("Trip completed", zap.Int64("trip_id", tripID))
	return nil
}

// ReconcileOnResume 进程恢复后对齐内存状态与持久化标记
// 处理两类失步：标记存在但状态机 stopped（孤儿行程），active 但订阅丢失
func (s *TrackingService) ReconcileOnResume(ctx context.Context) {
	var marker models.ActiveTripMarker
	markerErr := s.store.Get(store.KeyActiveTripMarker, &marker)
	hasMarker := markerErr == nil
	if markerErr != nil && !errors.Is(markerErr, store.ErrNotFound) {
		s.logger.Warn("Failed to read active trip marker", zap.Error(markerErr))
	}

	status := s.machine.Current()
	s.mu.Lock()
	hasHandle := s.handle != nil
	s.mu.Unlock()

	switch {
	case hasMarker && status == state.StateStopped:
		s.logger.Warn("Orphaned trip marker found, resuming tracking",
			zap.Int64("trip_id", marker.TripID),
			zap.Time("started_at", marker.StartedAt))
		s.machine.Update(func(sess *state.Session) {
			sess.TripID = marker.TripID
			sess.StartedAt = marker.StartedAt
		})
		if err := s.machine.Trigger(state.EventSearch); err != nil {
			s.logger.Error("Failed to resume orphaned trip", zap.Error(err))
			return
		}
		if err := s.beginTracking(ctx, marker.TripID, false); err != nil {
			s.logger.Error("Failed to resume orphaned trip", zap.Error(err))
		}

	case status == state.StateActive && !hasHandle:
		tripID := s.machine.Snapshot().TripID
		s.logger.Warn("Tracking active without live subscription, restarting",
			zap.Int64("trip_id", tripID))
		handle, err := s.stream.Start(context.Background(), location.SamplingPolicy{
			MinInterval:  s.cfg.SampleMinInterval,
			MinDistanceM: s.cfg.SampleMinDistanceM,
			Accuracy:     location.AccuracyBest,
		})
		if err != nil {
			s.fail(tripID, err)
			return
		}
		consumeCtx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.handle = handle
		s.consumeCancel = cancel
		s.mu.Unlock()
		s.wg.Add(1)
		go s.consumeUpdates(consumeCtx, handle, tripID)

	case !hasMarker && status == state.StateActive:
		// 标记丢失但追踪仍在进行，补写标记
		snap := s.machine.Snapshot()
		s.logger.Warn("Active trip marker missing, rewriting", zap.Int64("trip_id", snap.TripID))
		s.persistMarker(snap.TripID, snap.StartedAt)
	}
}

// persistMarker 写入进行中标记，供崩溃/重启后恢复用
func (s *TrackingService) persistMarker(tripID int64, startedAt time.Time) {
	marker := models.ActiveTripMarker{
		TripID:    tripID,
		StartedAt: startedAt,
		UpdatedAt: time.Now(),
	}
	if err := s.store.Set(store.KeyActiveTripMarker, marker); err != nil {
		s.logger.Warn("Failed to persist active trip marker", zap.Error(err))
	}
}

// startBackgroundReporter 启动后台周期上报
// 后台权限未授予时降级为纯前台追踪，只告警一次
func (s *TrackingService) startBackgroundReporter() {
	if !s.provider.HasPermission(location.PermissionBackground) {
		s.mu.Lock()
		warned := s.bgWarned
		s.bgWarned = true
		s.mu.Unlock()
		if !warned {
			s.logger.Warn("Background location permission not granted, tracking is foreground-only")
		}
		return
	}

	s.mu.Lock()
	if s.bgStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.bgStop = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go s.backgroundLoop(stop)
}

// backgroundLoop 周期性刷新标记并上报最近已知位置
func (s *TrackingService) backgroundLoop(stop chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.BackgroundInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := s.machine.Snapshot()
			if snap.Status != state.StateActive {
				continue
			}
			s.persistMarker(snap.TripID, snap.StartedAt)
			if sample := s.provider.LastKnown(); sample != nil {
				s.pushLocation(snap.TripID, *sample)
			}
		}
	}
}

// Shutdown 停止订阅与后台 goroutine
// 不触发 stop 事件也不清除进行中标记：进行中的行程留待下次启动恢复
func (s *TrackingService) Shutdown() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	if s.consumeCancel != nil {
		s.consumeCancel()
		s.consumeCancel = nil
	}
	if s.geocodeCancel != nil {
		s.geocodeCancel()
		s.geocodeCancel = nil
	}
	bgStop := s.bgStop
	s.bgStop = nil
	s.mu.Unlock()

	s.stream.Stop(handle)
	if bgStop != nil {
		close(bgStop)
	}
	s.wg.Wait()
}

func (s *TrackingService) broadcast() {
	if s.hub == nil {
		return
	}
	s.hub.BroadcastTrackingUpdate(s.machine.Snapshot())
}
