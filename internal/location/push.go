package location

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/geo"
	"github.com/langchou/fleettrack/internal/models"
)

// PushProvider 推送式定位提供方
// 定位采样由外部调用 Report 喂入：HTTP 上报和后台任务回调都是同一条更新通道的生产者
type PushProvider struct {
	mu          sync.Mutex
	permissions map[PermissionKind]bool
	last        *models.LocationSample
	staleAfter  time.Duration // 单次定位可接受的采样新鲜度
	waiters     []chan models.LocationSample
	subs        map[*pushSubscription]bool
	logger      *zap.Logger
}

// NewPushProvider 创建推送式提供方
func NewPushProvider(foreground, background bool, staleAfter time.Duration, logger *zap.Logger) *PushProvider {
	return &PushProvider{
		permissions: map[PermissionKind]bool{
			PermissionForeground: foreground,
			PermissionBackground: background,
		},
		staleAfter: staleAfter,
		subs:       make(map[*pushSubscription]bool),
		logger:     logger,
	}
}

// HasPermission 查询权限
func (p *PushProvider) HasPermission(kind PermissionKind) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permissions[kind]
}

// Report 喂入一条定位采样
// 唤醒等待单次定位的调用方，并按各订阅的采样策略转发
func (p *PushProvider) Report(sample models.LocationSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	p.mu.Lock()
	p.last = &sample

	for _, w := range p.waiters {
		select {
		case w <- sample:
		default:
		}
	}
	p.waiters = nil

	subs := make([]*pushSubscription, 0, len(p.subs))
	for sub := range p.subs {
		subs = append(subs, sub)
	}
	p.mu.Unlock()

	for _, sub := range subs {
		sub.offer(sample)
	}
}

// LastKnown 最近一次上报的采样，可能为 nil
func (p *PushProvider) LastKnown() *models.LocationSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil
	}
	s := *p.last
	return &s
}

// CurrentPosition 单次定位
// 优先返回足够新鲜的已知位置，否则等待下一条上报；超时返回 ErrProviderUnavailable
func (p *PushProvider) CurrentPosition(ctx context.Context) (*models.LocationSample, error) {
	p.mu.Lock()
	if p.last != nil && time.Since(p.last.Timestamp) <= p.staleAfter {
		s := *p.last
		p.mu.Unlock()
		return &s, nil
	}

	w := make(chan models.LocationSample, 1)
	p.waiters = append(p.waiters, w)
	p.mu.Unlock()

	select {
	case s := <-w:
		return &s, nil
	case <-ctx.Done():
		return nil, ErrProviderUnavailable
	}
}

// Subscribe 建立持续订阅
func (p *PushProvider) Subscribe(ctx context.Context, policy SamplingPolicy) (Subscription, error) {
	if !p.HasPermission(PermissionForeground) {
		return nil, ErrPermissionDenied
	}

	sub := &pushSubscription{
		provider: p,
		policy:   policy,
		ch:       make(chan models.LocationSample, 64),
	}

	p.mu.Lock()
	p.subs[sub] = true
	p.mu.Unlock()

	return sub, nil
}

// pushSubscription 单个订阅，按策略做时间/距离间隔过滤
type pushSubscription struct {
	provider *PushProvider
	policy   SamplingPolicy

	mu        sync.Mutex
	closed    bool
	lastEmit  time.Time
	lastCoord *models.Coordinate
	ch        chan models.LocationSample
}

// Updates 位置更新通道
func (s *pushSubscription) Updates() <-chan models.LocationSample {
	return s.ch
}

// Stop 结束订阅，幂等
func (s *pushSubscription) Stop() {
	s.provider.mu.Lock()
	delete(s.provider.subs, s)
	s.provider.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// offer 按策略决定是否转发采样
// 首条采样总是转发；之后要求同时满足最小时间间隔和最小移动距离
func (s *pushSubscription) offer(sample models.LocationSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if s.lastCoord != nil {
		if sample.Timestamp.Sub(s.lastEmit) < s.policy.MinInterval {
			return
		}
		movedM := geo.DistanceKm(*s.lastCoord, sample.Coordinate()) * 1000
		if movedM < s.policy.MinDistanceM {
			return
		}
	}

	select {
	case s.ch <- sample:
		coord := sample.Coordinate()
		s.lastEmit = sample.Timestamp
		s.lastCoord = &coord
	default:
		// 消费方落后时丢弃，单条定位不致命
		s.provider.logger.Debug("Dropping location sample, subscriber buffer full")
	}
}
