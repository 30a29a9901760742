package location

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/fleettrack/internal/models"
)

// Stream 订阅管理器：同一时刻最多持有一个活跃的定位订阅
// 行驶中不过滤"无意义"的小位移——轨迹密度依赖全量转发
type Stream struct {
	mu       sync.Mutex
	provider Provider
	logger   *zap.Logger
	active   *Handle
}

// Handle 一次订阅的句柄
type Handle struct {
	sub      Subscription
	stopOnce sync.Once
}

// Updates 位置更新通道
func (h *Handle) Updates() <-chan models.LocationSample {
	return h.sub.Updates()
}

// Stop 停止订阅，幂等
func (h *Handle) Stop() {
	h.stopOnce.Do(h.sub.Stop)
}

// NewStream 创建订阅管理器
func NewStream(provider Provider, logger *zap.Logger) *Stream {
	return &Stream{provider: provider, logger: logger}
}

// Start 建立新订阅
// 前台权限未授予返回 ErrPermissionDenied；设备无法定位返回 ErrProviderUnavailable
// 若已有订阅存在，先显式停掉它，防止进程/状态失步后残留孤儿订阅
func (s *Stream) Start(ctx context.Context, policy SamplingPolicy) (*Handle, error) {
	if !s.provider.HasPermission(PermissionForeground) {
		return nil, ErrPermissionDenied
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		s.logger.Warn("Stopping stale location subscription before starting a new one")
		s.active.Stop()
		s.active = nil
	}

	sub, err := s.provider.Subscribe(ctx, policy)
	if err != nil {
		return nil, err
	}

	h := &Handle{sub: sub}
	s.active = h

	s.logger.Info("Location subscription started",
		zap.Duration("min_interval", policy.MinInterval),
		zap.Float64("min_distance_m", policy.MinDistanceM))

	return h, nil
}

// Stop 停止指定句柄
// 对已停止或不存在的句柄是无操作，从不报错
func (s *Stream) Stop(h *Handle) {
	if h == nil {
		return
	}

	s.mu.Lock()
	if s.active == h {
		s.active = nil
	}
	s.mu.Unlock()

	h.Stop()
}

// HasActive 当前是否存在活跃订阅
func (s *Stream) HasActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
