// Package location 定位接入层
// Provider 抽象设备定位提供方；Stream 负责持有单一活跃订阅并产出位置更新事件
package location

import (
	"context"
	"errors"
	"time"

	"github.com/langchou/fleettrack/internal/models"
)

// 定位错误
var (
	// ErrPermissionDenied 未授予所需的定位权限
	ErrPermissionDenied = errors.New("location: permission denied")
	// ErrProviderUnavailable 设备当前无法产生定位
	ErrProviderUnavailable = errors.New("location: provider unavailable")
)

// PermissionKind 权限类别
// 后台权限是独立于前台权限的提升授权
type PermissionKind int

const (
	PermissionForeground PermissionKind = iota
	PermissionBackground
)

// Accuracy 精度档位
type Accuracy int

const (
	AccuracyBalanced Accuracy = iota
	AccuracyBest
)

// SamplingPolicy 采样策略
// 针对行驶中的车辆调校，取值来自配置而非硬编码
type SamplingPolicy struct {
	MinInterval  time.Duration // 最小采样时间间隔
	MinDistanceM float64       // 最小采样距离间隔（米）
	Accuracy     Accuracy
}

// Subscription 持续定位订阅
type Subscription interface {
	// Updates 位置更新通道，Stop 后关闭
	Updates() <-chan models.LocationSample
	// Stop 结束订阅，幂等
	Stop()
}

// Provider 设备定位提供方（外部协作者）
type Provider interface {
	// HasPermission 查询权限是否已授予
	HasPermission(kind PermissionKind) bool
	// CurrentPosition 单次定位，超时或无法定位时返回 ErrProviderUnavailable
	CurrentPosition(ctx context.Context) (*models.LocationSample, error)
	// Subscribe 建立持续订阅
	Subscribe(ctx context.Context, policy SamplingPolicy) (Subscription, error)
	// LastKnown 最近一次已知位置，无则返回 nil
	LastKnown() *models.LocationSample
}
