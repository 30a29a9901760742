package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/langchou/fleettrack/internal/models"
)

// 追踪状态常量
const (
	StateStopped   = "stopped"
	StateSearching = "searching"
	StateActive    = "active"
	StateError     = "error"
)

// 事件常量
const (
	EventSearch      = "search"       // stopped/error -> searching
	EventFixAcquired = "fix_acquired" // searching -> active
	EventStop        = "stop"         // searching/active/error -> stopped
	EventFail        = "fail"         // searching/active -> error
)

// Session 追踪会话：一次被 GPS 追踪的行程的内存表示
// 整个会话由 Machine 独占持有；active 期间 Route 只追加
type Session struct {
	TripID           int64                  `json:"trip_id"`
	Status           string                 `json:"status"`
	StartedAt        time.Time              `json:"started_at"`
	Route            []models.Coordinate    `json:"route"`
	DistanceKm       float64                `json:"distance_km"`
	LastSample       *models.LocationSample `json:"last_sample,omitempty"`
	LastServerSyncAt time.Time              `json:"last_server_sync_at"`
	Address          string                 `json:"address,omitempty"` // 逆地理编码结果，仅展示用
}

// Machine 追踪状态机
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	session       *Session
	onStateChange func(tripID int64, from, to string)
}

// NewMachine 创建状态机，初始状态为 stopped
func NewMachine(onStateChange func(tripID int64, from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
		session: &Session{
			Status: StateStopped,
		},
	}

	m.fsm = fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: EventSearch, Src: []string{StateStopped, StateError}, Dst: StateSearching},
			{Name: EventFixAcquired, Src: []string{StateSearching}, Dst: StateActive},
			{Name: EventStop, Src: []string{StateSearching, StateActive, StateError}, Dst: StateStopped},
			{Name: EventFail, Src: []string{StateSearching, StateActive}, Dst: StateError},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil && e.Src != e.Dst {
					m.onStateChange(m.session.TripID, e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *Machine) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Snapshot 返回会话快照（含轨迹副本）
func (m *Machine) Snapshot() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	copyS := *m.session
	copyS.Status = m.fsm.Current()
	copyS.Route = append([]models.Coordinate(nil), m.session.Route...)
	return &copyS
}

// Update 在锁内更新会话数据
func (m *Machine) Update(update func(s *Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.session)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.session.Status = m.fsm.Current()
	return nil
}

// Can 检查是否可以转换
func (m *Machine) Can(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}
