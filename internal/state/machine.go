package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 会话状态常量
const (
	StatePolling       = "polling"
	StateCheckpointHit = "checkpoint_hit"
	StateFinalApproach = "final_approach"
	StateTerminated    = "terminated"
)

// 事件常量
const (
	EventReachCheckpoint = "reach_checkpoint"
	EventResumePolling   = "resume_polling"
	EventEnterFinal      = "enter_final_approach"
	EventTerminate       = "terminate"
)

// Machine 单次充电会话的状态机
type Machine struct {
	mu            sync.RWMutex
	fsm           *fsm.FSM
	since         time.Time
	onStateChange func(from, to string)
}

// NewMachine 创建状态机，初始状态为 polling
func NewMachine(onStateChange func(from, to string)) *Machine {
	m := &Machine{
		onStateChange: onStateChange,
		since:         time.Now(),
	}

	m.fsm = fsm.NewFSM(
		StatePolling,
		fsm.Events{
			// 到达检查点（最后一个检查点之前可从任意进行中状态进入）
			{Name: EventReachCheckpoint, Src: []string{StatePolling, StateCheckpointHit}, Dst: StateCheckpointHit},

			// 检查点之后继续轮询
			{Name: EventResumePolling, Src: []string{StateCheckpointHit}, Dst: StatePolling},

			// 最后一个十分位区间，之后每个周期重复触发
			{Name: EventEnterFinal, Src: []string{StatePolling, StateCheckpointHit, StateFinalApproach}, Dst: StateFinalApproach},

			// 任意状态均可终止
			{Name: EventTerminate, Src: []string{StatePolling, StateCheckpointHit, StateFinalApproach}, Dst: StateTerminated},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				if m.onStateChange != nil {
					m.onStateChange(e.Src, e.Dst)
				}
			},
		},
	)

	return m
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// Since 进入当前状态的时间
func (m *Machine) Since() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.since
}

// Trigger 触发事件，目标状态与当前状态相同时视为成功
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fsm.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) {
			return nil
		}
		return fmt.Errorf("trigger event %s: %w", event, err)
	}

	m.since = time.Now()
	return nil
}

// CanTransition 检查是否可以转换
func (m *Machine) CanTransition(event string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Can(event)
}

// IsTerminated 会话是否已终止
func (m *Machine) IsTerminated() bool {
	return m.CurrentState() == StateTerminated
}
