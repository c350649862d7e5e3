package outlet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/service"
)

// State 最后一次成功命令的插座状态
type State struct {
	Known     bool      `json:"known"`
	On        bool      `json:"on"`
	ChangedAt time.Time `json:"changed_at,omitempty"`
}

// Guard 包装 PowerSwitch，记录最后一次成功的命令。
// 命令始终转发给插座，只有状态真正改变时才记录变更
type Guard struct {
	inner  service.PowerSwitch
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	state State
}

// NewGuard 创建插座状态跟踪
func NewGuard(inner service.PowerSwitch, logger *zap.Logger) *Guard {
	return &Guard{inner: inner, logger: logger, now: time.Now}
}

func (g *Guard) SetOn(ctx context.Context, on bool) error {
	if err := g.inner.SetOn(ctx, on); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Known && g.state.On == on {
		return nil
	}
	g.state = State{Known: true, On: on, ChangedAt: g.now()}
	g.logger.Info("Outlet state changed", zap.Bool("on", on))
	return nil
}

// State 返回当前状态
func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}
