package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
	"github.com/langchou/chargepilot/internal/retry"
)

// SessionRunner 运行一次充电会话
type SessionRunner interface {
	RunSession(ctx context.Context, start, target int) (*SessionResult, error)
}

// Monitor 插头监控：周期检查车辆是否连接，决定是否启动充电会话
type Monitor struct {
	cfg      *config.Config
	logger   *zap.Logger
	clock    clock.Clock
	source   BatterySource
	power    PowerSwitch
	notifier Notifier
	runner   SessionRunner
	cooldown CooldownStore
	retry    retry.Policy

	// 以下字段只在监控 goroutine 中访问
	handled     bool
	lastPlugged *bool

	mu            sync.Mutex
	cancelSession context.CancelCauseFunc
}

// NewMonitor 创建插头监控
func NewMonitor(
	cfg *config.Config,
	logger *zap.Logger,
	clk clock.Clock,
	source BatterySource,
	power PowerSwitch,
	notifier Notifier,
	runner SessionRunner,
	cooldown CooldownStore,
) *Monitor {
	if cooldown == nil {
		cooldown = NewMemoryCooldown(clk)
	}
	return &Monitor{
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		source:   source,
		power:    power,
		notifier: notifier,
		runner:   runner,
		cooldown: cooldown,
		retry: retry.Policy{
			Attempts:        cfg.Retry.Attempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
	}
}

// Run 运行监控循环直到 ctx 取消。账户或车辆不可用时返回 ErrSetupFailure
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Plug monitor started", zap.Duration("poll_interval", m.cfg.Charging.PollInterval))

	for {
		if err := m.PollOnce(ctx); err != nil {
			if errors.Is(err, models.ErrSetupFailure) {
				m.logger.Error("Battery source unusable, stopping monitor", zap.Error(err))
				m.notify(context.WithoutCancel(ctx), "❌ Vehicle account unavailable, monitoring stopped: "+err.Error(), true)
				return err
			}
			if ctx.Err() != nil {
				break
			}
			m.logger.Warn("Plug check failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
		case <-m.clock.After(m.cfg.Charging.PollInterval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	m.logger.Info("Plug monitor stopped")
	return nil
}

// PollOnce 执行一次插头检查，必要时运行完整的充电会话
func (m *Monitor) PollOnce(ctx context.Context) error {
	cc := m.cfg.Charging

	reading, err := retry.Value(ctx, m.retry, m.logger, "battery read", func(ctx context.Context) (models.BatteryReading, error) {
		r, err := m.source.Read(ctx)
		if errors.Is(err, models.ErrSetupFailure) {
			return r, retry.Permanent(err)
		}
		return r, err
	})
	if err != nil {
		return fmt.Errorf("read battery: %w", err)
	}

	firstCheck := m.lastPlugged == nil
	wasPlugged := !firstCheck && *m.lastPlugged
	plugged := reading.PluggedIn
	m.lastPlugged = &plugged

	if !reading.PluggedIn {
		m.handled = false
		if wasPlugged || firstCheck {
			m.logger.Info("Cable disconnected, switching outlet off", zap.Int("percentage", reading.Percentage))
			if err := retry.Do(ctx, m.retry, m.logger, "switch off", func(ctx context.Context) error {
				return m.power.SetOn(ctx, false)
			}); err != nil {
				m.logger.Error("Failed to switch power off", zap.Error(err))
			}
		}
		return nil
	}

	if m.handled {
		m.logger.Debug("Plug-in already handled", zap.Int("percentage", reading.Percentage))
		return nil
	}

	active, err := m.cooldown.Active(ctx)
	if err != nil {
		m.logger.Warn("Failed to read cooldown, assuming inactive", zap.Error(err))
	}
	if active {
		m.logger.Debug("Decline cooldown active, not prompting")
		return nil
	}

	if !wasPlugged {
		m.notify(ctx, fmt.Sprintf("🔌 Cable connected. Battery at %d%%.", reading.Percentage), false)
	}

	var target int
	if reading.Percentage < cc.LowChargeThreshold {
		target = cc.DefaultTarget
		m.logger.Info("Battery low, charging without prompt",
			zap.Int("percentage", reading.Percentage), zap.Int("target", target))
	} else {
		var accepted bool
		target, accepted = m.negotiateTarget(ctx, reading.Percentage)
		if !accepted {
			if err := m.cooldown.Activate(ctx, cc.DeclineCooldown); err != nil {
				m.logger.Warn("Failed to store cooldown", zap.Error(err))
			}
			m.notify(ctx, fmt.Sprintf("👌 Charging skipped. I will ask again in %s.", formatDuration(cc.DeclineCooldown)), false)
			return nil
		}
	}

	if target <= reading.Percentage {
		m.handled = true
		m.notify(ctx, fmt.Sprintf("✅ Battery at %d%%, already at or above %d%%. Charging not needed.", reading.Percentage, target), false)
		return nil
	}

	m.handled = true
	return m.runSession(ctx, reading.Percentage, target)
}

func (m *Monitor) runSession(ctx context.Context, start, target int) error {
	sctx, cancel := context.WithCancelCause(ctx)
	m.mu.Lock()
	m.cancelSession = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.cancelSession = nil
		m.mu.Unlock()
		cancel(nil)
	}()

	res, err := m.runner.RunSession(sctx, start, target)
	if err != nil {
		return fmt.Errorf("run session: %w", err)
	}
	m.logger.Info("Charging session finished",
		zap.String("reason", string(res.Reason)),
		zap.Bool("recorded", res.Record != nil))
	return nil
}

// StopSession 请求停止当前会话，没有活动会话时返回 false
func (m *Monitor) StopSession() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelSession == nil {
		return false
	}
	m.cancelSession(ErrOperatorStop)
	return true
}

// SessionActive 是否有正在运行的会话
func (m *Monitor) SessionActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelSession != nil
}

func (m *Monitor) notify(ctx context.Context, text string, force bool) {
	err := retry.Do(ctx, m.retry, m.logger, "notify", func(ctx context.Context) error {
		return m.notifier.Send(ctx, text, SendOptions{ForceDeliver: force})
	})
	if err != nil {
		m.logger.Warn("Failed to notify operator", zap.Error(err))
	}
}
