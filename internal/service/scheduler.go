package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
	"github.com/langchou/chargepilot/internal/retry"
	"github.com/langchou/chargepilot/internal/state"
)

// SessionResult 会话结束结果。Record 为 nil 表示没有可用读数，未写入记录
type SessionResult struct {
	Reason models.TerminationReason
	Record *models.SessionRecord
}

// Scheduler 自适应充电进度调度器
type Scheduler struct {
	cfg       *config.Config
	logger    *zap.Logger
	clock     clock.Clock
	source    BatterySource
	power     PowerSwitch
	notifier  Notifier
	recorder  SessionRecorder
	observers []ProgressObserver
	retry     retry.Policy
}

// NewScheduler 创建调度器
func NewScheduler(
	cfg *config.Config,
	logger *zap.Logger,
	clk clock.Clock,
	source BatterySource,
	power PowerSwitch,
	notifier Notifier,
	recorder SessionRecorder,
	observers ...ProgressObserver,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		logger:    logger,
		clock:     clk,
		source:    source,
		power:     power,
		notifier:  notifier,
		recorder:  recorder,
		observers: observers,
		retry: retry.Policy{
			Attempts:        cfg.Retry.Attempts,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
		},
	}
}

// RunSession 运行一次充电会话直到终止。无论何种原因结束，都会关闭开关、
// 尽力写入记录并发送完成通知。只有参数非法时返回错误
func (s *Scheduler) RunSession(ctx context.Context, start, target int) (*SessionResult, error) {
	if target < 1 || target > 100 {
		return nil, fmt.Errorf("target %d out of range 1..100", target)
	}
	if start < 0 || start >= target {
		return nil, fmt.Errorf("start %d must be below target %d", start, target)
	}

	cc := s.cfg.Charging
	sess := newChargeSession(start, target, s.clock.Now())
	machine := state.NewMachine(func(from, to string) {
		s.logger.Debug("Session state changed", zap.String("from", from), zap.String("to", to))
	})
	logger := s.logger.With(zap.Int("start", start), zap.Int("target", target))
	logger.Info("Charging session started")

	var (
		reason  models.TerminationReason
		last    *models.BatteryReading
		started bool // 插头检查通过，开始供电
		res     = &SessionResult{}
	)

	defer func() {
		// 退出路径使用独立的 context，保证关机时也能执行
		exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cc.ExitTimeout)
		defer cancel()
		if err := machine.Trigger(state.EventTerminate); err != nil {
			logger.Warn("Failed to mark session terminated", zap.Error(err))
		}
		res.Reason = reason
		res.Record = s.exit(exitCtx, logger, sess, last, reason, started)
	}()

	reading, err := s.read(ctx)
	if err != nil {
		reason = s.abortReason(ctx, models.ReasonReadFailure)
		logger.Error("Initial battery read failed", zap.Error(err))
		return res, nil
	}
	last = &reading
	sess.prime(reading)
	sess.recompute(cc, reading)

	if !reading.PluggedIn {
		reason = models.ReasonCablePulled
		return res, nil
	}
	started = true

	s.emit(ctx, sess, machine, models.EventSessionStarted, func(ev *models.ProgressEvent) {
		ev.Reading = &reading
	})
	s.notify(ctx, fmt.Sprintf("⚡ Charging started at %d%%, target %d%%. Next checkpoint %d%%, about %s to target.",
		sess.current, target, sess.nextBoundary(), formatDuration(seconds(sess.estimatedSeconds))), false)

	if err := retry.Do(ctx, s.retry, logger, "switch on", func(ctx context.Context) error {
		return s.power.SetOn(ctx, true)
	}); err != nil {
		reason = s.abortReason(ctx, models.ReasonActuatorFailure)
		logger.Error("Failed to switch power on", zap.Error(err))
		return res, nil
	}

	for {
		// 1. 插头检查
		if !reading.PluggedIn {
			reason = models.ReasonCablePulled
			break
		}
		// 8. 目标检查
		if sess.current >= target {
			reason = models.ReasonTargetReached
			break
		}

		sess.recompute(cc, reading)

		// 2. 检查点：零等待，直接决定下一次睡眠
		if reached, ok := sess.popReached(); ok {
			_ = machine.Trigger(state.EventReachCheckpoint)
			s.emit(ctx, sess, machine, models.EventCheckpoint, nil)
			logger.Info("Checkpoint reached", zap.Int("checkpoint", reached), zap.Int("current", sess.current))
			s.notify(ctx, checkpointMessage(sess, reached), false)
		}

		var sleep time.Duration
		if sess.inFinalApproach() {
			// 3. 最后阶段
			if err := machine.Trigger(state.EventEnterFinal); err != nil {
				logger.Warn("Unexpected state transition", zap.Error(err))
			}
			sleep = sess.finalApproachSleep(cc)
		} else {
			// 4. 中途：按比例分配到下一个检查点
			if machine.CanTransition(state.EventResumePolling) {
				_ = machine.Trigger(state.EventResumePolling)
			}
			sleep = sess.midJourneySleep(cc)
		}

		s.emit(ctx, sess, machine, models.EventSleep, func(ev *models.ProgressEvent) {
			ev.NextPoll = sleep
		})
		logger.Debug("Sleeping until next sample",
			zap.Duration("sleep", sleep),
			zap.Float64("estimated_seconds", sess.estimatedSeconds),
			zap.String("state", machine.CurrentState()))

		// 5. 可中断的睡眠
		unplugged, err := s.wait(ctx, sleep)
		if err != nil {
			reason = s.abortReason(ctx, models.ReasonShutdown)
			break
		}
		if unplugged != nil {
			sess.prime(*unplugged)
			last = unplugged
			reason = models.ReasonCablePulled
			break
		}

		// 6. 新读数
		next, err := s.read(ctx)
		if err != nil {
			reason = s.abortReason(ctx, models.ReasonReadFailure)
			logger.Error("Battery read failed during session", zap.Error(err))
			break
		}

		// 7. 停滞衰减
		if advanced := sess.observe(cc, next); !advanced {
			logger.Info("Charge level did not advance, damping estimate",
				zap.Int("percentage", next.Percentage),
				zap.Float64("estimated_seconds", sess.estimatedSeconds))
		}
		reading = next
		last = &next
		s.emit(ctx, sess, machine, models.EventSample, func(ev *models.ProgressEvent) {
			ev.Reading = &next
		})
	}

	return res, nil
}

// abortReason context 已取消时区分关机与操作员停止
func (s *Scheduler) abortReason(ctx context.Context, fallback models.TerminationReason) models.TerminationReason {
	if ctx.Err() == nil {
		return fallback
	}
	if errors.Is(context.Cause(ctx), ErrOperatorStop) {
		return models.ReasonOperatorStop
	}
	return models.ReasonShutdown
}

// exit 关闭开关、通知、写入记录、发送总结。
// 没有可用读数或从未开始供电时不写记录，返回 nil
func (s *Scheduler) exit(ctx context.Context, logger *zap.Logger, sess *chargeSession, last *models.BatteryReading, reason models.TerminationReason, started bool) *models.SessionRecord {
	logger = logger.With(zap.String("reason", string(reason)))

	if err := retry.Do(ctx, s.retry, logger, "switch off", func(ctx context.Context) error {
		return s.power.SetOn(ctx, false)
	}); err != nil {
		logger.Error("Failed to switch power off", zap.Error(err))
		s.notify(ctx, "⚠️ Could not switch the outlet off, please check it manually.", true)
	}

	s.notify(ctx, terminationMessage(reason, sess), reason != models.ReasonTargetReached)

	if last == nil {
		logger.Warn("No usable reading, session record skipped")
		s.emitFinal(ctx, sess, reason, nil)
		return nil
	}
	if !started {
		logger.Info("Cable not connected at start, session record skipped")
		s.emitFinal(ctx, sess, reason, last)
		return nil
	}

	rec := buildRecord(s.cfg.Charging, sess, *last, s.clock.Now(), reason)
	if err := retry.Do(ctx, s.retry, logger, "append session record", func(ctx context.Context) error {
		return s.recorder.Append(ctx, rec)
	}); err != nil {
		logger.Error("Failed to persist session record", zap.Error(err))
		s.notify(ctx, "⚠️ Session record could not be saved: "+err.Error(), true)
	} else {
		logger.Info("Session record saved",
			zap.Int("end", rec.EndBatteryLevel),
			zap.Float64("energy_expected", rec.EnergyExpected),
			zap.Float64("energy_measured", rec.EnergyMeasured))
	}

	s.emitFinal(ctx, sess, reason, last)
	s.notify(ctx, summaryMessage(rec), false)
	return rec
}

// read 带重试的读数
func (s *Scheduler) read(ctx context.Context) (models.BatteryReading, error) {
	return retry.Value(ctx, s.retry, s.logger, "battery read", s.source.Read)
}

// wait 将长睡眠拆分为若干短等待，每次醒来检查插头。
// 检测到拔出时返回该读数；context 取消时返回错误
func (s *Scheduler) wait(ctx context.Context, total time.Duration) (*models.BatteryReading, error) {
	step := s.cfg.Charging.PlugCheckInterval
	for remaining := total; remaining > 0; {
		d := step
		if remaining < d {
			d = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.clock.After(d):
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining -= d
		if remaining <= 0 {
			// 醒来后的正式读数会再检查插头
			break
		}

		r, err := s.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Debug("Plug check failed, continuing to wait", zap.Error(err))
			continue
		}
		if !r.PluggedIn {
			s.logger.Warn("Cable disconnected while waiting", zap.Int("percentage", r.Percentage))
			return &r, nil
		}
	}
	return nil, nil
}

func (s *Scheduler) notify(ctx context.Context, text string, force bool) {
	err := retry.Do(ctx, s.retry, s.logger, "notify", func(ctx context.Context) error {
		return s.notifier.Send(ctx, text, SendOptions{ForceDeliver: force})
	})
	if err != nil {
		s.logger.Warn("Failed to notify operator", zap.Error(err))
	}
}

func (s *Scheduler) emit(ctx context.Context, sess *chargeSession, machine *state.Machine, typ models.ProgressEventType, fill func(ev *models.ProgressEvent)) {
	ev := models.ProgressEvent{
		Type:                     typ,
		State:                    machine.CurrentState(),
		StartPercentage:          sess.start,
		TargetPercentage:         sess.target,
		CurrentPercentage:        sess.current,
		EstimatedSecondsToTarget: sess.estimatedSeconds,
		At:                       s.clock.Now(),
	}
	if cp, ok := sess.nextCheckpoint(); ok {
		ev.NextCheckpoint = &cp
	}
	if fill != nil {
		fill(&ev)
	}
	for _, o := range s.observers {
		o.OnProgress(ctx, ev)
	}
}

func (s *Scheduler) emitFinal(ctx context.Context, sess *chargeSession, reason models.TerminationReason, last *models.BatteryReading) {
	ev := models.ProgressEvent{
		Type:                     models.EventTerminated,
		State:                    state.StateTerminated,
		StartPercentage:          sess.start,
		TargetPercentage:         sess.target,
		CurrentPercentage:        sess.current,
		EstimatedSecondsToTarget: sess.estimatedSeconds,
		Reason:                   reason,
		Reading:                  last,
		At:                       s.clock.Now(),
	}
	for _, o := range s.observers {
		o.OnProgress(ctx, ev)
	}
}
