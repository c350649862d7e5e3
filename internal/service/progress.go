package service

import (
	"math"
	"time"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

// checkpointsBetween 返回严格位于 start 与 target 之间的十分位边界，升序
func checkpointsBetween(start, target int) []int {
	var out []int
	for cp := (start/10 + 1) * 10; cp < target; cp += 10 {
		out = append(out, cp)
	}
	return out
}

// chargeSession 单次充电会话的工作状态，仅由 RunSession 持有
type chargeSession struct {
	start       int
	target      int
	current     int
	checkpoints []int

	estimatedSeconds float64 // 到达目标的预计秒数
	damping          float64 // 连续停滞累积的衰减系数，前进时重置为 1

	startedAt    time.Time
	lastSampleAt time.Time
}

func newChargeSession(start, target int, now time.Time) *chargeSession {
	return &chargeSession{
		start:       start,
		target:      target,
		current:     start,
		checkpoints: checkpointsBetween(start, target),
		damping:     1,
		startedAt:   now,
	}
}

// rescaledEstimate 厂商剩余时间通常是到 100% 的，按目标缺口比例缩放
func rescaledEstimate(remaining time.Duration, current, target int) float64 {
	if current >= 100 || current >= target {
		return 0
	}
	return remaining.Seconds() * float64(target-current) / float64(100-current)
}

// ratedEstimate 厂商数据不可用时按额定功率估算
func ratedEstimate(cfg config.ChargingConfig, current, target int) float64 {
	if current >= target {
		return 0
	}
	kwh := float64(target-current) / 100 * cfg.FullCapacityKWh
	return kwh / cfg.ChargeRateKW * 3600
}

// recompute 根据最新读数重新计算比例估计，再乘以累积衰减
func (s *chargeSession) recompute(cfg config.ChargingConfig, r models.BatteryReading) {
	if r.HasRemainingTime() {
		s.estimatedSeconds = rescaledEstimate(*r.RemainingTime, s.current, s.target) * s.damping
		return
	}
	s.estimatedSeconds = ratedEstimate(cfg, s.current, s.target) * s.damping
}

// prime 记录会话开始时的读数，不参与停滞判断
func (s *chargeSession) prime(r models.BatteryReading) {
	s.lastSampleAt = r.SampledAt
	if r.Percentage > s.current {
		s.current = r.Percentage
	}
}

// observe 记录新读数；百分比未前进时按衰减系数缩短估计。返回是否前进
func (s *chargeSession) observe(cfg config.ChargingConfig, r models.BatteryReading) bool {
	s.lastSampleAt = r.SampledAt
	if r.Percentage <= s.current {
		// 停滞或回退视为传感器噪声
		s.estimatedSeconds *= cfg.DampingFactor
		s.damping *= cfg.DampingFactor
		return false
	}
	s.current = r.Percentage
	s.damping = 1
	return true
}

// nextCheckpoint 下一个未到达的检查点
func (s *chargeSession) nextCheckpoint() (int, bool) {
	if len(s.checkpoints) == 0 {
		return 0, false
	}
	return s.checkpoints[0], true
}

// nextBoundary 下一个检查点，没有则为目标
func (s *chargeSession) nextBoundary() int {
	if cp, ok := s.nextCheckpoint(); ok {
		return cp
	}
	return s.target
}

// popReached 弹出所有已到达的检查点，返回最后弹出的那个
func (s *chargeSession) popReached() (int, bool) {
	reached, popped := 0, false
	for len(s.checkpoints) > 0 && s.current >= s.checkpoints[0] {
		reached = s.checkpoints[0]
		s.checkpoints = s.checkpoints[1:]
		popped = true
	}
	return reached, popped
}

func (s *chargeSession) inFinalApproach() bool {
	return len(s.checkpoints) == 0
}

// midJourneySleep 按比例分配到下一个检查点的时间，不小于一次插头检查间隔
func (s *chargeSession) midJourneySleep(cfg config.ChargingConfig) time.Duration {
	next, ok := s.nextCheckpoint()
	if !ok || s.current >= s.target {
		return cfg.PlugCheckInterval
	}
	secs := s.estimatedSeconds * float64(next-s.current) / float64(s.target-s.current)
	d := seconds(secs)
	if d < cfg.PlugCheckInterval {
		d = cfg.PlugCheckInterval
	}
	return d
}

// finalApproachSleep 最后阶段：estimate * ratio^exp，限制在 [MinFinalSleep, MaxFinalSleep]
func (s *chargeSession) finalApproachSleep(cfg config.ChargingConfig) time.Duration {
	ratio := 0.0
	if span := s.target - s.start; span > 0 {
		ratio = float64(s.target-s.current) / float64(span)
	}
	if ratio < 0 {
		ratio = 0
	}
	d := seconds(s.estimatedSeconds * math.Pow(ratio, cfg.FinalApproachExponent))
	if d < cfg.MinFinalSleep {
		d = cfg.MinFinalSleep
	}
	if d > cfg.MaxFinalSleep {
		d = cfg.MaxFinalSleep
	}
	return d
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
