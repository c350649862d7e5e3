package service

import (
	"math"
	"time"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

// capacityAt 指定百分比对应的电量 (kWh)
func capacityAt(pct int, fullCapacityKWh float64) float64 {
	return float64(pct) * fullCapacityKWh / 100
}

// healthEstimate energyExpected 为 0 时返回 nil（未知）
func healthEstimate(measured, expected float64) *float64 {
	if expected <= 0 {
		return nil
	}
	h := round2(measured / expected * 100)
	return &h
}

// buildRecord 根据会话轨迹计算最终记录。所有能量值保留两位小数
func buildRecord(cfg config.ChargingConfig, sess *chargeSession, last models.BatteryReading, endedAt time.Time, reason models.TerminationReason) *models.SessionRecord {
	startPct, endPct := sess.start, sess.current
	duration := endedAt.Sub(sess.startedAt)
	if duration < 0 {
		duration = 0
	}
	hours := duration.Hours()

	startCap := capacityAt(startPct, cfg.FullCapacityKWh)
	endCap := capacityAt(endPct, cfg.FullCapacityKWh)
	expected := float64(endPct-startPct) * cfg.FullCapacityKWh / 100
	measured := hours * cfg.ChargeRateKW

	return &models.SessionRecord{
		StartTime:             sess.startedAt,
		EndTime:               endedAt,
		StartBatteryLevel:     startPct,
		EndBatteryLevel:       endPct,
		TargetBatteryLevel:    sess.target,
		StartBatteryCapacity:  round2(startCap),
		EndBatteryCapacity:    round2(endCap),
		EnergyConsumed:        round2(endCap - startCap),
		EnergyExpected:        round2(expected),
		EnergyMeasured:        round2(measured),
		BatteryHealthEstimate: healthEstimate(measured, expected),
		BatteryAutonomy:       last.AutonomyKm,
		ChargingDurationHours: math.Round(hours*1000) / 1000,
		ChargingTime:          int64(duration.Seconds()),
		TotalMileage:          last.OdometerKm,
		TerminationReason:     reason,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
