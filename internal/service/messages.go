package service

import (
	"fmt"
	"time"

	"github.com/langchou/chargepilot/internal/models"
)

func checkpointMessage(sess *chargeSession, reached int) string {
	if cp, ok := sess.nextCheckpoint(); ok {
		return fmt.Sprintf("🔋 Battery at %d%% (checkpoint %d%% reached). Next checkpoint: %d%%.", sess.current, reached, cp)
	}
	return fmt.Sprintf("🔋 Battery at %d%% (checkpoint %d%% reached). Final approach to target %d%%.", sess.current, reached, sess.target)
}

func terminationMessage(reason models.TerminationReason, sess *chargeSession) string {
	switch reason {
	case models.ReasonTargetReached:
		return fmt.Sprintf("✅ Target %d%% reached (battery at %d%%). Charging completed.", sess.target, sess.current)
	case models.ReasonCablePulled:
		return fmt.Sprintf("⚠️ Cable disconnected! Charging interrupted at %d%%.", sess.current)
	case models.ReasonReadFailure:
		return fmt.Sprintf("⚠️ Battery level unavailable, charging stopped at %d%%.", sess.current)
	case models.ReasonActuatorFailure:
		return "⚠️ Could not switch the outlet on, charging not started."
	case models.ReasonOperatorStop:
		return fmt.Sprintf("⏹ Charging stopped on request at %d%%.", sess.current)
	case models.ReasonShutdown:
		return fmt.Sprintf("⏹ Charger service shutting down, charging stopped at %d%%.", sess.current)
	default:
		return fmt.Sprintf("Charging session ended (%s) at %d%%.", reason, sess.current)
	}
}

func summaryMessage(rec *models.SessionRecord) string {
	health := "unknown"
	if rec.BatteryHealthEstimate != nil {
		health = fmt.Sprintf("%.2f%%", *rec.BatteryHealthEstimate)
	}
	return fmt.Sprintf("📊 Session %d%% → %d%% in %s. Energy expected %.2f kWh, measured %.2f kWh, health estimate %s.",
		rec.StartBatteryLevel, rec.EndBatteryLevel,
		formatDuration(time.Duration(rec.ChargingTime)*time.Second),
		rec.EnergyExpected, rec.EnergyMeasured, health)
}

// formatDuration 以 1h05m 形式输出
func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
