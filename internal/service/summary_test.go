package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/chargepilot/internal/models"
)

func TestBuildRecord(t *testing.T) {
	cc := testConfig().Charging
	start := testStart()
	sess := newChargeSession(43, 80, start)
	sess.current = 80
	autonomy := 210.0
	last := reading(80, true, 0)
	last.AutonomyKm = &autonomy

	rec := buildRecord(cc, sess, last, start.Add(150*time.Minute), models.ReasonTargetReached)

	assert.Equal(t, 43, rec.StartBatteryLevel)
	assert.Equal(t, 80, rec.EndBatteryLevel)
	assert.Equal(t, 80, rec.TargetBatteryLevel)
	assert.InDelta(t, 11.61, rec.StartBatteryCapacity, 1e-9)
	assert.InDelta(t, 21.6, rec.EndBatteryCapacity, 1e-9)
	assert.InDelta(t, 9.99, rec.EnergyConsumed, 1e-9)
	assert.InDelta(t, 9.99, rec.EnergyExpected, 1e-9)
	assert.InDelta(t, 3.375, rec.EnergyMeasured, 0.01)
	require.NotNil(t, rec.BatteryHealthEstimate)
	assert.InDelta(t, 33.78, *rec.BatteryHealthEstimate, 1e-9)
	assert.InDelta(t, 2.5, rec.ChargingDurationHours, 1e-9)
	assert.Equal(t, int64(9000), rec.ChargingTime)
	assert.Equal(t, &autonomy, rec.BatteryAutonomy)
	assert.Nil(t, rec.TotalMileage)
	assert.Equal(t, models.ReasonTargetReached, rec.TerminationReason)
}

func TestBuildRecordWithoutProgressHasUnknownHealth(t *testing.T) {
	cc := testConfig().Charging
	start := testStart()
	sess := newChargeSession(55, 80, start)

	rec := buildRecord(cc, sess, reading(55, false, 0), start.Add(20*time.Minute), models.ReasonCablePulled)
	assert.Equal(t, 0.0, rec.EnergyExpected)
	assert.Nil(t, rec.BatteryHealthEstimate)
	assert.False(t, rec.HealthKnown())
	assert.Contains(t, summaryMessage(rec), "health estimate unknown")
}

func TestHealthEstimate(t *testing.T) {
	assert.Nil(t, healthEstimate(1, 0))
	assert.Nil(t, healthEstimate(1, -2))
	h := healthEstimate(4.5, 9)
	require.NotNil(t, h)
	assert.Equal(t, 50.0, *h)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5m", formatDuration(5*time.Minute))
	assert.Equal(t, "1h05m", formatDuration(65*time.Minute))
	assert.Equal(t, "7h00m", formatDuration(7*time.Hour))
}
