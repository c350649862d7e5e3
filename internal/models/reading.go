package models

import "time"

// BatteryReading 电池读数快照（只读，不可修改）
type BatteryReading struct {
	Percentage    int            `json:"percentage"`
	PluggedIn     bool           `json:"plugged_in"`
	RemainingTime *time.Duration `json:"remaining_time,omitempty"` // 厂商给出的剩余充电时间（通常指到 100%）
	AutonomyKm    *float64       `json:"autonomy_km,omitempty"`
	OdometerKm    *float64       `json:"odometer_km,omitempty"`
	SampledAt     time.Time      `json:"sampled_at"`
}

// HasRemainingTime 厂商剩余时间是否可用
func (r BatteryReading) HasRemainingTime() bool {
	return r.RemainingTime != nil && *r.RemainingTime > 0
}
