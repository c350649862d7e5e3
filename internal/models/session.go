package models

import "time"

// TerminationReason 会话结束原因
type TerminationReason string

const (
	ReasonTargetReached   TerminationReason = "target-reached"
	ReasonCablePulled     TerminationReason = "cable-pulled"
	ReasonReadFailure     TerminationReason = "read-failure"
	ReasonActuatorFailure TerminationReason = "actuator-failure"
	ReasonShutdown        TerminationReason = "shutdown"
	ReasonOperatorStop    TerminationReason = "operator-stop"
)

// SessionRecord 充电会话记录，写入后不再修改
type SessionRecord struct {
	ID                    int64             `json:"id,omitempty" db:"id"`
	StartTime             time.Time         `json:"start_time" db:"start_time"`
	EndTime               time.Time         `json:"end_time" db:"end_time"`
	StartBatteryLevel     int               `json:"start_battery_level" db:"start_battery_level"`
	EndBatteryLevel       int               `json:"end_battery_level" db:"end_battery_level"`
	TargetBatteryLevel    int               `json:"target_battery_level" db:"target_battery_level"`
	StartBatteryCapacity  float64           `json:"start_battery_capacity" db:"start_battery_capacity"` // kWh
	EndBatteryCapacity    float64           `json:"end_battery_capacity" db:"end_battery_capacity"`     // kWh
	EnergyConsumed        float64           `json:"EnergyConsumed" db:"energy_consumed"`                // kWh，键名沿用历史数据文件
	EnergyExpected        float64           `json:"energy_expected" db:"energy_expected"`               // kWh
	EnergyMeasured        float64           `json:"energy_measured" db:"energy_measured"`               // kWh
	BatteryHealthEstimate *float64          `json:"battery_health_estimate" db:"battery_health_estimate"` // nil 表示未知
	BatteryAutonomy       *float64          `json:"battery_autonomy,omitempty" db:"battery_autonomy"`   // km
	ChargingDurationHours float64           `json:"charging_duration_hours" db:"charging_duration_hours"`
	ChargingTime          int64             `json:"charging_time" db:"charging_time"` // 秒
	TotalMileage          *float64          `json:"total_mileage,omitempty" db:"total_mileage"`
	TerminationReason     TerminationReason `json:"termination_reason" db:"termination_reason"`
}

// HealthKnown 健康度是否可计算
func (r *SessionRecord) HealthKnown() bool {
	return r.BatteryHealthEstimate != nil
}
