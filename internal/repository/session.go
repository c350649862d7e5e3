package repository

import (
	"context"
	"fmt"

	"github.com/langchou/chargepilot/internal/models"
)

// SessionRepository 充电会话记录仓库（只追加）
type SessionRepository struct {
	db *DB
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Append 写入一条会话记录，实现 service.SessionRecorder
func (r *SessionRepository) Append(ctx context.Context, rec *models.SessionRecord) error {
	query := `
		INSERT INTO charging_sessions (
			start_time, end_time, start_battery_level, end_battery_level, target_battery_level,
			start_battery_capacity, end_battery_capacity, energy_consumed, energy_expected, energy_measured,
			battery_health_estimate, battery_autonomy, charging_duration_hours, charging_time, total_mileage,
			termination_reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`
	err := r.db.Pool.QueryRow(ctx, query,
		rec.StartTime,
		rec.EndTime,
		rec.StartBatteryLevel,
		rec.EndBatteryLevel,
		rec.TargetBatteryLevel,
		rec.StartBatteryCapacity,
		rec.EndBatteryCapacity,
		rec.EnergyConsumed,
		rec.EnergyExpected,
		rec.EnergyMeasured,
		rec.BatteryHealthEstimate,
		rec.BatteryAutonomy,
		rec.ChargingDurationHours,
		rec.ChargingTime,
		rec.TotalMileage,
		string(rec.TerminationReason),
	).Scan(&rec.ID)

	if err != nil {
		return fmt.Errorf("insert charging session: %w", err)
	}
	return nil
}

// List 按开始时间倒序分页
func (r *SessionRepository) List(ctx context.Context, limit, offset int) ([]*models.SessionRecord, error) {
	query := `
		SELECT id, start_time, end_time, start_battery_level, end_battery_level, target_battery_level,
			start_battery_capacity, end_battery_capacity, energy_consumed, energy_expected, energy_measured,
			battery_health_estimate, battery_autonomy, charging_duration_hours, charging_time, total_mileage,
			termination_reason
		FROM charging_sessions ORDER BY start_time DESC LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list charging sessions: %w", err)
	}
	defer rows.Close()

	var records []*models.SessionRecord
	for rows.Next() {
		rec := &models.SessionRecord{}
		var reason string
		err := rows.Scan(
			&rec.ID,
			&rec.StartTime,
			&rec.EndTime,
			&rec.StartBatteryLevel,
			&rec.EndBatteryLevel,
			&rec.TargetBatteryLevel,
			&rec.StartBatteryCapacity,
			&rec.EndBatteryCapacity,
			&rec.EnergyConsumed,
			&rec.EnergyExpected,
			&rec.EnergyMeasured,
			&rec.BatteryHealthEstimate,
			&rec.BatteryAutonomy,
			&rec.ChargingDurationHours,
			&rec.ChargingTime,
			&rec.TotalMileage,
			&reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan charging session: %w", err)
		}
		rec.TerminationReason = models.TerminationReason(reason)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charging sessions: %w", err)
	}

	return records, nil
}
