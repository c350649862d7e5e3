package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 单车单插座，写入频率很低
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateChargingSessions,
		migrationIndexChargingSessionsStart,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateChargingSessions = `
CREATE TABLE IF NOT EXISTS charging_sessions (
    id BIGSERIAL PRIMARY KEY,
    start_time TIMESTAMPTZ NOT NULL,
    end_time TIMESTAMPTZ NOT NULL,
    start_battery_level SMALLINT NOT NULL,
    end_battery_level SMALLINT NOT NULL,
    target_battery_level SMALLINT NOT NULL,
    start_battery_capacity DOUBLE PRECISION NOT NULL,
    end_battery_capacity DOUBLE PRECISION NOT NULL,
    energy_consumed DOUBLE PRECISION NOT NULL,
    energy_expected DOUBLE PRECISION NOT NULL,
    energy_measured DOUBLE PRECISION NOT NULL,
    battery_health_estimate DOUBLE PRECISION,
    battery_autonomy DOUBLE PRECISION,
    charging_duration_hours DOUBLE PRECISION NOT NULL,
    charging_time BIGINT NOT NULL,
    total_mileage DOUBLE PRECISION,
    termination_reason VARCHAR(32) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migrationIndexChargingSessionsStart = `
CREATE INDEX IF NOT EXISTS idx_charging_sessions_start_time ON charging_sessions (start_time DESC);
`
