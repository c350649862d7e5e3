package metrics

import (
	"context"
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

const measurement = "charge_progress"

// pointWriter client.Client 的写入部分
type pointWriter interface {
	Write(bp client.BatchPoints) error
}

// InfluxSink 将会话进度写入 InfluxDB，实现 service.ProgressObserver
type InfluxSink struct {
	conn     pointWriter
	database string
	logger   *zap.Logger
}

// NewInfluxSink 连接 InfluxDB 1.x
func NewInfluxSink(cfg config.InfluxDBConfig, logger *zap.Logger) (*InfluxSink, client.Client, error) {
	conn, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create influxdb client: %w", err)
	}
	return &InfluxSink{conn: conn, database: cfg.Database, logger: logger}, conn, nil
}

// OnProgress 只记录读数、检查点和终止事件，睡眠事件不写入
func (s *InfluxSink) OnProgress(ctx context.Context, ev models.ProgressEvent) {
	if ev.Type == models.EventSleep {
		return
	}
	if err := s.insert(ev); err != nil {
		s.logger.Warn("Failed to record progress to influxdb", zap.Error(err))
	}
}

func (s *InfluxSink) insert(ev models.ProgressEvent) error {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  s.database,
		Precision: "s",
	})
	if err != nil {
		return err
	}

	// Indexed tags
	tags := map[string]string{
		"event": string(ev.Type),
		"state": ev.State,
	}
	if ev.Reason != "" {
		tags["reason"] = string(ev.Reason)
	}

	fields := map[string]interface{}{
		"batt_level":        ev.CurrentPercentage,
		"start_level":       ev.StartPercentage,
		"target_level":      ev.TargetPercentage,
		"estimated_seconds": ev.EstimatedSecondsToTarget,
	}
	if ev.NextCheckpoint != nil {
		fields["next_checkpoint"] = *ev.NextCheckpoint
	}
	if r := ev.Reading; r != nil {
		fields["plugged_in"] = r.PluggedIn
		if r.HasRemainingTime() {
			fields["vendor_remaining_seconds"] = r.RemainingTime.Seconds()
		}
		if r.AutonomyKm != nil {
			fields["range_left_km"] = *r.AutonomyKm
		}
	}

	pt, err := client.NewPoint(measurement, tags, fields, ev.At)
	if err != nil {
		return err
	}
	bp.AddPoint(pt)

	return s.conn.Write(bp)
}
