package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/models"
)

// EventPayload 进度事件的 MQTT 负载
type EventPayload struct {
	Timestamp         string   `json:"timestamp"`
	Event             string   `json:"event"`
	State             string   `json:"state"`
	StartPercentage   int      `json:"start_percentage"`
	TargetPercentage  int      `json:"target_percentage"`
	CurrentPercentage int      `json:"current_percentage"`
	NextCheckpoint    *int     `json:"next_checkpoint,omitempty"`
	EstimatedSeconds  float64  `json:"estimated_seconds"`
	NextPollSeconds   *float64 `json:"next_poll_seconds,omitempty"`
	Reason            string   `json:"reason,omitempty"`
}

// FormatEvent 将进度事件编码为 JSON
func FormatEvent(ev models.ProgressEvent) ([]byte, error) {
	p := EventPayload{
		Timestamp:         ev.At.UTC().Format(time.RFC3339),
		Event:             string(ev.Type),
		State:             ev.State,
		StartPercentage:   ev.StartPercentage,
		TargetPercentage:  ev.TargetPercentage,
		CurrentPercentage: ev.CurrentPercentage,
		NextCheckpoint:    ev.NextCheckpoint,
		EstimatedSeconds:  ev.EstimatedSecondsToTarget,
		Reason:            string(ev.Reason),
	}
	if ev.NextPoll > 0 {
		secs := ev.NextPoll.Seconds()
		p.NextPollSeconds = &secs
	}
	return json.Marshal(p)
}

// EventPublisher 将进度事件发布到 MQTT，实现 service.ProgressObserver
type EventPublisher struct {
	pub    Publisher
	topic  string
	logger *zap.Logger
}

func NewEventPublisher(pub Publisher, topic string, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{pub: pub, topic: topic, logger: logger}
}

// OnProgress 发布失败只记录日志；终止事件保留在 broker 上
func (p *EventPublisher) OnProgress(ctx context.Context, ev models.ProgressEvent) {
	payload, err := FormatEvent(ev)
	if err != nil {
		p.logger.Warn("Failed to encode progress event", zap.Error(err))
		return
	}
	retained := ev.Type == models.EventTerminated
	if err := p.pub.Publish(p.topic, 0, retained, payload); err != nil {
		p.logger.Warn("Failed to publish progress event", zap.String("topic", p.topic), zap.Error(err))
	}
}
