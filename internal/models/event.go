package models

import "time"

// ProgressEventType 进度事件类型
type ProgressEventType string

const (
	EventSessionStarted ProgressEventType = "session_started"
	EventSample         ProgressEventType = "sample"
	EventCheckpoint     ProgressEventType = "checkpoint"
	EventSleep          ProgressEventType = "sleep"
	EventTerminated     ProgressEventType = "terminated"
)

// ProgressEvent 充电进度事件，推送给观察者（WebSocket、InfluxDB、MQTT）
type ProgressEvent struct {
	Type                     ProgressEventType `json:"type"`
	State                    string            `json:"state"`
	StartPercentage          int               `json:"start_percentage"`
	TargetPercentage         int               `json:"target_percentage"`
	CurrentPercentage        int               `json:"current_percentage"`
	NextCheckpoint           *int              `json:"next_checkpoint,omitempty"`
	EstimatedSecondsToTarget float64           `json:"estimated_seconds_to_target"`
	NextPoll                 time.Duration     `json:"next_poll,omitempty"`
	Reason                   TerminationReason `json:"reason,omitempty"`
	Reading                  *BatteryReading   `json:"reading,omitempty"`
	At                       time.Time         `json:"at"`
}
