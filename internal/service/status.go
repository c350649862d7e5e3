package service

import (
	"context"
	"sync"

	"github.com/langchou/chargepilot/internal/models"
)

// Status 当前会话状态快照（供 HTTP API 使用）
type Status struct {
	Active    bool                  `json:"active"`
	LastEvent *models.ProgressEvent `json:"last_event,omitempty"`
}

// StatusTracker 记录最近一次进度事件
type StatusTracker struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{}
}

// OnProgress 实现 ProgressObserver
func (t *StatusTracker) OnProgress(ctx context.Context, ev models.ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Active = ev.Type != models.EventTerminated
	t.status.LastEvent = &ev
}

// Snapshot 返回副本
func (t *StatusTracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.status
	if s.LastEvent != nil {
		ev := *s.LastEvent
		s.LastEvent = &ev
	}
	return s
}
