package service

import (
	"context"
	"errors"
	"time"

	"github.com/langchou/chargepilot/internal/models"
)

// ErrOperatorStop 操作员主动停止会话（作为 context cause 使用）
var ErrOperatorStop = errors.New("session stopped by operator")

// BatterySource 电池读数来源（不可靠，可能失败或返回过期数据）
type BatterySource interface {
	Read(ctx context.Context) (models.BatteryReading, error)
}

// PowerSwitch 充电回路开关，重复调用必须是幂等的
type PowerSwitch interface {
	SetOn(ctx context.Context, on bool) error
}

// SendOptions 消息发送选项
type SendOptions struct {
	ForceDeliver bool // 绕过静音，强制提醒
}

// Notifier 与操作员的消息通道
type Notifier interface {
	Send(ctx context.Context, text string, opts SendOptions) error
	// AwaitReply 在 timeout 内等待回复，超时返回 ok=false
	AwaitReply(ctx context.Context, timeout time.Duration) (reply string, ok bool, err error)
}

// SessionRecorder 追加写入会话记录
type SessionRecorder interface {
	Append(ctx context.Context, rec *models.SessionRecord) error
}

// ProgressObserver 接收进度事件，实现方不能阻塞
type ProgressObserver interface {
	OnProgress(ctx context.Context, ev models.ProgressEvent)
}

// ObserverFunc 函数适配器
type ObserverFunc func(ctx context.Context, ev models.ProgressEvent)

func (f ObserverFunc) OnProgress(ctx context.Context, ev models.ProgressEvent) {
	f(ctx, ev)
}
