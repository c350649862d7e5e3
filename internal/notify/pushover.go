package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gregdel/pushover"

	"github.com/langchou/chargepilot/internal/service"
)

const pushoverTitle = "chargepilot"

// pushSender pushover.Pushover 的发送部分
type pushSender interface {
	SendMessage(message *pushover.Message, recipient *pushover.Recipient) (*pushover.Response, error)
}

// Pushover 只推送、不接收回复的通知渠道
type Pushover struct {
	push      pushSender
	recipient *pushover.Recipient
}

// NewPushover 创建 Pushover 通知
func NewPushover(token, user string) *Pushover {
	return &Pushover{
		push:      pushover.New(token),
		recipient: pushover.NewRecipient(user),
	}
}

// Send 强制消息使用高优先级，绕过静音时段
func (p *Pushover) Send(ctx context.Context, text string, opts service.SendOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := pushover.NewMessageWithTitle(text, pushoverTitle)
	if opts.ForceDeliver {
		msg.Priority = pushover.PriorityHigh
	}
	if _, err := p.push.SendMessage(msg, p.recipient); err != nil {
		return fmt.Errorf("pushover: %w", err)
	}
	return nil
}

// AwaitReply Pushover 无法接收回复
func (p *Pushover) AwaitReply(ctx context.Context, timeout time.Duration) (string, bool, error) {
	return "", false, ErrRepliesUnsupported
}
