package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/service"
)

var ErrRepliesUnsupported = errors.New("notifier cannot receive replies")

// Sender 只需要发送能力的渠道
type Sender interface {
	Send(ctx context.Context, text string, opts service.SendOptions) error
}

// Fanout 消息发往所有渠道，回复只从主渠道读取
type Fanout struct {
	primary service.Notifier
	mirrors []Sender
	logger  *zap.Logger

	mu      sync.Mutex
	pending string // 主渠道发送失败、已发往镜像的消息
}

// NewFanout 创建多渠道通知
func NewFanout(logger *zap.Logger, primary service.Notifier, mirrors ...Sender) *Fanout {
	return &Fanout{primary: primary, mirrors: mirrors, logger: logger}
}

// Send 先发主渠道，失败时返回错误以便重试；镜像渠道失败只记录日志。
// 同一条消息重试时不会重复发往镜像渠道
func (f *Fanout) Send(ctx context.Context, text string, opts service.SendOptions) error {
	err := f.primary.Send(ctx, text, opts)

	f.mu.Lock()
	mirrored := f.pending == text
	if err != nil {
		f.pending = text
	} else {
		f.pending = ""
	}
	f.mu.Unlock()

	if !mirrored {
		for _, m := range f.mirrors {
			if merr := m.Send(ctx, text, opts); merr != nil {
				f.logger.Warn("Mirror notifier failed", zap.Error(merr))
			}
		}
	}
	return err
}

func (f *Fanout) AwaitReply(ctx context.Context, timeout time.Duration) (string, bool, error) {
	return f.primary.AwaitReply(ctx, timeout)
}
