// Package retry 为所有外部协作方调用提供统一的有限次指数退避重试
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Policy 重试策略
type Policy struct {
	Attempts        int           // 总尝试次数（含第一次）
	InitialInterval time.Duration // 第一次退避间隔
	MaxInterval     time.Duration // 单次退避上限
}

// DefaultPolicy 默认：最多 3 次，从 2s 开始指数退避
func DefaultPolicy() Policy {
	return Policy{
		Attempts:        3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	// 次数由 WithMaxRetries 控制，不限制总耗时
	eb.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Do 执行 op，失败时按策略重试，返回最后一次的错误
func Do(ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) error) error {
	attempt := 0
	onError := func(err error, next time.Duration) {
		logger.Warn("Collaborator call failed, retrying",
			zap.String("call", name),
			zap.Int("attempt", attempt),
			zap.Duration("next_retry", next),
			zap.Error(err))
	}

	finalErr := backoff.RetryNotify(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(ctx)
	}, p.backOff(ctx), onError)
	if finalErr != nil {
		return errors.Wrapf(finalErr, "%s failed after %d attempt(s)", name, attempt)
	}
	return nil
}

// Value 与 Do 相同，但返回 op 的结果
func Value[T any](ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := Do(ctx, p, logger, name, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// Permanent 标记不应重试的错误，Do 会立即返回原始错误
func Permanent(err error) error {
	return backoff.Permanent(err)
}
