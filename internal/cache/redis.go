package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second

	cooldownKey = "chargepilot:cooldown:decline"
)

// NewRedisClient 创建 go-redis 客户端并用 PING 验证连接
func NewRedisClient(addr, password string) (*redis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis: addr is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  defaultDialTimeout,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

// CooldownStore 基于 Redis 键过期的拒绝冷却期，服务重启后依然有效。
// 实现 service.CooldownStore
type CooldownStore struct {
	client redis.Cmdable
	key    string
}

func NewCooldownStore(client redis.Cmdable) *CooldownStore {
	return &CooldownStore{client: client, key: cooldownKey}
}

// Activate 设置冷却期，覆盖之前的剩余时间
func (s *CooldownStore) Activate(ctx context.Context, d time.Duration) error {
	until := time.Now().Add(d).UTC().Format(time.RFC3339)
	return s.client.Set(ctx, s.key, until, d).Err()
}

// Active 键存在即处于冷却期
func (s *CooldownStore) Active(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, s.key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear 提前结束冷却期
func (s *CooldownStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
