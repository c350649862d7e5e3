package service

import (
	"context"
	"sync"
	"time"

	"github.com/langchou/chargepilot/internal/clock"
)

// CooldownStore 操作员拒绝充电后的冷却期
type CooldownStore interface {
	Activate(ctx context.Context, d time.Duration) error
	Active(ctx context.Context) (bool, error)
}

// MemoryCooldown 进程内冷却期，重启后丢失
type MemoryCooldown struct {
	mu    sync.Mutex
	clock clock.Clock
	until time.Time
}

func NewMemoryCooldown(clk clock.Clock) *MemoryCooldown {
	return &MemoryCooldown{clock: clk}
}

func (c *MemoryCooldown) Activate(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.until = c.clock.Now().Add(d)
	return nil
}

func (c *MemoryCooldown) Active(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Now().Before(c.until), nil
}
