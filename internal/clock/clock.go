package clock

import (
	"sync"
	"time"
)

// Clock 时间来源，便于在测试中替换
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

func NewReal() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// FakeClock 测试用时钟：After 立即推进当前时间并返回
type FakeClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	waits       []time.Duration

	// OnAfter 在每次 After 推进时间后调用（可为空）
	OnAfter func(d time.Duration)
}

func NewFake(start time.Time) *FakeClock {
	return &FakeClock{CurrentTime: start}
}

func (fc *FakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.CurrentTime
}

func (fc *FakeClock) After(d time.Duration) <-chan time.Time {
	fc.mu.Lock()
	fc.CurrentTime = fc.CurrentTime.Add(d)
	fc.waits = append(fc.waits, d)
	now := fc.CurrentTime
	hook := fc.OnAfter
	fc.mu.Unlock()

	if hook != nil {
		hook(d)
	}

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance 手动推进时间
func (fc *FakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.CurrentTime = fc.CurrentTime.Add(d)
}

// Waits 返回所有 After 调用的时长
func (fc *FakeClock) Waits() []time.Duration {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	out := make([]time.Duration, len(fc.waits))
	copy(out, fc.waits)
	return out
}
