package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/config"
	"github.com/langchou/chargepilot/internal/models"
)

var errUnavailable = errors.New("vehicle api unavailable")

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Retry = config.RetryConfig{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	return cfg
}

func testStart() time.Time {
	return time.Date(2024, 5, 1, 22, 0, 0, 0, time.UTC)
}

func reading(pct int, plugged bool, remaining time.Duration) models.BatteryReading {
	r := models.BatteryReading{Percentage: pct, PluggedIn: plugged}
	if remaining > 0 {
		r.RemainingTime = &remaining
	}
	return r
}

// eventLog 记录各协作方的调用顺序
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// indexOf 返回第一个以 prefix 开头的条目位置
func (l *eventLog) indexOf(prefix string) int {
	for i, e := range l.all() {
		if strings.HasPrefix(e, prefix) {
			return i
		}
	}
	return -1
}

// scriptedSource 读数是会话已运行时间的函数，插头子检查不会打乱脚本
type scriptedSource struct {
	mu    sync.Mutex
	clock *clock.FakeClock
	start time.Time
	fn    func(elapsed time.Duration) (models.BatteryReading, error)
	calls int
}

func newScriptedSource(clk *clock.FakeClock, fn func(elapsed time.Duration) (models.BatteryReading, error)) *scriptedSource {
	return &scriptedSource{clock: clk, start: clk.Now(), fn: fn}
}

func (s *scriptedSource) Read(ctx context.Context) (models.BatteryReading, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	now := s.clock.Now()
	r, err := s.fn(now.Sub(s.start))
	if err != nil {
		return models.BatteryReading{}, err
	}
	r.SampledAt = now
	return r, nil
}

type fakeSwitch struct {
	mu    sync.Mutex
	log   *eventLog
	err   error
	calls []bool
}

func (f *fakeSwitch) SetOn(ctx context.Context, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, on)
	if f.err != nil {
		return f.err
	}
	if on {
		f.log.add("switch:on")
	} else {
		f.log.add("switch:off")
	}
	return nil
}

func (f *fakeSwitch) history() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.calls...)
}

type sentMessage struct {
	Text  string
	Force bool
}

type fakeNotifier struct {
	mu       sync.Mutex
	log      *eventLog
	sent     []sentMessage
	replies  []string
	replyErr error
	awaited  int
}

func (f *fakeNotifier) Send(ctx context.Context, text string, opts SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{Text: text, Force: opts.ForceDeliver})
	f.log.add("notify:%s", text)
	return nil
}

// AwaitReply 依次返回预设回复，用完后视为超时
func (f *fakeNotifier) AwaitReply(ctx context.Context, timeout time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awaited++
	if f.replyErr != nil {
		return "", false, f.replyErr
	}
	if len(f.replies) == 0 {
		return "", false, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, true, nil
}

func (f *fakeNotifier) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeNotifier) find(substr string) (sentMessage, bool) {
	for _, m := range f.messages() {
		if strings.Contains(m.Text, substr) {
			return m, true
		}
	}
	return sentMessage{}, false
}

type fakeRecorder struct {
	mu      sync.Mutex
	log     *eventLog
	err     error
	records []*models.SessionRecord
}

func (f *fakeRecorder) Append(ctx context.Context, rec *models.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	f.log.add("record:%s", rec.TerminationReason)
	return nil
}

func (f *fakeRecorder) all() []*models.SessionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.SessionRecord(nil), f.records...)
}

// eventCollector 收集进度事件，可在指定事件上执行回调
type eventCollector struct {
	mu     sync.Mutex
	events []models.ProgressEvent
	hook   func(ev models.ProgressEvent)
}

func (c *eventCollector) OnProgress(ctx context.Context, ev models.ProgressEvent) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (c *eventCollector) ofType(typ models.ProgressEventType) []models.ProgressEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ProgressEvent
	for _, ev := range c.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	cfg      *config.Config
	clock    *clock.FakeClock
	log      *eventLog
	source   *scriptedSource
	power    *fakeSwitch
	notifier *fakeNotifier
	recorder *fakeRecorder
	events   *eventCollector
}

func newHarness(fn func(elapsed time.Duration) (models.BatteryReading, error)) *harness {
	clk := clock.NewFake(testStart())
	log := &eventLog{}
	return &harness{
		cfg:      testConfig(),
		clock:    clk,
		log:      log,
		source:   newScriptedSource(clk, fn),
		power:    &fakeSwitch{log: log},
		notifier: &fakeNotifier{log: log},
		recorder: &fakeRecorder{log: log},
		events:   &eventCollector{},
	}
}
