package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/models"
)

type sessionCall struct {
	Start, Target int
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []sessionCall
	block bool
	cause error
}

func (f *fakeRunner) RunSession(ctx context.Context, start, target int) (*SessionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sessionCall{start, target})
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		f.mu.Lock()
		f.cause = context.Cause(ctx)
		f.mu.Unlock()
		return &SessionResult{Reason: models.ReasonOperatorStop}, nil
	}
	return &SessionResult{Reason: models.ReasonTargetReached}, nil
}

func (f *fakeRunner) history() []sessionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sessionCall(nil), f.calls...)
}

// switchableSource 由测试直接设置下一次读数
type switchableSource struct {
	mu  sync.Mutex
	r   models.BatteryReading
	err error
}

func (s *switchableSource) set(pct int, plugged bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r = reading(pct, plugged, 0)
}

func (s *switchableSource) Read(ctx context.Context) (models.BatteryReading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r, s.err
}

type monitorHarness struct {
	clock    *clock.FakeClock
	source   *switchableSource
	power    *fakeSwitch
	notifier *fakeNotifier
	runner   *fakeRunner
	monitor  *Monitor
}

func newMonitorHarness() *monitorHarness {
	clk := clock.NewFake(testStart())
	log := &eventLog{}
	h := &monitorHarness{
		clock:    clk,
		source:   &switchableSource{},
		power:    &fakeSwitch{log: log},
		notifier: &fakeNotifier{log: log},
		runner:   &fakeRunner{},
	}
	h.monitor = NewMonitor(testConfig(), zap.NewNop(), clk, h.source, h.power, h.notifier, h.runner, NewMemoryCooldown(clk))
	return h
}

func TestMonitorLowBatteryStartsWithoutPrompt(t *testing.T) {
	h := newMonitorHarness()
	h.source.set(30, true)

	require.NoError(t, h.monitor.PollOnce(context.Background()))
	assert.Equal(t, []sessionCall{{30, 80}}, h.runner.history())
	assert.Equal(t, 0, h.notifier.awaited)
	_, ok := h.notifier.find("Cable connected")
	assert.True(t, ok)
}

func TestMonitorNegotiatesTarget(t *testing.T) {
	tests := []struct {
		reply string
		want  []sessionCall
	}{
		{"yes", []sessionCall{{60, 80}}},
		{"Sì", []sessionCall{{60, 80}}},
		{"85", []sessionCall{{60, 85}}},
		{"no", nil},
		{"maybe later", nil},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			h := newMonitorHarness()
			h.source.set(60, true)
			h.notifier.replies = []string{tt.reply}

			require.NoError(t, h.monitor.PollOnce(context.Background()))
			assert.Equal(t, tt.want, h.runner.history())

			prompt, ok := h.notifier.find("Charge to 80%?")
			require.True(t, ok)
			assert.True(t, prompt.Force)
		})
	}
}

func TestMonitorDeclineStartsCooldown(t *testing.T) {
	h := newMonitorHarness()
	h.source.set(60, true)
	h.notifier.replies = []string{"no"}
	ctx := context.Background()

	require.NoError(t, h.monitor.PollOnce(ctx))
	_, ok := h.notifier.find("ask again in 7h00m")
	assert.True(t, ok)

	// 冷却期内不再询问
	h.clock.Advance(6 * time.Hour)
	require.NoError(t, h.monitor.PollOnce(ctx))
	assert.Equal(t, 1, h.notifier.awaited)

	h.clock.Advance(time.Hour + time.Minute)
	h.notifier.replies = []string{"yes"}
	require.NoError(t, h.monitor.PollOnce(ctx))
	assert.Equal(t, 2, h.notifier.awaited)
	assert.Equal(t, []sessionCall{{60, 80}}, h.runner.history())
}

func TestMonitorReplyTimeoutIsDecline(t *testing.T) {
	h := newMonitorHarness()
	h.source.set(70, true)

	require.NoError(t, h.monitor.PollOnce(context.Background()))
	assert.Empty(t, h.runner.history())
	active, err := h.monitor.cooldown.Active(context.Background())
	require.NoError(t, err)
	assert.True(t, active)
}

func TestMonitorTargetAlreadyMet(t *testing.T) {
	h := newMonitorHarness()
	h.source.set(60, true)
	h.notifier.replies = []string{"50"}

	require.NoError(t, h.monitor.PollOnce(context.Background()))
	assert.Empty(t, h.runner.history())
	_, ok := h.notifier.find("Charging not needed")
	assert.True(t, ok)
}

func TestMonitorHandlesEachPlugInOnce(t *testing.T) {
	h := newMonitorHarness()
	ctx := context.Background()

	h.source.set(30, true)
	require.NoError(t, h.monitor.PollOnce(ctx))
	require.NoError(t, h.monitor.PollOnce(ctx))
	assert.Len(t, h.runner.history(), 1)

	h.source.set(80, false)
	require.NoError(t, h.monitor.PollOnce(ctx))
	require.NoError(t, h.monitor.PollOnce(ctx))
	assert.Equal(t, []bool{false}, h.power.history(), "switch off once per unplug")

	h.source.set(35, true)
	require.NoError(t, h.monitor.PollOnce(ctx))
	assert.Equal(t, []sessionCall{{30, 80}, {35, 80}}, h.runner.history())
}

func TestMonitorRunStopsOnSetupFailure(t *testing.T) {
	h := newMonitorHarness()
	h.source.err = fmt.Errorf("login: %w", models.ErrSetupFailure)

	err := h.monitor.Run(context.Background())
	require.ErrorIs(t, err, models.ErrSetupFailure)

	msg, ok := h.notifier.find("monitoring stopped")
	require.True(t, ok)
	assert.True(t, msg.Force)
}

func TestMonitorRunReturnsOnCancel(t *testing.T) {
	h := newMonitorHarness()
	h.source.set(80, false)
	ctx, cancel := context.WithCancel(context.Background())
	polls := 0
	h.clock.OnAfter = func(d time.Duration) {
		assert.Equal(t, 15*time.Minute, d)
		polls++
		if polls == 2 {
			cancel()
		}
	}

	require.NoError(t, h.monitor.Run(ctx))
	assert.Equal(t, 2, polls)
}

func TestMonitorStopSession(t *testing.T) {
	h := newMonitorHarness()
	h.runner.block = true
	h.source.set(30, true)
	assert.False(t, h.monitor.StopSession())

	done := make(chan error, 1)
	go func() {
		done <- h.monitor.PollOnce(context.Background())
	}()

	require.Eventually(t, h.monitor.SessionActive, time.Second, 5*time.Millisecond)
	assert.True(t, h.monitor.StopSession())
	require.NoError(t, <-done)

	h.runner.mu.Lock()
	defer h.runner.mu.Unlock()
	assert.ErrorIs(t, h.runner.cause, ErrOperatorStop)
	assert.False(t, h.monitor.SessionActive())
}
