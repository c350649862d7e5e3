package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/chargepilot/internal/clock"
	"github.com/langchou/chargepilot/internal/models"
)

func TestStatusTracker(t *testing.T) {
	tr := NewStatusTracker()
	assert.False(t, tr.Snapshot().Active)

	tr.OnProgress(context.Background(), models.ProgressEvent{Type: models.EventSample, CurrentPercentage: 55})
	s := tr.Snapshot()
	assert.True(t, s.Active)
	require.NotNil(t, s.LastEvent)
	assert.Equal(t, 55, s.LastEvent.CurrentPercentage)

	s.LastEvent.CurrentPercentage = 1
	assert.Equal(t, 55, tr.Snapshot().LastEvent.CurrentPercentage)

	tr.OnProgress(context.Background(), models.ProgressEvent{Type: models.EventTerminated, Reason: models.ReasonTargetReached})
	assert.False(t, tr.Snapshot().Active)
}

func TestMemoryCooldown(t *testing.T) {
	clk := clock.NewFake(testStart())
	c := NewMemoryCooldown(clk)
	ctx := context.Background()

	active, _ := c.Active(ctx)
	assert.False(t, active)

	require.NoError(t, c.Activate(ctx, 7*time.Hour))
	active, _ = c.Active(ctx)
	assert.True(t, active)

	clk.Advance(7 * time.Hour)
	active, _ = c.Active(ctx)
	assert.False(t, active)
}
