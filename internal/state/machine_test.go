package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineTransitions(t *testing.T) {
	var changes [][2]string
	m := NewMachine(func(from, to string) {
		changes = append(changes, [2]string{from, to})
	})
	require.Equal(t, StatePolling, m.CurrentState())

	require.NoError(t, m.Trigger(EventReachCheckpoint))
	assert.Equal(t, StateCheckpointHit, m.CurrentState())

	// 连续两个检查点：同状态转换不报错
	require.NoError(t, m.Trigger(EventReachCheckpoint))
	assert.Equal(t, StateCheckpointHit, m.CurrentState())

	require.NoError(t, m.Trigger(EventResumePolling))
	require.NoError(t, m.Trigger(EventEnterFinal))
	assert.Equal(t, StateFinalApproach, m.CurrentState())

	require.NoError(t, m.Trigger(EventTerminate))
	assert.True(t, m.IsTerminated())

	assert.Equal(t, [][2]string{
		{StatePolling, StateCheckpointHit},
		{StateCheckpointHit, StatePolling},
		{StatePolling, StateFinalApproach},
		{StateFinalApproach, StateTerminated},
	}, changes)
}

func TestMachineRejectsInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	require.NoError(t, m.Trigger(EventEnterFinal))

	assert.False(t, m.CanTransition(EventReachCheckpoint))
	assert.Error(t, m.Trigger(EventResumePolling))

	require.NoError(t, m.Trigger(EventTerminate))
	assert.Error(t, m.Trigger(EventReachCheckpoint))
	assert.Equal(t, StateTerminated, m.CurrentState())
}

func TestMachineRepeatedFinalApproach(t *testing.T) {
	var changes int
	m := NewMachine(func(from, to string) { changes++ })

	require.NoError(t, m.Trigger(EventEnterFinal))
	for i := 0; i < 5; i++ {
		assert.True(t, m.CanTransition(EventEnterFinal))
		require.NoError(t, m.Trigger(EventEnterFinal))
	}
	assert.Equal(t, StateFinalApproach, m.CurrentState())
	assert.Equal(t, 1, changes)
}
