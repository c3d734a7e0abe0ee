package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradecost/internal/cache/memory"
	"github.com/alanyoungcy/tradecost/internal/domain"
)

func TestStatusTracker_Transitions(t *testing.T) {
	bus := memory.NewSignalBus(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, domain.ChannelStatus)
	require.NoError(t, err)

	tr := NewStatusTracker(bus, testLogger())
	go func() { _ = tr.Run(ctx) }()

	assert.Equal(t, domain.StateDisconnectedClean, tr.Status().State)

	tr.Handle(domain.ConnectivityEvent{State: domain.StateConnecting, Source: "wss://feed"})
	tr.Handle(domain.ConnectivityEvent{State: domain.StateConnected, Source: "wss://feed"})
	for i := 0; i < 3; i++ {
		tr.Handle(domain.ConnectivityEvent{State: domain.StateDataUpdate, Source: "wss://feed"})
	}

	st := tr.Status()
	assert.Equal(t, domain.StateConnected, st.State)
	assert.True(t, tr.Connected())
	assert.Equal(t, uint64(3), st.DataUpdates)
	assert.False(t, st.LastDataAt.IsZero())

	tr.Handle(domain.ConnectivityEvent{State: domain.StateDisconnectedError, Source: "wss://feed", Message: "read: EOF"})
	st = tr.Status()
	assert.Equal(t, uint64(1), st.Disconnects)
	assert.Equal(t, "read: EOF", st.Message)
	assert.False(t, tr.Connected())

	var states []domain.ConnectivityState
	for len(states) < 3 {
		select {
		case payload := <-sub:
			var ev domain.ConnectivityEvent
			require.NoError(t, json.Unmarshal(payload, &ev))
			states = append(states, ev.State)
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d status events published", len(states))
		}
	}
	assert.Equal(t, []domain.ConnectivityState{
		domain.StateConnecting, domain.StateConnected, domain.StateDisconnectedError,
	}, states)
}
