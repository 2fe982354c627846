package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan *Event) *Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel已关闭")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return nil
	}
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	failures, err := bus.Subscribe(ctx, EventRunFailed, EventRunTimeout)
	require.NoError(t, err)

	started := NewEvent(EventRunStarted, "exec-1", "ndvi").WithRun(0, "run-a", "tile-0")
	failed := NewEvent(EventRunFailed, "exec-1", "ndvi").WithRun(1, "run-b", "tile-1").
		WithFailure("mask", errors.New("boom")).
		WithMetadata("attempts", "2")

	require.NoError(t, bus.Publish(ctx, started))
	require.NoError(t, bus.Publish(ctx, failed))

	first := receive(t, all)
	assert.Equal(t, EventRunStarted, first.Type)
	assert.Equal(t, "run-a", first.RunID)
	second := receive(t, all)
	assert.Equal(t, EventRunFailed, second.Type)

	onlyFailure := receive(t, failures)
	assert.Equal(t, failed.ID, onlyFailure.ID)
	assert.Equal(t, "mask", onlyFailure.FailedNode)
	assert.Equal(t, "boom", onlyFailure.Error)
	assert.Equal(t, "2", onlyFailure.Metadata["attempts"])
}

func TestBus_SubscriptionClosesWithContext(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("订阅未随context关闭")
	}
}

func TestBus_PublishNil(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()
	assert.Error(t, bus.Publish(context.Background(), nil))
}
