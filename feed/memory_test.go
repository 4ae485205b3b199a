package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/taskjournal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(kind tasks.ChangeKind, id string) tasks.ChangeEvent {
	return tasks.ChangeEvent{Kind: kind, Task: tasks.Task{ID: id}, At: time.Now()}
}

func TestMemoryBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	var mu sync.Mutex
	var got []string
	for i := 0; i < 2; i++ {
		_, err := bus.Subscribe(func(ev tasks.ChangeEvent) {
			mu.Lock()
			got = append(got, string(ev.Kind)+":"+ev.Task.ID)
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	require.NoError(t, bus.Publish(context.Background(), event(tasks.ChangeInsert, "a")))

	assert.Equal(t, []string{"insert:a", "insert:a"}, got)
}

func TestMemoryBusDoesNotRedeliver(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), event(tasks.ChangeInsert, "early")))

	var got []string
	_, err := bus.Subscribe(func(ev tasks.ChangeEvent) { got = append(got, ev.Task.ID) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), event(tasks.ChangeUpdate, "late")))
	assert.Equal(t, []string{"late"}, got)
}

func TestMemoryBusCancel(t *testing.T) {
	bus := NewMemoryBus()

	calls := 0
	sub, err := bus.Subscribe(func(tasks.ChangeEvent) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, bus.Len())

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, bus.Len())

	require.NoError(t, bus.Publish(context.Background(), event(tasks.ChangeDelete, "a")))
	assert.Zero(t, calls)
}

func TestMemoryBusHandlerMaySubscribe(t *testing.T) {
	bus := NewMemoryBus()

	var inner Subscription
	_, err := bus.Subscribe(func(tasks.ChangeEvent) {
		if inner == nil {
			inner, _ = bus.Subscribe(func(tasks.ChangeEvent) {})
		}
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(context.Background(), event(tasks.ChangeUpdate, "a")))
	assert.Equal(t, 2, bus.Len())
}

func TestMemoryBusClosed(t *testing.T) {
	bus := NewMemoryBus()
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	_, err := bus.Subscribe(func(tasks.ChangeEvent) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, bus.Publish(context.Background(), event(tasks.ChangeInsert, "a")), ErrClosed)
}

func TestMemoryBusCancelledContext(t *testing.T) {
	bus := NewMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, bus.Publish(ctx, event(tasks.ChangeInsert, "a")), context.Canceled)
}
