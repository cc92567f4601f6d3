package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/donationbox/internal/gpioevent"
)

func TestBridge_EnqueueBeforeStartDrops(t *testing.T) {
	var drops []string
	var mu sync.Mutex
	b := New(WithDropHook(func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		drops = append(drops, reason)
	}))

	b.Enqueue(gpioevent.New("coin_validator", "coin_inserted", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, drops, 1)
	assert.Equal(t, "not_started", drops[0])
	assert.Equal(t, 0, b.Depth())
}

func TestBridge_FIFOOrder(t *testing.T) {
	b := New(WithCapacity(10))
	b.Start()

	for i := 0; i < 5; i++ {
		b.Enqueue(gpioevent.New("button_0", "button_pressed", map[string]any{"position": i}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var got []int
	go func() {
		b.Drain(ctx, func(e gpioevent.Event) {
			got = append(got, e.IntData("position"))
			if len(got) == 5 {
				cancel()
			}
		})
	}()

	<-ctx.Done()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestBridge_DropNewestWhenFull(t *testing.T) {
	var dropped int
	var mu sync.Mutex
	b := New(WithCapacity(2), WithDropHook(func(reason string) {
		mu.Lock()
		defer mu.Unlock()
		if reason == "queue_full" {
			dropped++
		}
	}))
	b.Start()

	for i := 0; i < 5; i++ {
		b.Enqueue(gpioevent.New("coin_validator", "coin_inserted", map[string]any{"pulse_count": i}))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, dropped)
	assert.Equal(t, 2, b.Depth())
}

func TestBridge_StopPreservesQueuedEvents(t *testing.T) {
	b := New(WithCapacity(5))
	b.Start()
	b.Enqueue(gpioevent.New("coin_validator", "coin_inserted", nil))
	b.Stop()

	assert.Equal(t, 1, b.Depth())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var received int
	b.Drain(ctx, func(e gpioevent.Event) { received++ })
	assert.Equal(t, 1, received)
}
