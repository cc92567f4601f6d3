package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/donationbox/internal/gpioevent"
)

func TestRegistry_RegisterIsOneShot(t *testing.T) {
	r := New()
	c := NewComponent("button_0", nil, nil, nil)

	require.NoError(t, r.Register(c))
	assert.Equal(t, Registered, c.State())

	err := r.Register(NewComponent("button_0", nil, nil, nil))
	assert.Error(t, err)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := New()
	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestComponent_StartStopLifecycle(t *testing.T) {
	var bound, released bool
	c := NewComponent("coin_validator", nil,
		func(ctx context.Context) error { bound = true; return nil },
		func(ctx context.Context) error { released = true; return nil },
	)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, bound)
	assert.Equal(t, Started, c.State())

	require.NoError(t, c.Stop(ctx))
	assert.True(t, released)
	assert.Equal(t, Stopped, c.State())
}

func TestComponent_StartIsIdempotent(t *testing.T) {
	calls := 0
	c := NewComponent("coin_validator", nil, func(ctx context.Context) error {
		calls++
		return nil
	}, nil)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Start(ctx))
	assert.Equal(t, 1, calls)
}

func TestRegistry_UnregisterStopsStartedComponent(t *testing.T) {
	r := New()
	released := false
	c := NewComponent("button_0", nil, nil, func(ctx context.Context) error {
		released = true
		return nil
	})
	require.NoError(t, r.Register(c))
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, r.Unregister(context.Background(), "button_0"))
	assert.True(t, released)

	_, ok := r.Get("button_0")
	assert.False(t, ok)
}

func TestComponent_HandlersFor(t *testing.T) {
	c := NewComponent("button_0", map[string]Handler{
		"button_pressed": func(ctx context.Context, event gpioevent.Event, container *Container) error {
			return nil
		},
	}, nil, nil)

	handlers := c.HandlersFor("button_pressed")
	assert.Len(t, handlers, 1)
	assert.Empty(t, c.HandlersFor("coin_inserted"))
}
