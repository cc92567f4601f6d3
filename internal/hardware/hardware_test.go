package hardware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/donationbox/internal/bridge"
)

func TestMockSource_ReplaysScript(t *testing.T) {
	b := bridge.New(bridge.WithCapacity(10))
	b.Start()

	script := []ScriptStep{
		Button(5*time.Millisecond, 0),
		Coin(5*time.Millisecond, 3),
	}
	source := NewMockSource(script)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = source.Run(ctx, b)

	assert.Equal(t, 2, b.Depth())
}

func TestNullSource_NeverEnqueues(t *testing.T) {
	b := bridge.New(bridge.WithCapacity(10))
	b.Start()

	source := NewNullSource()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = source.Run(ctx, b)

	assert.Equal(t, 0, b.Depth())
}

func TestButtonComponentID(t *testing.T) {
	assert.Equal(t, "button_0", ButtonComponentID(0))
	assert.Equal(t, "button_3", ButtonComponentID(3))
}
