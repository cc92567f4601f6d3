package hardware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ocx/donationbox/internal/bridge"
	"github.com/ocx/donationbox/internal/gpioevent"
)

const (
	// ButtonComponentPrefix names the logical component for each category
	// button; the position is appended ("button_0", "button_1", ...).
	ButtonComponentPrefix = "button_"
	// CoinValidatorComponent names the single coin-validator component.
	CoinValidatorComponent = "coin_validator"
)

// ButtonComponentID formats the component id for the button at position.
func ButtonComponentID(position int) string {
	return ButtonComponentPrefix + strconv.Itoa(position)
}

// ScriptStep is one synthetic hardware edge a MockSource replays.
type ScriptStep struct {
	// After is the delay since the previous step (or since Run started,
	// for the first step).
	After time.Duration
	// ButtonPosition, when non-nil, selects a button_pressed edge (set
	// CoinPulseCount instead for a coin_inserted edge).
	ButtonPosition *int
	// CoinPulseCount selects a coin_inserted edge.
	CoinPulseCount *int
}

// Button builds a ScriptStep for a button press.
func Button(after time.Duration, position int) ScriptStep {
	return ScriptStep{After: after, ButtonPosition: &position}
}

// Coin builds a ScriptStep for a coin pulse sequence.
func Coin(after time.Duration, pulseCount int) ScriptStep {
	return ScriptStep{After: after, CoinPulseCount: &pulseCount}
}

// MockSource replays a fixed script of button/coin edges on independent
// timers, the way the reference PIN_FACTORY=mock backend drives a kiosk
// without real GPIO hardware attached. Used by integration tests and local
// development.
type MockSource struct {
	script []ScriptStep
}

// NewMockSource builds a MockSource that replays script once Run starts.
func NewMockSource(script []ScriptStep) *MockSource {
	return &MockSource{script: script}
}

func (s *MockSource) Run(ctx context.Context, b *bridge.Bridge) error {
	slog.Info("hardware: mock source running", "steps", len(s.script))

	for _, step := range s.script {
		timer := time.NewTimer(step.After)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		switch {
		case step.ButtonPosition != nil:
			position := *step.ButtonPosition
			b.Enqueue(gpioevent.New(ButtonComponentID(position), "button_pressed", map[string]any{
				"position": position,
			}))
		case step.CoinPulseCount != nil:
			b.Enqueue(gpioevent.New(CoinValidatorComponent, "coin_inserted", map[string]any{
				"pulse_count": *step.CoinPulseCount,
			}))
		}
	}

	<-ctx.Done()
	return ctx.Err()
}
