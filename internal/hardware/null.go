package hardware

import (
	"context"
	"log/slog"

	"github.com/ocx/donationbox/internal/bridge"
)

// NullSource is the Source used when ENABLE_GPIO is false: it never emits
// an edge, but still blocks on ctx so the dispatcher's lifetime isn't tied
// to a hardware loop that doesn't exist.
type NullSource struct{}

// NewNullSource builds a NullSource.
func NewNullSource() *NullSource { return &NullSource{} }

func (s *NullSource) Run(ctx context.Context, b *bridge.Bridge) error {
	slog.Info("hardware: GPIO disabled, running null source")
	<-ctx.Done()
	return ctx.Err()
}
