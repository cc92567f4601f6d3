// Package hardware defines the Source adapter boundary (C13): the one
// seam between physical GPIO edges and the Bridge. A real lgpio/rpigpio
// backend is out of scope here — only the interface and two software
// adapters (mock, null) are implemented, matching spec.md's framing of the
// underlying driver as a pure event source the core pipeline never reaches
// into.
package hardware

import (
	"context"

	"github.com/ocx/donationbox/internal/bridge"
)

// Source drives button/coin hardware and enqueues the edges it observes
// onto the bridge. Run blocks until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, b *bridge.Bridge) error
}
