package registry

import (
	"database/sql"
	"time"

	"github.com/ocx/donationbox/internal/broadcast"
	"github.com/ocx/donationbox/internal/correlation"
	"github.com/ocx/donationbox/internal/donation"
	"github.com/ocx/donationbox/internal/pollstore"
)

// Container is the fixed set of dependencies a handler may consume, per
// spec: {event, container} where container exposes db_session_factory,
// broadcast_hub, correlation_engine, poll_store, donation_writer, clock.
// The dispatcher resolves this once at startup and passes the same
// instance to every handler invocation; there is no reflection-based
// injection by parameter name.
type Container struct {
	DB                *sql.DB
	BroadcastHub      *broadcast.Hub
	CorrelationEngine *correlation.Engine
	PollStore         pollstore.PollStore
	DonationWriter    *donation.Writer
	Clock             func() time.Time
}
