package correlation

import "time"

// Config holds the CorrelationEngine's debounce/TTL tunables and the
// pulse-to-cents table. Defaults match the reference behavior exactly.
type Config struct {
	ButtonDebounce   time.Duration
	CoinDebounce     time.Duration
	TTL              time.Duration
	PulseToCents     map[int]int64
	MinDonationCents int64
}

// DefaultConfig returns the reference defaults: 2s button debounce, 2s coin
// debounce, 30s TTL, the standard pulse table, 1 cent minimum donation.
func DefaultConfig() Config {
	return Config{
		ButtonDebounce: 2 * time.Second,
		CoinDebounce:   2 * time.Second,
		TTL:            30 * time.Second,
		PulseToCents: map[int]int64{
			1: 10,
			2: 20,
			3: 50,
			4: 100,
			5: 200,
		},
		MinDonationCents: 1,
	}
}
