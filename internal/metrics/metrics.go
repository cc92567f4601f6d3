// Package metrics holds the kiosk's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every Prometheus metric the pipeline records.
type Registry struct {
	QueueDepth           prometheus.Gauge
	EventsDropped        *prometheus.CounterVec
	DispatchDuration     *prometheus.HistogramVec
	DonationsTotal       *prometheus.CounterVec
	DonationAmountCents  *prometheus.CounterVec
	BroadcastSubscribers prometheus.Gauge
	CorrelationResets    *prometheus.CounterVec
}

// New creates and registers all pipeline metrics.
func New() *Registry {
	return &Registry{
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "donationbox_queue_depth",
			Help: "Current occupancy of the hardware event bridge queue.",
		}),

		EventsDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donationbox_events_dropped_total",
				Help: "Total number of hardware events dropped before dispatch.",
			},
			[]string{"reason"},
		),

		DispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "donationbox_dispatch_duration_seconds",
				Help:    "Time spent dispatching a single hardware event to its handlers.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		DonationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donationbox_donations_total",
				Help: "Total number of committed donations.",
			},
			[]string{"category_id"},
		),

		DonationAmountCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donationbox_donation_amount_cents_total",
				Help: "Total donated amount in cents.",
			},
			[]string{"category_id"},
		),

		BroadcastSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "donationbox_broadcast_subscribers",
			Help: "Current number of connected display-client subscribers.",
		}),

		CorrelationResets: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "donationbox_correlation_resets_total",
				Help: "Total number of correlation slot resets, by reason.",
			},
			[]string{"reason"},
		),
	}
}

// RecordDonation records a committed donation's category and amount.
func (r *Registry) RecordDonation(categoryID string, amountCents int64) {
	r.DonationsTotal.WithLabelValues(categoryID).Inc()
	r.DonationAmountCents.WithLabelValues(categoryID).Add(float64(amountCents))
}
