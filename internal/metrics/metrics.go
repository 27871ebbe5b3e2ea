package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics holds the notifier's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	eventsTotal          *prometheus.CounterVec
	decodeErrorsTotal    prometheus.Counter
	identityLookupsTotal *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	ledgerErrorsTotal    prometheus.Counter
}

// NewMetrics registers all collectors. If registry is nil,
// prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_events_total",
				Help: "Chain logs received, by transfer kind",
			},
			[]string{"kind"},
		),
		decodeErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_decode_errors_total",
				Help: "Transfer logs whose payload could not be decoded",
			},
		),
		identityLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_identity_lookups_total",
				Help: "GitHub identity lookups, by status",
			},
			[]string{"status"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifier_notifications_total",
				Help: "Notifications dispatched, by channel and status",
			},
			[]string{"channel", "status"},
		),
		ledgerErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "notifier_ledger_errors_total",
				Help: "Failed writes to the notification ledger",
			},
		),
	}
}

func (m *Metrics) RecordEvent(kind string) {
	if m == nil {
		return
	}
	m.eventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrorsTotal.Inc()
}

func (m *Metrics) RecordIdentityLookup(status string) {
	if m == nil {
		return
	}
	m.identityLookupsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordNotification(channel, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) RecordLedgerError() {
	if m == nil {
		return
	}
	m.ledgerErrorsTotal.Inc()
}

// Handler serves the collectors of gatherer in the Prometheus text format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
