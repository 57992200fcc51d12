package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_webhook_events_total",
			Help: "Gateway events handled, by event kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	WebhookHandlingTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coursemart_webhook_handling_seconds",
			Help:    "Time taken to handle one gateway event",
			Buckets: prometheus.DefBuckets,
		},
	)

	PurchasesInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursemart_purchases_initiated_total",
			Help: "Checkout sessions opened, by whether a pending purchase was reused",
		},
		[]string{"reused"},
	)

	CheckoutSessionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coursemart_checkout_session_failures_total",
			Help: "Checkout session creations that failed after retries",
		},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry; safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(WebhookEvents, WebhookHandlingTime, PurchasesInitiated, CheckoutSessionFailures)
	})
}
