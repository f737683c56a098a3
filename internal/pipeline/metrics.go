package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Subsystem: "pipeline",
		Name:      "events_delivered_total",
		Help:      "Events handled and acknowledged, per consumer.",
	}, []string{"consumer"})

	handlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bankaccounts",
		Subsystem: "pipeline",
		Name:      "handler_errors_total",
		Help:      "Delivery attempts that failed and will be redelivered, per consumer.",
	}, []string{"consumer"})

	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bankaccounts",
		Subsystem: "pipeline",
		Name:      "handler_duration_seconds",
		Help:      "Handler execution time per delivered event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"consumer"})
)
