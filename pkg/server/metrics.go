package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prsentry_webhook_events_total",
		Help: "Verified webhook deliveries by event and action.",
	}, []string{"event", "action"})

	dispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prsentry_dispatch_errors_total",
		Help: "Failed command dispatches by command.",
	}, []string{"command"})

	pushTriggersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prsentry_push_triggers_dropped_total",
		Help: "Push triggers dropped because a newer one was already pending or the pending one expired.",
	})
)
