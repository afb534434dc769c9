// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "querygate_breaker_state",
		Help: "Breaker position per component: 0 closed, 1 half-open, 2 open",
	}, []string{"component"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "querygate_breaker_trips_total",
		Help: "Breaker transitions into the open position",
	}, []string{"component", "reason"}) // reason=threshold_exceeded|half_open_failure
)

// breakerPositions maps resilience.State values to gauge readings. Unknown
// states read as open so a dashboard never shows them as healthy.
var breakerPositions = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// SetCircuitBreakerState publishes the breaker position of component.
func SetCircuitBreakerState(component, state string) {
	v, ok := breakerPositions[state]
	if !ok {
		v = breakerPositions["open"]
	}
	breakerState.WithLabelValues(component).Set(v)
}

// RecordCircuitBreakerTrip counts one transition to open.
func RecordCircuitBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}
