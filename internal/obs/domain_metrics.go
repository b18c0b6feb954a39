package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by instance, operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CartEventsTotal counts lifecycle events dispatched and whether listeners vetoed them.
	CartEventsTotal *prometheus.CounterVec
	// CartStoreDuration records session store round trips in milliseconds.
	CartStoreDuration *prometheus.HistogramVec
	// CartLockWaitDuration records how long a mutation waited for the session lock.
	CartLockWaitDuration prometheus.Histogram
	// CartTotalsComputed counts subtotal/total derivations.
	CartTotalsComputed prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and outcome.",
		}, []string{"instance", "operation", "result"})
		CartEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_events_total",
			Help:      "Count of dispatched cart lifecycle events by outcome.",
		}, []string{"event", "result"})
		CartStoreDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_store_duration_ms",
			Help:      "Latency of cart session store operations in milliseconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		}, []string{"driver", "operation"})
		CartLockWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_lock_wait_ms",
			Help:      "Time spent waiting for a cart session lock in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		})
		CartTotalsComputed = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_totals_computed_total",
			Help:      "Number of subtotal and total derivations.",
		})

		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
		mustRegisterCollector(reg, CartEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartEventsTotal = v
			}
		})
		mustRegisterCollector(reg, CartStoreDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CartStoreDuration = v
			}
		})
		mustRegisterCollector(reg, CartLockWaitDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				CartLockWaitDuration = v
			}
		})
		mustRegisterCollector(reg, CartTotalsComputed, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				CartTotalsComputed = v
			}
		})
	})
}

// ObserveCartMutation increments the mutation counter when metrics are registered.
func ObserveCartMutation(instance, operation, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(instance, operation, result).Inc()
	}
}

// ObserveCartEvent increments the lifecycle event counter when metrics are registered.
func ObserveCartEvent(event, result string) {
	if CartEventsTotal != nil {
		CartEventsTotal.WithLabelValues(event, result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
