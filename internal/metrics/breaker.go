package metrics

import "github.com/sony/gobreaker/v2"

// ObserveBreaker records a circuit breaker state transition.
func ObserveBreaker(name string, from, to gobreaker.State) {
	CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
	CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
