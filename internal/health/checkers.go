// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"time"

	"github.com/ManuGH/querygate/internal/resilience"
)

const defaultCheckTimeout = 2 * time.Second

// PingChecker checks a dependency with a bounded ping.
type PingChecker struct {
	name    string
	ping    func(ctx context.Context) error
	timeout time.Duration
}

// NewPingChecker returns a checker that is unhealthy whenever ping fails.
func NewPingChecker(name string, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, ping: ping, timeout: defaultCheckTimeout}
}

func (c *PingChecker) Name() string {
	return c.name
}

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if c.ping == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

// BreakerChecker reports a circuit breaker's state. An open breaker means
// the proposer is failing fast, which degrades the service without making it
// unready: requests still get a well-formed "unavailable" response.
type BreakerChecker struct {
	name    string
	breaker *resilience.CircuitBreaker
}

// NewBreakerChecker returns a checker for cb.
func NewBreakerChecker(name string, cb *resilience.CircuitBreaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: cb}
}

func (c *BreakerChecker) Name() string {
	return c.name
}

func (c *BreakerChecker) Check(context.Context) CheckResult {
	switch state := c.breaker.State(); state {
	case resilience.StateOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit open"}
	case resilience.StateHalfOpen:
		return CheckResult{Status: StatusDegraded, Message: "circuit half-open"}
	default:
		return CheckResult{Status: StatusHealthy, Message: string(state)}
	}
}

type informational struct {
	Checker
}

// Informational downgrades an unhealthy result to degraded, so the component
// shows up in verbose output without failing readiness.
func Informational(c Checker) Checker {
	return informational{Checker: c}
}

func (i informational) Check(ctx context.Context) CheckResult {
	res := i.Checker.Check(ctx)
	if res.Status == StatusUnhealthy {
		res.Status = StatusDegraded
	}
	return res
}
