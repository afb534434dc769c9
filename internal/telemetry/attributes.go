// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Gateway attributes
	GatewayIntentKey   = "gateway.intent"
	GatewayDomainKey   = "gateway.domain"
	GatewayOutcomeKey  = "gateway.outcome"
	GatewayAttemptsKey = "gateway.attempts"
	GatewayFiltersKey  = "gateway.filters"

	// Proposer attributes
	ProposerBackendKey = "proposer.backend"
	ProposerAttemptKey = "proposer.attempt"
	ProposerKindKey    = "proposer.kind"

	// Guard attributes
	GuardVerdictKey = "guard.verdict"
	GuardTablesKey  = "guard.tables"

	// Executor attributes
	ExecutorDriverKey = "db.system"
	ExecutorRowsKey   = "db.rows"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// GatewayAttributes describes the merged conversation state of a request.
func GatewayAttributes(intent, domain string, activeFilters int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(GatewayIntentKey, intent),
		attribute.String(GatewayDomainKey, domain),
		attribute.Int(GatewayFiltersKey, activeFilters),
	}
}

// OutcomeAttributes records how a request ended.
func OutcomeAttributes(outcome string, attempts int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(GatewayOutcomeKey, outcome),
		attribute.Int(GatewayAttemptsKey, attempts),
	}
}

// ProposerAttributes describes one proposer call.
func ProposerAttributes(backend string, attempt int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if backend != "" {
		attrs = append(attrs, attribute.String(ProposerBackendKey, backend))
	}
	return append(attrs, attribute.Int(ProposerAttemptKey, attempt))
}

// GuardAttributes describes a guard verdict. tables is empty for rejections.
func GuardAttributes(verdict string, tables []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(GuardVerdictKey, verdict)}
	if len(tables) > 0 {
		attrs = append(attrs, attribute.StringSlice(GuardTablesKey, tables))
	}
	return attrs
}

// ExecutorAttributes describes one executed statement.
func ExecutorAttributes(driver string, rows int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ExecutorDriverKey, driver),
		attribute.Int(ExecutorRowsKey, rows),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
