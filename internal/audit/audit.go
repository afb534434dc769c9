// SPDX-License-Identifier: MIT

// Package audit records every gateway decision as a structured audit event
// and, optionally, as a row in a local SQLite query history.
// Events follow the WHO/WHAT/WHEN pattern for forensics.
package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/querygate/internal/log"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Query events, one per gateway request.
	EventQueryAnswered       EventType = "query.answered"
	EventQueryClarification  EventType = "query.clarification"
	EventQueryBlocked        EventType = "query.blocked"
	EventQueryInputRejected  EventType = "query.input_rejected"
	EventQueryExhausted      EventType = "query.generation_exhausted"
	EventQueryUnavailable    EventType = "query.proposer_unavailable"
	EventQueryExecutionError EventType = "query.execution_error"

	// Operator events
	EventValidate EventType = "guard.validate"

	// API access events
	EventAPIRateLimit EventType = "api.ratelimit"
	EventAuthFailure  EventType = "auth.failure"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	Actor      string            `json:"actor"`             // WHO: remote address or "system"
	Action     string            `json:"action"`            // WHAT: human-readable action description
	Resource   string            `json:"resource"`          // endpoint or table set
	Result     string            `json:"result"`            // success, failure, denied
	RemoteAddr string            `json:"remote_addr"`       // Client IP address
	RequestID  string            `json:"request_id"`        // Correlation ID
	Details    map[string]string `json:"details,omitempty"` // Additional context
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith wraps an existing logger. Tests use it to capture output.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str("event_type", string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.RemoteAddr != "" {
		logEvent.Str("remote_addr", event.RemoteAddr)
	}
	if event.RequestID != "" {
		logEvent.Str(log.FieldRequestID, event.RequestID)
	}
	for key, value := range event.Details {
		logEvent.Str(key, value)
	}

	logEvent.Msg("audit event")
}

// LogFromContext fills the request ID from ctx before logging.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.RequestID == "" {
		event.RequestID = log.RequestIDFromContext(ctx)
	}
	l.Log(event)
}

// Query logs the audit event for one gateway request.
func (l *Logger) Query(ctx context.Context, rec Record) {
	result := "success"
	switch rec.Outcome {
	case OutcomeSuccess, OutcomeClarification:
	case OutcomeBlocked, OutcomeInputRejected:
		result = "denied"
	default:
		result = "failure"
	}

	details := map[string]string{
		"outcome":     rec.Outcome,
		"intent":      rec.Intent,
		"domain":      rec.Domain,
		"attempts":    strconv.Itoa(rec.Attempts),
		"rows":        strconv.Itoa(rec.Rows),
		"duration_ms": strconv.FormatInt(rec.DurationMS, 10),
	}
	if rec.CanonicalSQL != "" {
		details[log.FieldCanonicalSQL] = rec.CanonicalSQL
	}
	if rec.RejectionCode != "" {
		details["rejection_code"] = rec.RejectionCode
		details["rejection_detail"] = rec.RejectionDetail
	}

	l.LogFromContext(ctx, Event{
		Timestamp:  rec.Timestamp,
		Type:       eventTypeFor(rec.Outcome),
		Actor:      actor(rec.RemoteAddr),
		Action:     "natural language query",
		Resource:   "/api/v1/query",
		Result:     result,
		RemoteAddr: rec.RemoteAddr,
		RequestID:  rec.RequestID,
		Details:    details,
	})
}

// RateLimitExceeded logs rate limit violations.
func (l *Logger) RateLimitExceeded(remoteAddr, endpoint string) {
	l.Log(Event{
		Type:       EventAPIRateLimit,
		Actor:      actor(remoteAddr),
		Action:     "rate limit exceeded",
		Resource:   endpoint,
		Result:     "denied",
		RemoteAddr: remoteAddr,
	})
}

// AuthFailure logs a request to an operator route without a valid token.
func (l *Logger) AuthFailure(remoteAddr, endpoint, reason string) {
	l.Log(Event{
		Type:       EventAuthFailure,
		Actor:      actor(remoteAddr),
		Action:     "operator authentication",
		Resource:   endpoint,
		Result:     "denied",
		RemoteAddr: remoteAddr,
		Details:    map[string]string{"reason": reason},
	})
}

// Validate logs an operator guard check.
func (l *Logger) Validate(ctx context.Context, remoteAddr string, accepted bool, code string) {
	result := "success"
	if !accepted {
		result = "failure"
	}
	details := map[string]string{}
	if code != "" {
		details["rejection_code"] = code
	}
	l.LogFromContext(ctx, Event{
		Type:       EventValidate,
		Actor:      actor(remoteAddr),
		Action:     "validated statement",
		Resource:   "/api/v1/validate",
		Result:     result,
		RemoteAddr: remoteAddr,
		Details:    details,
	})
}

func actor(remoteAddr string) string {
	if remoteAddr == "" {
		return "system"
	}
	return remoteAddr
}

func eventTypeFor(outcome string) EventType {
	switch outcome {
	case OutcomeSuccess:
		return EventQueryAnswered
	case OutcomeClarification:
		return EventQueryClarification
	case OutcomeBlocked:
		return EventQueryBlocked
	case OutcomeInputRejected:
		return EventQueryInputRejected
	case OutcomeGenerationExhausted:
		return EventQueryExhausted
	case OutcomeProposerUnavailable:
		return EventQueryUnavailable
	default:
		return EventQueryExecutionError
	}
}
