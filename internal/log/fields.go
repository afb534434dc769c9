// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Gateway fields
	FieldAttempt  = "attempt"
	FieldOutcome  = "outcome"
	FieldCode     = "code"
	FieldIntent   = "intent"
	FieldDomain   = "domain"
	FieldProvider = "provider"
	FieldModel    = "model"
	FieldRows     = "rows"

	// SQL fields. Raw proposer text is only ever logged at debug level.
	FieldRawSQL       = "raw_sql"
	FieldCanonicalSQL = "canonical_sql"

	// HTTP fields
	FieldMethod   = "method"
	FieldPath     = "path"
	FieldStatus   = "status"
	FieldDuration = "duration_ms"
	FieldRemote   = "remote_addr"
)
