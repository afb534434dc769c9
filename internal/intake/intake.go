// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package intake screens raw user text before it reaches the gateway.
package intake

import (
	"regexp"
	"strings"

	"github.com/ManuGH/querygate/internal/metrics"
)

// Reason identifies why a query was stopped.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonTooShort Reason = "too_short"
	ReasonUnsafe   Reason = "unsafe_keyword"
	ReasonVague    Reason = "vague"
)

// User-facing messages.
const (
	MessageTooShort = "Query is too short or empty. Please ask a specific question about the tickets."
	MessageUnsafe   = "Unsafe keyword detected. This system only supports read-only analytics queries."
	MessageVague    = "Your query is a bit too broad. Please choose one of the options below:"
)

const minQueryLen = 2

// forbiddenSQL matches write verbs followed by an identifier, so a bare
// "any update?" still passes.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(UPDATE|DELETE|DROP|INSERT|ALTER|TRUNCATE|GRANT|REVOKE|EXEC|EXECUTE)\s+[A-Za-z_]+\b`)

var vagueQueries = map[string]struct{}{
	"show tickets": {},
	"tickets":      {},
	"all tickets":  {},
	"get tickets":  {},
	"data":         {},
	"info":         {},
	"show data":    {},
	"overview":     {},
}

// ClarificationOptions are offered for queries too broad to answer.
func ClarificationOptions() []string {
	return []string{"Ticket status summary", "Recent tickets", "Ticket trend"}
}

// Decision is the gate outcome. A zero Reason means the query may proceed.
type Decision struct {
	Reason  Reason
	Message string
	Options []string
}

// Allowed reports whether the query passed.
func (d Decision) Allowed() bool { return d.Reason == ReasonNone }

// Clarify reports whether the caller should answer with options instead of an error.
func (d Decision) Clarify() bool { return d.Reason == ReasonVague }

// Gate applies the input rules.
type Gate struct {
	maxClarificationTurns int
}

// New returns a Gate. Vague queries are only bounced back while the
// client-reported turn count is below maxClarificationTurns.
func New(maxClarificationTurns int) *Gate {
	return &Gate{maxClarificationTurns: maxClarificationTurns}
}

// Check screens query. turnCount is the number of clarification rounds the
// client has already gone through.
func (g *Gate) Check(query string, turnCount int) Decision {
	d := g.check(query, turnCount)
	if !d.Allowed() {
		metrics.RecordIntakeRejection(string(d.Reason))
	}
	return d
}

func (g *Gate) check(query string, turnCount int) Decision {
	cleaned := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(cleaned)) < minQueryLen {
		return Decision{Reason: ReasonTooShort, Message: MessageTooShort}
	}
	if forbiddenSQL.MatchString(cleaned) {
		return Decision{Reason: ReasonUnsafe, Message: MessageUnsafe}
	}
	if _, vague := vagueQueries[strings.Join(strings.Fields(cleaned), " ")]; vague && turnCount < g.maxClarificationTurns {
		return Decision{Reason: ReasonVague, Message: MessageVague, Options: ClarificationOptions()}
	}
	return Decision{}
}
