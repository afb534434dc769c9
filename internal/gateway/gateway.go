// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway is the query safety pipeline: input gate, state merge,
// bounded proposal loop, execution and formatting.
//
// The gateway keeps no per-session state. The caller sends the previous
// conversation state with each request and receives the updated one back.
// Every request ends in exactly one outcome, which is recorded in metrics
// and the audit trail.
package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/querygate/internal/audit"
	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/executor"
	"github.com/ManuGH/querygate/internal/guard"
	"github.com/ManuGH/querygate/internal/intake"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/present"
	"github.com/ManuGH/querygate/internal/proposer"
	"github.com/ManuGH/querygate/internal/telemetry"
)

// User-facing summaries for failed requests.
const (
	SummaryExhausted   = "I'm sorry, I couldn't safely translate that into a database query. Could you try rephrasing?"
	SummaryUnavailable = "The query assistant is temporarily unavailable. Please try again in a moment."
	SummaryExecution   = "There was a problem retrieving the data from the database."
)

// Failure classifies unsuccessful requests.
type Failure uint8

const (
	FailureNone Failure = iota
	// FailureInputRejected means the input gate refused the text.
	FailureInputRejected
	// FailureGenerationExhausted means every candidate was rejected by the guard.
	FailureGenerationExhausted
	// FailureProposerUnavailable means the proposer timed out, errored or its breaker was open.
	FailureProposerUnavailable
	// FailureExecutionError means the accepted statement failed in the database.
	FailureExecutionError
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureInputRejected:
		return "input_rejected"
	case FailureGenerationExhausted:
		return "generation_exhausted"
	case FailureProposerUnavailable:
		return "proposer_unavailable"
	case FailureExecutionError:
		return "execution_error"
	default:
		return "unknown"
	}
}

// Request is one conversational turn.
type Request struct {
	Query string
	// TurnCount is the number of clarification rounds already answered.
	TurnCount int
	// State is the state returned with the previous response, or Default().
	State      conversation.State
	RemoteAddr string
}

// Result is the response plus the facts the transport and tests need.
type Result struct {
	Response present.Response
	// Outcome is the audit and metric label (audit.Outcome*).
	Outcome  string
	Failure  Failure
	Attempts int
	SQL      string
	Rows     int

	rejection *guard.Rejection
}

// Narrator writes the summary sentence for successful results.
type Narrator interface {
	Narrate(ctx context.Context, query string, rows []map[string]any) string
}

// Deps are the collaborators of a Gateway. Narrator and Trail are optional.
type Deps struct {
	Intake     *intake.Gate
	Extractor  conversation.Extractor
	Controller *Controller
	Executor   executor.Executor
	Narrator   Narrator
	Trail      *audit.Trail
	// MaxClarificationTurns bounds proposer clarifications the same way the
	// input gate bounds vague queries.
	MaxClarificationTurns int
}

// Gateway handles conversational query requests.
type Gateway struct {
	deps   Deps
	logger zerolog.Logger
}

// New returns a Gateway over deps.
func New(deps Deps) *Gateway {
	if deps.Trail == nil {
		deps.Trail = audit.NewTrail(nil, nil)
	}
	return &Gateway{deps: deps, logger: xglog.WithComponent("gateway")}
}

// Handle runs one turn. It never returns an error: every failure is folded
// into a response whose status says so.
func (g *Gateway) Handle(ctx context.Context, req Request) Result {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "gateway.handle")
	logger := xglog.WithContext(ctx, g.logger)
	ctx = logger.WithContext(ctx)

	res, state := g.handle(ctx, req)
	res.Response = res.Response.WithState(state)

	elapsed := time.Since(start)
	span.SetAttributes(telemetry.GatewayAttributes(string(state.Intent), string(state.Domain), len(state.Filters.Active()))...)
	span.SetAttributes(telemetry.OutcomeAttributes(res.Outcome, res.Attempts)...)
	var spanErr error
	if res.Failure != FailureNone {
		spanErr = errors.New(res.Failure.String())
	}
	telemetry.EndSpan(span, spanErr, res.Failure.String())

	metrics.RecordQuery(res.Outcome, elapsed)
	logger.Info().
		Str(xglog.FieldEvent, "gateway.done").
		Str(xglog.FieldOutcome, res.Outcome).
		Str(xglog.FieldIntent, string(state.Intent)).
		Str(xglog.FieldDomain, string(state.Domain)).
		Int(xglog.FieldAttempt, res.Attempts).
		Int64(xglog.FieldDuration, elapsed.Milliseconds()).
		Msg("query handled")

	rec := audit.Record{
		RequestID:    xglog.RequestIDFromContext(ctx),
		RemoteAddr:   req.RemoteAddr,
		Query:        req.Query,
		Outcome:      res.Outcome,
		Intent:       string(state.Intent),
		Domain:       string(state.Domain),
		Attempts:     res.Attempts,
		CanonicalSQL: res.SQL,
		Rows:         res.Rows,
		DurationMS:   elapsed.Milliseconds(),
	}
	if res.rejection != nil {
		rec.RejectionCode = res.rejection.Code.String()
		rec.RejectionDetail = res.rejection.Detail
	}
	g.deps.Trail.Record(ctx, rec)
	return res
}

func (g *Gateway) handle(ctx context.Context, req Request) (Result, conversation.State) {
	logger := xglog.FromContext(ctx)

	if g.deps.Intake != nil {
		d := g.deps.Intake.Check(req.Query, req.TurnCount)
		switch {
		case d.Clarify():
			return Result{
				Response: present.Clarify(d.Message, d.Options),
				Outcome:  audit.OutcomeClarification,
			}, conversation.Fallback(req.State)
		case !d.Allowed():
			return Result{
				Response: present.Error(d.Message, ""),
				Outcome:  audit.OutcomeInputRejected,
				Failure:  FailureInputRejected,
			}, conversation.Fallback(req.State)
		}
	}

	state := g.advance(ctx, req.Query, req.State)

	run := g.deps.Controller.Run(ctx, proposer.Request{
		Query:        req.Query,
		State:        state,
		AllowClarify: req.TurnCount < g.deps.MaxClarificationTurns,
	})
	res := Result{Attempts: len(run.Attempts), rejection: run.Rejection}

	switch run.Verdict {
	case VerdictClarify:
		res.Response = present.Clarify(run.Message, nil)
		res.Outcome = audit.OutcomeClarification
		return res, state
	case VerdictBlocked:
		res.Response = present.Error(run.Message, "")
		res.Outcome = audit.OutcomeBlocked
		return res, state
	case VerdictUnavailable:
		res.Response = present.Error(SummaryUnavailable, "")
		res.Outcome = audit.OutcomeProposerUnavailable
		res.Failure = FailureProposerUnavailable
		return res, state
	case VerdictExhausted:
		insight := "rejected"
		if run.Rejection != nil {
			insight = "rejected: " + run.Rejection.Code.String()
		}
		res.Response = present.Error(SummaryExhausted, insight)
		res.Outcome = audit.OutcomeGenerationExhausted
		res.Failure = FailureGenerationExhausted
		return res, state
	}

	res.SQL = run.SQL
	result, err := g.execute(ctx, run.SQL)
	if err != nil {
		detail := "The database rejected the query."
		var execErr *executor.Error
		if errors.As(err, &execErr) {
			detail = execErr.Detail()
		}
		logger.Warn().Err(err).Str(xglog.FieldEvent, "executor.failed").Msg("accepted statement failed")
		res.Response = present.Error(SummaryExecution, detail)
		res.Outcome = audit.OutcomeExecutionError
		res.Failure = FailureExecutionError
		return res, state
	}

	summary := ""
	if g.deps.Narrator != nil && len(result.Rows) > 0 {
		nctx, span := telemetry.StartSpan(ctx, "present.narrate")
		summary = g.deps.Narrator.Narrate(nctx, req.Query, result.Rows)
		telemetry.EndSpan(span, nil, "")
	}
	res.Rows = len(result.Rows)
	res.Response = present.Format(state.Intent, result.Columns, result.Rows, summary)
	res.Outcome = audit.OutcomeSuccess
	return res, state
}

func (g *Gateway) advance(ctx context.Context, utterance string, prev conversation.State) conversation.State {
	if g.deps.Extractor == nil {
		return conversation.Fallback(prev)
	}
	ctx, span := telemetry.StartSpan(ctx, "conversation.advance")
	state, err := conversation.Advance(ctx, g.deps.Extractor, utterance, prev)
	if err != nil {
		metrics.IncStateExtractionFailure()
		xglog.FromContext(ctx).Warn().
			Err(err).
			Str(xglog.FieldEvent, "state.extraction_failed").
			Msg("state extraction failed, keeping previous filters")
	}
	telemetry.EndSpan(span, err, "state_extraction_failed")
	return state
}

func (g *Gateway) execute(ctx context.Context, statement string) (executor.Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "executor.execute")
	result, err := g.deps.Executor.Execute(ctx, statement)
	driver := ""
	if d, ok := g.deps.Executor.(interface{ Driver() string }); ok {
		driver = d.Driver()
	}
	span.SetAttributes(telemetry.ExecutorAttributes(driver, len(result.Rows))...)
	telemetry.EndSpan(span, err, "execution_error")
	return result, err
}
