// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/querygate/internal/guard"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
	"github.com/ManuGH/querygate/internal/proposer"
	"github.com/ManuGH/querygate/internal/telemetry"
)

// Verdict is how a controller run ended.
type Verdict uint8

const (
	// VerdictAccepted means a candidate passed the guard; Run.SQL is canonical.
	VerdictAccepted Verdict = iota + 1
	// VerdictClarify means the proposer asked the user a question.
	VerdictClarify
	// VerdictBlocked means the proposer refused on policy grounds.
	VerdictBlocked
	// VerdictExhausted means every allowed attempt was rejected by the guard.
	VerdictExhausted
	// VerdictUnavailable means the proposer could not be reached.
	VerdictUnavailable
)

func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictClarify:
		return "clarify"
	case VerdictBlocked:
		return "blocked"
	case VerdictExhausted:
		return "exhausted"
	case VerdictUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Attempt is one proposer call and what the guard made of it.
type Attempt struct {
	Output   proposer.Output
	Verdict  guard.Verdict
	Duration time.Duration
}

// Run is the outcome of Controller.Run.
type Run struct {
	Verdict Verdict
	// SQL is the canonical statement when Verdict is VerdictAccepted.
	SQL    string
	Tables []string
	// Message is the clarification or policy text for VerdictClarify and VerdictBlocked.
	Message  string
	Attempts []Attempt
	// Rejection is the last guard rejection, set for VerdictExhausted.
	Rejection *guard.Rejection
	// Err is the proposer failure for VerdictUnavailable.
	Err error
}

// Controller drives the bounded propose, classify, validate loop.
type Controller struct {
	proposer   proposer.Proposer
	guard      *guard.Guard
	maxRetries int
	backend    string
}

// NewController returns a Controller making at most maxRetries+1 proposer
// calls per run. Negative maxRetries is treated as zero.
func NewController(p proposer.Proposer, g *guard.Guard, maxRetries int) *Controller {
	if maxRetries < 0 {
		maxRetries = 0
	}
	c := &Controller{proposer: p, guard: g, maxRetries: maxRetries}
	if named, ok := p.(interface{ Name() string }); ok {
		c.backend = named.Name()
	}
	return c
}

// MaxAttempts is the proposer call ceiling per run.
func (c *Controller) MaxAttempts() int { return c.maxRetries + 1 }

// Run asks for candidates until one is accepted, the proposer answers with a
// sentinel, the proposer fails, or the attempt budget is spent. Attempts
// after the first carry the previous rejection as feedback.
func (c *Controller) Run(ctx context.Context, req proposer.Request) Run {
	logger := xglog.FromContext(ctx).With().Str(xglog.FieldComponent, "controller").Logger()
	run := Run{}
	defer func() { metrics.ObserveProposalAttempts(len(run.Attempts)) }()

	req.PriorError = ""
	for attempt := 0; attempt < c.MaxAttempts(); attempt++ {
		if run.Rejection != nil {
			req.PriorError = run.Rejection.Error()
		}

		out, elapsed, err := c.propose(ctx, req, attempt)
		if err != nil {
			metrics.RecordProposerCall("error", elapsed)
			logger.Warn().
				Err(err).
				Str(xglog.FieldEvent, "proposer.failed").
				Int(xglog.FieldAttempt, attempt+1).
				Msg("proposer unavailable")
			run.Verdict = VerdictUnavailable
			run.Err = err
			return run
		}
		metrics.RecordProposerCall(proposerResult(out.Kind), elapsed)

		switch out.Kind {
		case proposer.KindClarification:
			run.Attempts = append(run.Attempts, Attempt{Output: out, Duration: elapsed})
			run.Verdict = VerdictClarify
			run.Message = out.Text
			return run
		case proposer.KindPolicyBlocked:
			run.Attempts = append(run.Attempts, Attempt{Output: out, Duration: elapsed})
			run.Verdict = VerdictBlocked
			run.Message = out.Text
			return run
		}

		verdict := c.validate(ctx, out.Text)
		run.Attempts = append(run.Attempts, Attempt{Output: out, Verdict: verdict, Duration: elapsed})
		if verdict.Accepted() {
			metrics.RecordGuardVerdict("accepted")
			logger.Debug().
				Str(xglog.FieldEvent, "guard.accepted").
				Int(xglog.FieldAttempt, attempt+1).
				Str(xglog.FieldCanonicalSQL, verdict.SQL).
				Msg("candidate accepted")
			run.Verdict = VerdictAccepted
			run.SQL = verdict.SQL
			run.Tables = verdict.Tables
			run.Rejection = nil
			return run
		}

		rej := verdict.Rejection
		if rej == nil {
			// An accepted-shaped verdict without SQL cannot be executed.
			rej = &guard.Rejection{Code: guard.Malformed, Detail: "empty statement"}
		}
		metrics.RecordGuardVerdict(rej.Code.String())
		logger.Info().
			Str(xglog.FieldEvent, "guard.rejected").
			Int(xglog.FieldAttempt, attempt+1).
			Str(xglog.FieldCode, rej.Code.String()).
			Str("detail", rej.Detail).
			Msg("candidate rejected")
		logger.Debug().Str(xglog.FieldRawSQL, out.Text).Msg("rejected candidate text")
		run.Rejection = rej
	}

	run.Verdict = VerdictExhausted
	return run
}

func (c *Controller) propose(ctx context.Context, req proposer.Request, attempt int) (proposer.Output, time.Duration, error) {
	ctx, span := telemetry.StartSpan(ctx, "proposer.propose", telemetry.ProposerAttributes(c.backend, attempt+1)...)
	start := time.Now()
	out, err := c.proposer.Propose(ctx, req)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, proposer.ErrUnavailable) {
		err = errors.Join(proposer.ErrUnavailable, err)
	}
	if err == nil {
		span.SetAttributes(attribute.String(telemetry.ProposerKindKey, out.Kind.String()))
	}
	telemetry.EndSpan(span, err, "proposer_unavailable")
	return out, elapsed, err
}

func (c *Controller) validate(ctx context.Context, text string) guard.Verdict {
	_, span := telemetry.StartSpan(ctx, "guard.validate")
	v := c.guard.Validate(text)
	if v.Accepted() {
		span.SetAttributes(telemetry.GuardAttributes("accepted", v.Tables)...)
		telemetry.EndSpan(span, nil, "")
	} else {
		code := guard.Malformed.String()
		if v.Rejection != nil {
			code = v.Rejection.Code.String()
		}
		span.SetAttributes(telemetry.GuardAttributes(code, nil)...)
		telemetry.EndSpan(span, v.Err(), "guard_rejected")
	}
	return v
}

func proposerResult(k proposer.Kind) string {
	switch k {
	case proposer.KindClarification:
		return "clarification"
	case proposer.KindPolicyBlocked:
		return "blocked"
	default:
		return "sql"
	}
}
