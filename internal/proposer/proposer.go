// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package proposer drafts SQL candidates from natural language.
//
// A Proposer returns a classified Output or an error wrapping ErrUnavailable.
// LLMProposer is the production implementation; Cached and WithBreaker
// decorate any Proposer.
package proposer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/llm"
)

// ErrUnavailable marks transport failures: timeouts, provider errors and an
// open breaker. The gateway does not retry these.
var ErrUnavailable = errors.New("proposer unavailable")

const maxSQLTokens = 1500

// Request is one generation call.
type Request struct {
	Query string
	State conversation.State
	// PriorError is the previous rejection detail, empty on the first attempt.
	PriorError string
	// AllowClarify is false once the user has already answered a clarification.
	AllowClarify bool
}

// Proposer turns a request into a classified output.
type Proposer interface {
	Propose(ctx context.Context, req Request) (Output, error)
}

// Func adapts a function to Proposer.
type Func func(ctx context.Context, req Request) (Output, error)

// Propose calls f.
func (f Func) Propose(ctx context.Context, req Request) (Output, error) { return f(ctx, req) }

// LLMProposer asks a language model for SQL.
type LLMProposer struct {
	completer llm.Completer
	prompts   *PromptBuilder
}

// NewLLMProposer builds a proposer over c using prompts.
func NewLLMProposer(c llm.Completer, prompts *PromptBuilder) *LLMProposer {
	return &LLMProposer{completer: c, prompts: prompts}
}

// Propose implements Proposer. An empty model reply is returned as an empty
// SQL candidate so the guard rejects it and the retry loop carries on.
func (p *LLMProposer) Propose(ctx context.Context, req Request) (Output, error) {
	raw, err := p.completer.Complete(ctx, llm.Request{
		System:      SystemPrompt,
		Prompt:      p.prompts.Build(req),
		Temperature: 0,
		MaxTokens:   maxSQLTokens,
	})
	if errors.Is(err, llm.ErrEmptyResponse) {
		return SQL(""), nil
	}
	if err != nil {
		return Output{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Classify(raw), nil
}

// Name identifies the backing model.
func (p *LLMProposer) Name() string { return p.completer.Name() }
