// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package llm adapts chat-completion backends to a single Completer interface.
//
// Callers build a Request (system + user text, sampling knobs) and receive the
// first choice as plain text. Provider selection happens once in New.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/querygate/internal/config"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var (
	// ErrEmptyResponse is returned when the backend answered without any text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNoAPIKey is returned by New when the selected provider needs a key.
	ErrNoAPIKey = errors.New("llm: api key is required")
	// ErrUnknownProvider is returned by New for unsupported provider names.
	ErrUnknownProvider = errors.New("llm: unknown provider")
)

// Request is a single-turn completion request.
type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
	// JSON asks the backend for a JSON object response.
	JSON bool
}

// Completer turns a Request into response text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	// Name identifies the backend for logs and metrics ("openai/<model>").
	Name() string
}

// CompleterFunc adapts a function to Completer. Used by tests and fakes.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Name implements Completer.
func (CompleterFunc) Name() string { return "func" }

// New builds the Completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w (provider %q)", ErrNoAPIKey, provider)
	}
	var (
		c   Completer
		err error
	)
	switch provider {
	case ProviderOpenAI, "groq", "":
		c, err = NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case ProviderGemini:
		c, err = NewGemini(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		c = WithTimeout(c, cfg.Timeout)
	}
	return c, nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

// WithTimeout bounds every Complete call on next by d.
func WithTimeout(next Completer, d time.Duration) Completer {
	return &timeoutCompleter{next: next, timeout: d}
}

func (t *timeoutCompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, req)
}

func (t *timeoutCompleter) Name() string { return t.next.Name() }
