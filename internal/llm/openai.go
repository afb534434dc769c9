// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ContentGenerator is the subset of llms.Model used by OpenAI. fake.LLM satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// OpenAI talks to any OpenAI-compatible chat endpoint (OpenAI, Groq, vLLM).
type OpenAI struct {
	model ContentGenerator
	name  string
}

// NewOpenAI builds a client for model at baseURL. An empty baseURL uses the library default.
func NewOpenAI(apiKey, model, baseURL string) (*OpenAI, error) {
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAI{model: m, name: ProviderOpenAI + "/" + model}, nil
}

// NewOpenAIWith wraps an existing generator.
func NewOpenAIWith(gen ContentGenerator, name string) *OpenAI {
	return &OpenAI{model: gen, name: name}
}

// Complete implements Completer.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]llms.MessageContent, 0, 2)
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSON {
		opts = append(opts, llms.WithJSONMode())
	}

	resp, err := o.model.GenerateContent(ctx, msgs, opts...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", o.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

// Name implements Completer.
func (o *OpenAI) Name() string { return o.name }
