// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuGH/querygate/internal/llm"
)

// ErrBadStateJSON wraps state replies that are not a JSON object.
var ErrBadStateJSON = errors.New("conversation: state reply is not valid JSON")

const stateSystemPrompt = `You are the central State Manager for a database AI.
Your job is to read the User's Request, look at the Current State, and output an updated JSON State.

CRITICAL RULES FOR UPDATING STATE:
1. INTENT: Set to "summary" if asking for counts/breakdowns. Set to "detail" if asking for raw rows/details.
2. KEEP IT: If the user asks a follow-up (e.g., "what about closed ones?"), KEEP all previous filters and add the new one.
3. OVERWRITE IT: If the user mentions a new entity of the same type (e.g., changes "Delhi" to "Mumbai", or "Jan" to "Feb"), overwrite the old value.
4. DOMAIN SHIFT: If the user explicitly switches from "PPM" to "Corporate" (or vice versa), change the "domain" field.
5. THE "ALL" COMMAND: If the user says "across all companies", "everywhere", or "clear filters", change those fields to null.

Current State:
%s

Output ONLY valid JSON matching this exact structure. Do not output markdown tags. Do not explain.
`

// LLMExtractor asks a language model for the updated state and diffs the
// reply against the previous state.
type LLMExtractor struct {
	Completer llm.Completer
}

// NewLLMExtractor returns an extractor backed by c.
func NewLLMExtractor(c llm.Completer) *LLMExtractor {
	return &LLMExtractor{Completer: c}
}

// Extract implements Extractor.
func (e *LLMExtractor) Extract(ctx context.Context, utterance string, prev State) (Directives, error) {
	current, err := json.MarshalIndent(prev.normalized().Snapshot(), "", "  ")
	if err != nil {
		return Directives{}, err
	}
	reply, err := e.Completer.Complete(ctx, llm.Request{
		System:      fmt.Sprintf(stateSystemPrompt, current),
		Prompt:      utterance,
		Temperature: 0,
		JSON:        true,
	})
	if err != nil {
		return Directives{}, fmt.Errorf("state extraction: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(stripJSONFence(reply)), &snap); err != nil {
		return Directives{}, fmt.Errorf("%w: %v", ErrBadStateJSON, err)
	}
	return Diff(prev, snap.State()), nil
}

// Diff returns the directives that turn prev into next under Merge.
func Diff(prev, next State) Directives {
	prev, next = prev.normalized(), next.normalized()
	d := Directives{Intent: next.Intent, Set: make(map[FilterKey]string)}
	if next.Domain != prev.Domain {
		d.Domain = next.Domain
	}
	for _, k := range filterKeys {
		pv, pok := prev.Filters.Get(k)
		nv, nok := next.Filters.Get(k)
		switch {
		case nok && (!pok || nv != pv):
			d.Set[k] = nv
		case !nok && pok:
			d.Clear = append(d.Clear, k)
		}
	}
	return d
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
