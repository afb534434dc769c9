// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package conversation

import "context"

// Extractor derives the directives carried by one utterance.
type Extractor interface {
	Extract(ctx context.Context, utterance string, prev State) (Directives, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, utterance string, prev State) (Directives, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, utterance string, prev State) (Directives, error) {
	return f(ctx, utterance, prev)
}

// Advance merges the directives ex derives from utterance into prev. When
// extraction fails the result is Fallback(prev) and the error is returned
// alongside it for logging; the state is usable either way.
func Advance(ctx context.Context, ex Extractor, utterance string, prev State) (State, error) {
	d, err := ex.Extract(ctx, utterance, prev)
	if err != nil {
		return Fallback(prev), err
	}
	return Merge(prev, d), nil
}
