// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package present

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ManuGH/querygate/internal/llm"
	xglog "github.com/ManuGH/querygate/internal/log"
)

// FallbackNarration is returned when the narrator backend fails.
const FallbackNarration = "I could not find data matching that request. Please try asking about a specific ticket ID or category."

const (
	narrateSampleRows = 5
	narrateMaxTokens  = 200
	narrateTemp       = 0.3
)

const emptyNarrationPrompt = `You are a helpful corporate data assistant.
The user asked: %q
We could not retrieve any data for this specific request.
Write a polite, 2-sentence conversational response.
Apologize that you couldn't find exact data for that specific phrasing.
Suggest they ask about general metrics like 'closed tickets', 'tickets by service category', or 'specific ticket IDs'.
Do not use markdown formatting.`

const dataNarrationPrompt = `You are a helpful, professional corporate data assistant.
The user asked: %q
The database returned %d rows. Here is a sample of the raw data: %s
Write a 2 to 3 sentence conversational summary of this data to answer the user's question.
If it is a specific ticket, mention its current status and a brief note about its history.
Do not use markdown formatting. Do not output the raw JSON.`

// Narrator writes a short plain-language summary of a result set.
type Narrator struct {
	llm llm.Completer
}

// NewNarrator returns a Narrator backed by c.
func NewNarrator(c llm.Completer) *Narrator {
	return &Narrator{llm: c}
}

// Narrate never fails; backend errors yield FallbackNarration.
func (n *Narrator) Narrate(ctx context.Context, query string, rows []map[string]any) string {
	prompt := fmt.Sprintf(emptyNarrationPrompt, query)
	if len(rows) > 0 {
		sample := rows
		if len(sample) > narrateSampleRows {
			sample = sample[:narrateSampleRows]
		}
		b, err := json.Marshal(sample)
		if err != nil {
			b = []byte("[]")
		}
		prompt = fmt.Sprintf(dataNarrationPrompt, query, len(rows), b)
	}

	text, err := n.llm.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: narrateTemp,
		MaxTokens:   narrateMaxTokens,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		xglog.FromContext(ctx).Warn().
			Err(err).
			Str(xglog.FieldEvent, "narrator.failed").
			Str(xglog.FieldProvider, n.llm.Name()).
			Msg("summary generation failed, using fallback")
		return FallbackNarration
	}
	return strings.TrimSpace(text)
}
