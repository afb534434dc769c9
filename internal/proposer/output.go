// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proposer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel prefixes the model uses instead of SQL.
const (
	ClarifyPrefix     = "CLARIFY:"
	PolicyBlockPrefix = "POLICY_BLOCK:"

	// PolicyBlockSentence is the fixed sentence the model is told to emit.
	PolicyBlockSentence = PolicyBlockPrefix + " " + PolicyBlockMessage
	// PolicyBlockMessage is shown to the user for blocked requests.
	PolicyBlockMessage = "This request is outside the data this assistant can access."

	defaultClarification = "Could you please add more detail to your request?"
)

// Kind tags what a proposer produced.
type Kind uint8

const (
	KindSQL Kind = iota
	KindClarification
	KindPolicyBlocked
)

var kindNames = [...]string{
	KindSQL:           "sql",
	KindClarification: "clarification",
	KindPolicyBlocked: "policy_blocked",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Output is proposer output classified once at the boundary. Downstream code
// switches on Kind and never looks for sentinel prefixes again.
type Output struct {
	Kind Kind
	// Text is the SQL candidate, the clarification question, or the block message.
	Text string
}

// SQL wraps a SQL candidate.
func SQL(text string) Output { return Output{Kind: KindSQL, Text: text} }

// Clarification wraps a question for the user.
func Clarification(text string) Output { return Output{Kind: KindClarification, Text: text} }

// PolicyBlocked wraps a refusal.
func PolicyBlocked(text string) Output { return Output{Kind: KindPolicyBlocked, Text: text} }

type outputJSON struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// MarshalJSON encodes the output for the proposal cache.
func (o Output) MarshalJSON() ([]byte, error) {
	return json.Marshal(outputJSON{Kind: o.Kind.String(), Text: o.Text})
}

// UnmarshalJSON decodes an output written by MarshalJSON.
func (o *Output) UnmarshalJSON(data []byte) error {
	var raw outputJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, name := range kindNames {
		if name == raw.Kind {
			*o = Output{Kind: Kind(k), Text: raw.Text}
			return nil
		}
	}
	return fmt.Errorf("proposer: unknown output kind %q", raw.Kind)
}

var fenceRe = regexp.MustCompile("(?i)```(?:sql|mysql)?")

// Classify turns raw model text into an Output. Markdown fences are removed
// first. Sentinel prefixes match case-insensitively after trimming; anything
// else, including empty text, is a SQL candidate for the guard to judge.
func Classify(raw string) Output {
	text := strings.TrimSpace(fenceRe.ReplaceAllString(raw, ""))

	if rest, ok := cutPrefixFold(text, ClarifyPrefix); ok {
		if rest == "" {
			rest = defaultClarification
		}
		return Clarification(rest)
	}
	if rest, ok := cutPrefixFold(text, PolicyBlockPrefix); ok {
		if rest == "" {
			rest = PolicyBlockMessage
		}
		return PolicyBlocked(rest)
	}
	return SQL(text)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
