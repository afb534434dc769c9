// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package conversation

import (
	"context"
	"regexp"
	"strings"
)

var (
	summaryRe = regexp.MustCompile(`\b(how many|count|counts|total|totals|number of|breakdown|summary|summari[sz]e|overview|distribution|trends?|chart|graph|average|avg|percentage|split by|by (status|priority|branch|company|service|category|month|week|day|year))\b`)

	ppmRe       = regexp.MustCompile(`\b(ppm|preventive maintenance|preventative maintenance|planned maintenance)\b`)
	corporateRe = regexp.MustCompile(`\b(corporate|reactive)\b`)

	statusRe    = regexp.MustCompile(`\b(open|closed|pending|in[ -]progress|resolved|completed|cancell?ed|on hold|assigned|unassigned|escalated)\b`)
	priorityRe  = regexp.MustCompile(`\b(critical|urgent|high|medium|low)[ -]priority\b|\bpriority (?:is |of |= ?)?(critical|urgent|high|medium|low)\b|\b(urgent|critical)\b`)
	timeframeRe = regexp.MustCompile(`\b(today|yesterday|this (?:week|month|quarter|year)|last (?:week|month|quarter|year)|(?:last|past) \d+ (?:days?|weeks?|months?|quarters?|years?)|(?:january|february|march|april|june|july|august|september|october|november|december)(?: \d{4})?|may \d{4}|since \d{4}|(?:19|20)\d{2})\b`)

	companyRe  = regexp.MustCompile(`(?i:\b(?:company|client|customer))\s+(?:(?i:named|called)\s+)?["']?([A-Z][\w&.\-]*(?:\s+[A-Z][\w&.\-]*)*)`)
	branchRe   = regexp.MustCompile(`(?i:\b(?:branch|site|location))\s+(?:(?i:named|called)\s+)?["']?([A-Z][\w&.\-]*(?:\s+[A-Z][\w&.\-]*)*)`)
	inBranchRe = regexp.MustCompile(`(?i:\bin\s+(?:the\s+)?)([A-Z][\w\-]*)(?i:\s+branch)\b`)
)

var categoryVocabulary = []struct {
	re    *regexp.Regexp
	value string
}{
	{regexp.MustCompile(`\bcctv\b`), "CCTV"},
	{regexp.MustCompile(`\belectric(al|ian|ians)?\b`), "Electrician"},
	{regexp.MustCompile(`\bpaint(ing|er|ers)?\b`), "Painting"},
	{regexp.MustCompile(`\bcarpent(ry|er|ers)\b`), "Carpentry"},
	{regexp.MustCompile(`\bplumb(ing|er|ers)\b`), "Plumber"},
}

var widening = []struct {
	re   *regexp.Regexp
	keys []FilterKey
}{
	{regexp.MustCompile(`\b(all|every|any|across) (the )?compan(y|ies)\b`), []FilterKey{FilterCompany}},
	{regexp.MustCompile(`\b(all|every|any|across) (the )?(branch|branches|sites|locations)\b`), []FilterKey{FilterBranch}},
	{regexp.MustCompile(`\beverywhere\b`), []FilterKey{FilterCompany, FilterBranch}},
	{regexp.MustCompile(`\b(all|any) (the )?(status|statuses)\b`), []FilterKey{FilterStatus}},
	{regexp.MustCompile(`\b(all|any) (the )?priorit(y|ies)\b`), []FilterKey{FilterPriority}},
	{regexp.MustCompile(`\b(all|any) (the )?(categor(y|ies)|services?|service types?|trades?)\b`), []FilterKey{FilterCategory}},
	{regexp.MustCompile(`\b(all time|any time|all dates|ever)\b`), []FilterKey{FilterTimeframe}},
}

var clearAllRe = regexp.MustCompile(`\b((clear|reset|remove|drop) (all )?(the )?filters?|start over|no filters?)\b`)

// KeywordExtractor derives directives from fixed vocabulary. It never fails
// and needs no network, so it also serves as the fallback behind LLMExtractor.
type KeywordExtractor struct{}

// Extract implements Extractor.
func (KeywordExtractor) Extract(_ context.Context, utterance string, _ State) (Directives, error) {
	lower := strings.ToLower(utterance)
	d := Directives{Intent: IntentDetail, Set: make(map[FilterKey]string)}

	if summaryRe.MatchString(lower) {
		d.Intent = IntentSummary
	}
	d.Domain = lastDomainMention(lower)

	if clearAllRe.MatchString(lower) {
		d.ClearAll = true
	}
	for _, w := range widening {
		if w.re.MatchString(lower) {
			d.Clear = append(d.Clear, w.keys...)
		}
	}

	if m := statusRe.FindString(lower); m != "" {
		d.Set[FilterStatus] = normalizeStatus(m)
	}
	if m := priorityRe.FindStringSubmatch(lower); m != nil {
		d.Set[FilterPriority] = firstGroup(m)
	}
	if m := timeframeRe.FindString(lower); m != "" {
		d.Set[FilterTimeframe] = m
	}
	for _, c := range categoryVocabulary {
		if c.re.MatchString(lower) {
			d.Set[FilterCategory] = c.value
			break
		}
	}
	if m := companyRe.FindStringSubmatch(utterance); m != nil {
		d.Set[FilterCompany] = strings.TrimSpace(m[1])
	}
	if m := inBranchRe.FindStringSubmatch(utterance); m != nil {
		d.Set[FilterBranch] = m[1]
	} else if m := branchRe.FindStringSubmatch(utterance); m != nil {
		d.Set[FilterBranch] = strings.TrimSpace(m[1])
	}
	return d, nil
}

// lastDomainMention picks the domain named last, so "switch from ppm to
// corporate" lands on corporate. No mention means no switch.
func lastDomainMention(lower string) Domain {
	ppm := lastIndex(ppmRe, lower)
	corp := lastIndex(corporateRe, lower)
	switch {
	case ppm < 0 && corp < 0:
		return ""
	case ppm > corp:
		return DomainPPM
	default:
		return DomainCorporate
	}
}

func lastIndex(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}

func normalizeStatus(s string) string {
	switch s {
	case "in-progress":
		return "in progress"
	case "canceled":
		return "cancelled"
	}
	return s
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return m[0]
}
