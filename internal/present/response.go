// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package present turns executed result sets into the dashboard payload
// returned to the front end.
package present

import (
	"github.com/ManuGH/querygate/internal/conversation"
)

// Status values carried in every response body.
const (
	StatusSuccess       = "success"
	StatusError         = "error"
	StatusClarification = "clarification_required"
)

// Chart types.
const (
	ChartBar  = "bar"
	ChartLine = "line"
	ChartPie  = "pie"
)

// KPI is a single headline number.
type KPI struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Chart is a two-column result rendered as labels and values.
type Chart struct {
	Type   string   `json:"type"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Values []any    `json:"values"`
}

// Response is the body of POST /api/v1/query.
type Response struct {
	Status  string              `json:"status"`
	Summary string              `json:"summary"`
	KPIs    []KPI               `json:"kpis"`
	Charts  []Chart             `json:"charts"`
	RawData []map[string]any    `json:"raw_data"`
	Insight *string             `json:"insight"`
	Options []string            `json:"options"`
	State   *conversation.State `json:"state"`
}

func newResponse(status, summary string) Response {
	return Response{
		Status:  status,
		Summary: summary,
		KPIs:    []KPI{},
		Charts:  []Chart{},
		RawData: []map[string]any{},
	}
}

// Error builds an error response. An empty insight is omitted.
func Error(summary, insight string) Response {
	r := newResponse(StatusError, summary)
	if insight != "" {
		r.Insight = &insight
	}
	return r
}

// Clarify builds a clarification response offering options.
func Clarify(summary string, options []string) Response {
	r := newResponse(StatusClarification, summary)
	if len(options) > 0 {
		r.Options = append([]string(nil), options...)
	}
	return r
}

// WithState attaches a copy of s to the response.
func (r Response) WithState(s conversation.State) Response {
	c := s.Clone()
	r.State = &c
	return r
}
