// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package present

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/llm"
)

func TestVisuals(t *testing.T) {
	tests := []struct {
		name      string
		columns   []string
		rows      []map[string]any
		wantKPIs  []KPI
		wantChart string
	}{
		{
			name:     "single number is a kpi",
			columns:  []string{"total_tickets"},
			rows:     []map[string]any{{"total_tickets": int64(42)}},
			wantKPIs: []KPI{{Label: "Total Tickets", Value: int64(42)}},
		},
		{
			name:      "few categories draw a pie",
			columns:   []string{"Status", "n"},
			rows:      []map[string]any{{"Status": "Open", "n": int64(3)}, {"Status": "Closed", "n": int64(5)}},
			wantChart: ChartPie,
		},
		{
			name:      "value first column is detected",
			columns:   []string{"n", "Status"},
			rows:      []map[string]any{{"n": 3.0, "Status": "Open"}},
			wantChart: ChartPie,
		},
		{
			name:      "dates draw a line",
			columns:   []string{"month", "n"},
			rows:      []map[string]any{{"month": "2025-01", "n": int64(1)}, {"month": "2025-02", "n": int64(2)}},
			wantChart: ChartLine,
		},
		{
			name:    "many categories draw bars",
			columns: []string{"city", "n"},
			rows: []map[string]any{
				{"city": "Pune", "n": int64(1)}, {"city": "Delhi", "n": int64(2)}, {"city": "Goa", "n": int64(3)},
				{"city": "Agra", "n": int64(4)}, {"city": "Kochi", "n": int64(5)}, {"city": "Surat", "n": int64(6)},
			},
			wantChart: ChartBar,
		},
		{
			name:    "text only is nothing",
			columns: []string{"a", "b"},
			rows:    []map[string]any{{"a": "x", "b": "y"}},
		},
		{
			name:    "wide rows are nothing",
			columns: []string{"a", "b", "c"},
			rows:    []map[string]any{{"a": 1, "b": 2, "c": 3}},
		},
		{
			name:    "single text cell is nothing",
			columns: []string{"Status"},
			rows:    []map[string]any{{"Status": "Open"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kpis, charts := Visuals(tt.columns, tt.rows, "T")
			if tt.wantKPIs == nil {
				assert.Empty(t, kpis)
			} else {
				assert.Equal(t, tt.wantKPIs, kpis)
			}
			if tt.wantChart == "" {
				assert.Empty(t, charts)
				return
			}
			require.Len(t, charts, 1)
			assert.Equal(t, tt.wantChart, charts[0].Type)
			assert.Equal(t, "T", charts[0].Title)
			assert.Len(t, charts[0].Labels, len(tt.rows))
			assert.Len(t, charts[0].Values, len(tt.rows))
		})
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Total Tickets", Label("total_tickets"))
	assert.Equal(t, "Count(*)", Label("COUNT(*)"))
}

func TestFormat(t *testing.T) {
	empty := Format(conversation.IntentDetail, []string{"ID"}, nil, "")
	assert.Equal(t, StatusSuccess, empty.Status)
	assert.Equal(t, NoRowsSummary, empty.Summary)
	require.NotNil(t, empty.Insight)

	rows := []map[string]any{{"ID": int64(1)}, {"ID": int64(2)}}
	detail := Format(conversation.IntentDetail, []string{"ID"}, rows, "")
	assert.Equal(t, "Retrieved 2 record(s).", detail.Summary)
	assert.Equal(t, rows, detail.RawData)
	assert.Empty(t, detail.KPIs)

	kpi := Format(conversation.IntentSummary, []string{"total"}, []map[string]any{{"total": int64(7)}}, "")
	assert.Equal(t, "Here are your results.", kpi.Summary)
	require.Len(t, kpi.KPIs, 1)
	assert.Empty(t, kpi.RawData)

	narrated := Format(conversation.IntentSummary, []string{"total"}, []map[string]any{{"total": int64(7)}}, "Seven tickets.")
	assert.Equal(t, "Seven tickets.", narrated.Summary)
}

func TestResponse_JSONShape(t *testing.T) {
	state := conversation.Default().WithFilter(conversation.FilterCompany, "Acme")
	r := Error("nope", "rejected: malformed").WithState(state)

	b, err := json.Marshal(r)
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))

	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "rejected: malformed", body["insight"])
	assert.Equal(t, []any{}, body["kpis"])
	assert.Equal(t, []any{}, body["raw_data"])
	assert.Nil(t, body["options"])
	st := body["state"].(map[string]any)
	assert.Equal(t, "Acme", st["company_name"])

	c := Clarify("pick one", []string{"a", "b"})
	assert.Equal(t, StatusClarification, c.Status)
	assert.Equal(t, []string{"a", "b"}, c.Options)
	assert.Nil(t, Error("x", "").Insight)
}

func TestNarrator(t *testing.T) {
	var seen llm.Request
	n := NewNarrator(llm.CompleterFunc(func(_ context.Context, req llm.Request) (string, error) {
		seen = req
		return "  Three tickets are open.  ", nil
	}))
	rows := make([]map[string]any, 8)
	for i := range rows {
		rows[i] = map[string]any{"ID": i}
	}

	got := n.Narrate(context.Background(), "open tickets", rows)
	assert.Equal(t, "Three tickets are open.", got)
	assert.Equal(t, 200, seen.MaxTokens)
	assert.InDelta(t, 0.3, seen.Temperature, 1e-9)
	assert.Contains(t, seen.Prompt, "returned 8 rows")
	assert.Equal(t, 5, strings.Count(seen.Prompt, `"ID"`))

	_ = n.Narrate(context.Background(), "nothing", nil)
	assert.Contains(t, seen.Prompt, "could not retrieve any data")

	failing := NewNarrator(llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		return "", errors.New("429")
	}))
	assert.Equal(t, FallbackNarration, failing.Narrate(context.Background(), "q", rows))
}
