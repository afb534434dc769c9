// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package present

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ManuGH/querygate/internal/conversation"
)

const (
	// NoRowsSummary is returned when a statement succeeds with zero rows.
	NoRowsSummary = "No tickets found for the selected criteria."
	noRowsInsight = "Try adjusting your filters or date range."

	defaultSummary = "Here are your results."
	chartTitle     = "Data Distribution"

	// pieMaxSlices is the largest categorical result drawn as a pie.
	pieMaxSlices = 5
)

var titleCaser = cases.Title(language.English)

// Visuals picks KPIs and charts for a result set:
//   - one row with one numeric column is a KPI
//   - two columns with one numeric column is a chart; date-like labels draw a
//     line, up to five categories draw a pie, anything else draws bars
//
// Other shapes produce nothing.
func Visuals(columns []string, rows []map[string]any, title string) ([]KPI, []Chart) {
	kpis, charts := []KPI{}, []Chart{}
	if len(rows) == 0 || len(columns) == 0 {
		return kpis, charts
	}
	first := rows[0]

	if len(rows) == 1 && len(columns) == 1 && isNumber(first[columns[0]]) {
		kpis = append(kpis, KPI{Label: Label(columns[0]), Value: first[columns[0]]})
		return kpis, charts
	}

	if len(columns) != 2 {
		return kpis, charts
	}
	labelCol, valueCol := "", ""
	switch {
	case isNumber(first[columns[1]]):
		labelCol, valueCol = columns[0], columns[1]
	case isNumber(first[columns[0]]):
		labelCol, valueCol = columns[1], columns[0]
	default:
		return kpis, charts
	}

	chart := Chart{Type: ChartBar, Title: title}
	for _, row := range rows {
		chart.Labels = append(chart.Labels, labelText(row[labelCol]))
		chart.Values = append(chart.Values, row[valueCol])
	}
	switch sample := labelText(first[labelCol]); {
	case strings.ContainsAny(sample, "-/"):
		chart.Type = ChartLine
	case len(rows) <= pieMaxSlices:
		chart.Type = ChartPie
	}
	return kpis, append(charts, chart)
}

// Label renders a column name as a KPI label ("total_tickets" -> "Total Tickets").
func Label(column string) string {
	return titleCaser.String(strings.ReplaceAll(column, "_", " "))
}

func labelText(v any) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprint(v)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// Format builds the success payload for an executed statement. Summary
// intent renders visuals; detail intent returns the rows. An empty summary
// falls back to a generic sentence.
func Format(intent conversation.Intent, columns []string, rows []map[string]any, summary string) Response {
	if len(rows) == 0 {
		r := newResponse(StatusSuccess, NoRowsSummary)
		insight := noRowsInsight
		r.Insight = &insight
		return r
	}

	if intent == conversation.IntentSummary {
		if summary == "" {
			summary = defaultSummary
		}
		r := newResponse(StatusSuccess, summary)
		r.KPIs, r.Charts = Visuals(columns, rows, chartTitle)
		return r
	}

	if summary == "" {
		summary = fmt.Sprintf("Retrieved %d record(s).", len(rows))
	}
	r := newResponse(StatusSuccess, summary)
	r.RawData = rows
	return r
}
