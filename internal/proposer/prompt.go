// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proposer

import (
	"fmt"
	"strings"

	"github.com/ManuGH/querygate/internal/conversation"
)

// SystemPrompt frames every SQL generation call.
const SystemPrompt = "You are a strict MySQL compiler. Output ONLY raw valid SQL. No markdown, no backticks, no text."

// TableDoc documents one table for the model.
type TableDoc struct {
	Name    string
	Columns string
	Notes   string
}

// Schema is the data dictionary for the ticket tables, in prompt order.
var Schema = []TableDoc{
	{"corporate_tickets", "ID (int PK), TicketID (varchar), CorporateID (int), BranchID (int), Type (varchar), Service (varchar: the trade or category such as 'CCTV', 'Electrician', 'Painting', 'Carpentry', 'Plumber'), Subservice (varchar), param1, param2, param3, Price, Status, Priority, CreatedDate, CreatedTime, CreatedBy", "The core parent table."},
	{"corporate_ticket_status_history", "ID (int PK), TicketID (varchar FK), Status (varchar), Remarks (varchar), CreatedDate (date), CreatedTime (time), CreatedBy (varchar)", "Every status change a ticket goes through. Joins corporate_tickets on TicketID."},
	{"corporate_tickets_finance", "ID (int PK), TicketID (varchar FK), T_TotalCost (decimal), C_TotalPrice (decimal), Status (varchar)", "Financial totals for a ticket. Joins corporate_tickets on TicketID."},
	{"corporate_ticket_finance_status", "ID (int PK), Status (int), StatusName (varchar)", "Lookup for corporate_tickets_finance.Status."},
	{"corporate_tickets_quotation", "ID (int PK), TicketID (varchar FK), Status (int), Q_TotalAmount (decimal), CreatedDate (date)", "Quotation headers. Joins corporate_tickets on TicketID."},
	{"corporate_ticket_quotation_status", "ID (int PK), Status (int), StatusName (varchar)", "Lookup for corporate_tickets_quotation.Status."},
	{"corporate_tickets_quotation_items", "ID (int PK), TicketID (varchar FK), QuotationID (int FK), ItemName (varchar), ItemQty (int), ItemPrice (decimal), ItemTotalPrice (decimal)", "Quotation line items. Joins corporate_tickets_quotation on QuotationID."},
	{"corporate_ticket_payment_details", "ID (int PK), TicketID (varchar FK), PaymentType (varchar), PaymentAmount (decimal), PaymentDate (date)", "Payments made against a ticket."},
	{"corporate_ticket_general_service_report", "ID (int PK), TicketID (varchar FK), ReportDetails (varchar), CreatedDate (date)", "General service reports."},
	{"corporate_ticket_general_service_report_items", "ID (int PK), TicketID (varchar FK), GSRID (int FK), ItemDescription (varchar), Quantity (int)", "Line items for general service reports."},
	{"corporate_tickets_old", "ID (int PK), TicketID (varchar FK), CorporateID, BranchID, Type, Status, CreatedDate, CloseDate", "Archive of older tickets, shaped like corporate_tickets."},
	{"corporate_tickets_uploader", "ID (int PK), ClientTicketID, BranchCode, BranchID, Category, Status, IsParsed, Inserted", "Bulk upload staging rows not yet processed."},
}

const rules = `CRITICAL RULES:
1. OUTPUT FORMAT: Output ONLY the raw SQL query (no markdown, no sql tags). EXCEPTIONS: rule 15 requires the CLARIFY string and rule 19 requires the POLICY_BLOCK sentence.
2. ALWAYS USE ALIASES: Qualify every column with a table alias (ct.TicketID, not TicketID).
3. LIMIT RESULTS: Always append LIMIT %[1]d to detail queries unless a smaller limit is requested.
4. VALID JOINS ONLY: Join tables only when the question needs their data. Use LEFT JOINs to avoid losing rows.
5. NO HALLUCINATION: Use only the tables and columns listed above.
6. SINGLE QUOTES: Use single quotes for string literals (ct.Type = 'projects').
7. CASE INSENSITIVITY: Prefer wildcard matches when exact casing is unknown.
8. NEVER USE * WITH JOINS: When joining, select the relevant columns from each table explicitly.
9. DO NOT OVER-JOIN: General ticket details come from corporate_tickets alone unless history, finance or quotations are requested.
10. AMBIGUOUS STATUS: corporate_tickets and corporate_ticket_status_history both have Status. Always alias them (ct.Status AS CurrentStatus).
11. SERVICE CATEGORY MATCHING: Trades or categories (CCTV, Electrician, Painting, Plumbing, Carpentry) are filtered on the Service column, never Type. Example: WHERE ct.Service LIKE '%%Electrician%%'.
12. MANDATORY TIMEFRAMES FOR COUNTS: A request for only a count needs a date or timeframe. Without one, follow rule 15. With one, use SELECT COUNT(ct.ID).
13. RELATIVE DATES: Never hardcode dates for relative timeframes. Use MySQL date math, for example WHERE ct.CreatedDate >= DATE_SUB(CURDATE(), INTERVAL 1 YEAR).
14. TICKET HISTORY SEARCH: For a specific ticket ID, LEFT JOIN corporate_ticket_status_history on TicketID to include its history.
15. CLARIFICATION PROTOCOL: If the request is dangerously vague or fails rule 12, do not write SQL. Output exactly "CLARIFY: " followed by a polite question.
16. FOLLOW-UP RESOLUTION: Apply every filter in the conversation context below together with the new request.
17. LISTING AVAILABLE OPTIONS: When asked which values exist, use SELECT DISTINCT on the relevant column.
`

const (
	summaryRule = "18. The user wants a summary or chart. Use aggregations and GROUP BY. If you use GROUP BY, append LIMIT 10 (or the number the user asks for)."
	detailRule  = "18. The user wants raw details. Return standard rows and ALWAYS append LIMIT %d."
	blockRule   = "19. OUT OF SCOPE: If the request needs data that is not in the tables above (for example PPM tickets, employees or payroll), output exactly \"" + PolicyBlockSentence + "\""
	noClarify   = "20. The user already answered a clarification. Do NOT output CLARIFY again; write the best query you can."

	feedbackTemplate = "CRITICAL FIX REQUIRED: Your previous SQL attempt failed with this error: '%s'. You MUST write the complete, valid SQL query and ensure all single quotes are closed!"
)

// PromptBuilder renders generation prompts for one table allowlist.
type PromptBuilder struct {
	schema  string
	maxRows int
}

// NewPromptBuilder keeps only the Schema entries present in allowed, so the
// model is never shown a table the guard would reject.
func NewPromptBuilder(allowed []string, maxRows int) *PromptBuilder {
	set := make(map[string]bool, len(allowed))
	for _, t := range allowed {
		set[strings.ToLower(t)] = true
	}
	var b strings.Builder
	n := 0
	for _, t := range Schema {
		if !set[t.Name] {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. Table: `%s`\n   - Columns: %s.\n   - Notes: %s\n", n, t.Name, t.Columns, t.Notes)
	}
	return &PromptBuilder{schema: b.String(), maxRows: maxRows}
}

// Build returns the user prompt for req.
func (p *PromptBuilder) Build(req Request) string {
	var b strings.Builder
	b.WriteString("You are an elite MySQL data analyst.\nConvert the user's natural language request into a highly optimized, read-only SELECT query.\n\n")
	b.WriteString(p.schema)
	b.WriteString("\n")
	fmt.Fprintf(&b, rules, p.maxRows)

	state := req.State
	if state.Intent == conversation.IntentSummary {
		b.WriteString(summaryRule)
	} else {
		fmt.Fprintf(&b, detailRule, p.maxRows)
	}
	b.WriteString("\n")
	b.WriteString(blockRule)
	b.WriteString("\n")
	if !req.AllowClarify {
		b.WriteString(noClarify)
		b.WriteString("\n")
	}

	b.WriteString("\nConversation context:\n")
	fmt.Fprintf(&b, "- domain: %s\n", domainOrDefault(state.Domain))
	active := state.Filters.Active()
	for _, k := range conversation.FilterKeys() {
		if v, ok := active[k]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	if len(active) == 0 {
		b.WriteString("- no filters\n")
	}

	if req.PriorError != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, feedbackTemplate, req.PriorError)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nUser Query: %s\nSQL Query:", strings.TrimSpace(req.Query))
	return b.String()
}

func domainOrDefault(d conversation.Domain) conversation.Domain {
	if d.Valid() {
		return d
	}
	return conversation.DomainCorporate
}
