// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuard(t *testing.T) *Guard {
	t.Helper()
	p, err := NewPolicy([]string{"tickets", "ticket_history", "Reporting.Daily"}, []string{"sleep", "benchmark"}, 500)
	require.NoError(t, err)
	return New(p)
}

func TestValidate_Accepts(t *testing.T) {
	g := testGuard(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"inject limit", "SELECT id FROM tickets", "select id from tickets limit 500"},
		{"clamp literal limit", "SELECT * FROM tickets LIMIT 100000", "select * from tickets limit 500"},
		{"keep small limit", "SELECT * FROM tickets LIMIT 10", "select * from tickets limit 10"},
		{"limit equal to ceiling", "SELECT * FROM tickets LIMIT 500", "select * from tickets limit 500"},
		{"keep offset on clamp", "SELECT * FROM tickets LIMIT 20, 100000", "select * from tickets limit 20, 500"},
		{"offset keyword form", "SELECT * FROM tickets LIMIT 100000 OFFSET 20", "select * from tickets limit 20, 500"},
		{"overwrite expression limit", "SELECT * FROM tickets LIMIT 10 + 5", "select * from tickets limit 500"},
		{"huge literal overflows", "SELECT * FROM tickets LIMIT 99999999999999999999999", "select * from tickets limit 500"},
		{"trailing semicolon", "SELECT id FROM tickets;", "select id from tickets limit 500"},
		{"case-insensitive table", "SELECT id FROM TICKETS", "select id from TICKETS limit 500"},
		{"comments dropped", "SELECT /* hint */ id FROM tickets", "select id from tickets limit 500"},
		{"qualified allowlist entry", "SELECT id FROM reporting.daily", "select id from reporting.daily limit 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Validate(tt.input)
			require.True(t, v.Accepted(), "rejected: %v", v.Err())
			assert.Equal(t, tt.want, v.SQL)
			assert.NoError(t, v.Err())
		})
	}
}

func TestValidate_GroupedQueryGetsInjectedLimit(t *testing.T) {
	g := testGuard(t)

	v := g.Validate("SELECT status, COUNT(*) FROM tickets GROUP BY status")
	require.True(t, v.Accepted(), "rejected: %v", v.Err())
	assert.True(t, strings.HasSuffix(v.SQL, " limit 500"), v.SQL)
	assert.Contains(t, strings.ToLower(v.SQL), "group by")
	assertSound(t, g.Policy(), v.SQL)
}

func TestValidate_ReportsTables(t *testing.T) {
	g := testGuard(t)

	v := g.Validate(`SELECT t.id, h.status FROM tickets t
		LEFT JOIN ticket_history h ON t.id = h.ticket_id
		WHERE t.id IN (SELECT ticket_id FROM ticket_history)`)
	require.True(t, v.Accepted(), "rejected: %v", v.Err())
	assert.Equal(t, []string{"ticket_history", "tickets"}, v.Tables)
}

func TestValidate_Rejects(t *testing.T) {
	g := testGuard(t)

	tests := []struct {
		name   string
		input  string
		code   Code
		detail string
	}{
		// parse
		{name: "empty", input: "", code: Malformed},
		{name: "whitespace", input: "   \n\t", code: Malformed},
		{name: "typo", input: "SELEC * FROM tickets", code: Malformed},
		{name: "unterminated string", input: "SELECT * FROM tickets WHERE name = 'open", code: Malformed},
		{name: "prose", input: "Here is your query: SELECT * FROM tickets", code: Malformed},

		// statement kind
		{name: "delete", input: "DELETE FROM tickets", code: NotReadOnly},
		{name: "update", input: "UPDATE tickets SET status = 'closed'", code: NotReadOnly},
		{name: "insert", input: "INSERT INTO tickets (id) VALUES (1)", code: NotReadOnly},
		{name: "insert select", input: "INSERT INTO tickets SELECT * FROM ticket_history", code: NotReadOnly},
		{name: "drop", input: "DROP TABLE tickets", code: NotReadOnly},
		{name: "set", input: "SET autocommit = 0", code: NotReadOnly},
		{name: "select for update", input: "SELECT * FROM tickets FOR UPDATE", code: NotReadOnly},
		{name: "share mode", input: "SELECT * FROM tickets LOCK IN SHARE MODE", code: NotReadOnly},
		{name: "stacked write", input: "SELECT * FROM tickets; DROP TABLE tickets;", code: NotReadOnly},
		{name: "stacked delete", input: "SELECT * FROM tickets;DELETE FROM tickets", code: NotReadOnly},
		{name: "stacked selects", input: "SELECT id FROM tickets; SELECT id FROM ticket_history", code: UnsupportedConstruct},

		// set operations
		{name: "union", input: "SELECT id FROM tickets UNION SELECT id FROM ticket_history", code: UnsupportedConstruct},
		{name: "union all", input: "SELECT id FROM tickets UNION ALL SELECT id FROM ticket_history", code: UnsupportedConstruct},
		{
			name:  "union in subquery",
			input: "SELECT * FROM tickets WHERE id IN (SELECT id FROM tickets UNION SELECT id FROM ticket_history)",
			code:  UnsupportedConstruct,
		},

		// functions
		{name: "sleep", input: "SELECT SLEEP(5) FROM tickets", code: ForbiddenFunction, detail: "sleep"},
		{name: "benchmark mixed case", input: "select BeNcHmArK(1000000, md5('x')) from tickets", code: ForbiddenFunction, detail: "benchmark"},
		{name: "sleep in where", input: "SELECT id FROM tickets WHERE id = 1 AND sleep(3) = 0", code: ForbiddenFunction, detail: "sleep"},
		{name: "sleep in subquery", input: "SELECT id FROM tickets WHERE id = (SELECT sleep(1) FROM ticket_history)", code: ForbiddenFunction, detail: "sleep"},
		{name: "executable comment", input: "SELECT id FROM tickets WHERE id = 1 /*!50000 AND SLEEP(5) */", code: ForbiddenFunction, detail: "sleep"},

		// tables
		{name: "unknown table", input: "SELECT * FROM users", code: TableNotAllowed, detail: "users"},
		{name: "unknown table upper", input: "SELECT * FROM USERS", code: TableNotAllowed, detail: "users"},
		{name: "join to unknown", input: "SELECT t.id FROM tickets t JOIN users u ON t.uid = u.id", code: TableNotAllowed, detail: "users"},
		{name: "schema qualified", input: "SELECT * FROM other.tickets", code: TableNotAllowed, detail: "other.tickets"},
		{name: "information schema", input: "SELECT table_name FROM information_schema.tables", code: TableNotAllowed, detail: "information_schema.tables"},
		{name: "derived table", input: "SELECT * FROM (SELECT * FROM secrets) AS s", code: TableNotAllowed, detail: "secrets"},
		{name: "subquery in where", input: "SELECT id FROM tickets WHERE id IN (SELECT id FROM audit_log)", code: TableNotAllowed, detail: "audit_log"},
		{name: "no table", input: "SELECT 1", code: UnsupportedConstruct},
		{name: "dual", input: "SELECT NOW() FROM dual", code: UnsupportedConstruct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := g.Validate(tt.input)
			require.False(t, v.Accepted(), "accepted: %s", v.SQL)
			require.NotNil(t, v.Rejection)
			assert.Equal(t, tt.code, v.Rejection.Code, "detail: %s", v.Rejection.Detail)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, v.Rejection.Detail)
			}
			assert.Empty(t, v.SQL)

			var rej *Rejection
			require.ErrorAs(t, v.Err(), &rej)
			assert.Equal(t, tt.code, rej.Code)
		})
	}
}

func TestValidate_CheckOrder(t *testing.T) {
	g := testGuard(t)

	// A forbidden call is reported before an unknown table.
	v := g.Validate("SELECT sleep(1) FROM users")
	require.NotNil(t, v.Rejection)
	assert.Equal(t, ForbiddenFunction, v.Rejection.Code)

	// A union is reported before a forbidden call.
	v = g.Validate("SELECT sleep(1) FROM tickets UNION SELECT 1 FROM tickets")
	require.NotNil(t, v.Rejection)
	assert.Equal(t, UnsupportedConstruct, v.Rejection.Code)
}

func TestValidate_Idempotent(t *testing.T) {
	g := testGuard(t)

	inputs := []string{
		"SELECT status, COUNT(*) FROM tickets GROUP BY status",
		"SELECT * FROM tickets LIMIT 100000",
		"SELECT t.id, h.status AS HistoryStatus FROM tickets t LEFT JOIN ticket_history h ON t.id = h.ticket_id WHERE t.id LIKE '%165%' ORDER BY t.id DESC LIMIT 5, 50",
		"SELECT COUNT(t.id) FROM tickets t WHERE t.created >= DATE_SUB(CURDATE(), INTERVAL 1 YEAR)",
		"SELECT DISTINCT status FROM tickets",
	}

	for _, in := range inputs {
		first := g.Validate(in)
		require.True(t, first.Accepted(), "rejected %q: %v", in, first.Err())

		second := g.Validate(first.SQL)
		require.True(t, second.Accepted(), "re-validation rejected %q: %v", first.SQL, second.Err())
		assert.Equal(t, first.SQL, second.SQL)
	}
}

func TestValidate_ConcurrentUse(t *testing.T) {
	g := testGuard(t)
	done := make(chan string, 16)
	for i := 0; i < 16; i++ {
		go func() {
			done <- g.Validate("SELECT * FROM tickets LIMIT 9999").SQL
		}()
	}
	for i := 0; i < 16; i++ {
		assert.Equal(t, "select * from tickets limit 500", <-done)
	}
}

func TestCode_String(t *testing.T) {
	for _, c := range Codes() {
		text, err := c.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, c.String(), string(text))
		assert.NotContains(t, c.String(), "code(")
	}
	_, err := Code(0).MarshalText()
	assert.Error(t, err)
}
