// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xwb1989/sqlparser"
)

// assertSound re-parses an accepted statement and checks every structural guarantee.
func assertSound(t testing.TB, p *Policy, sql string) {
	t.Helper()

	stmt, err := sqlparser.Parse(sql)
	require.NoError(t, err, "canonical SQL must parse: %s", sql)

	sel, ok := stmt.(*sqlparser.Select)
	require.True(t, ok, "canonical SQL must be a SELECT, got %T", stmt)
	require.Empty(t, sel.Lock)

	require.NotNil(t, sel.Limit, "limit missing: %s", sql)
	lit, ok := sel.Limit.Rowcount.(*sqlparser.SQLVal)
	require.True(t, ok, "limit must be a literal: %s", sql)
	require.Equal(t, sqlparser.IntVal, lit.Type)
	n, err := strconv.Atoi(string(lit.Val))
	require.NoError(t, err)
	require.LessOrEqual(t, n, p.MaxRowLimit())

	tables := 0
	err = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Union:
			require.Nil(t, n, "union in accepted SQL: %s", sql)
		case *sqlparser.FuncExpr:
			if n != nil {
				require.False(t, p.Forbids(n.Name.Lowered()), "forbidden call in %s", sql)
			}
		case *sqlparser.AliasedTableExpr:
			if tn, ok := n.Expr.(sqlparser.TableName); ok && qualifiedName(tn) != "dual" {
				tables++
				require.True(t, p.AllowsTable(qualifiedName(tn)), "table %s not allowed in %s", qualifiedName(tn), sql)
			}
		}
		return true, nil
	}, sel)
	require.NoError(t, err)
	require.Positive(t, tables)
}

var (
	genColumns   = []string{"*", "id", "t.id", "status", "COUNT(*)", "SLEEP(1)", "benchmark(10, 1)", "UPPER(name)", "(SELECT MAX(id) FROM users)"}
	genTables    = []string{"tickets", "TICKETS", "ticket_history", "users", "mysql.user", "tickets t", "(SELECT id FROM secrets) s", "(SELECT id FROM tickets) s"}
	genWhere     = []string{"", " WHERE id = 1", " WHERE status = 'open'", " WHERE id IN (SELECT id FROM users)", " WHERE sleep(2) = 0", " WHERE id IN (SELECT id FROM tickets UNION SELECT id FROM ticket_history)"}
	genGroup     = []string{"", " GROUP BY status", " GROUP BY status HAVING COUNT(*) > 2"}
	genLimit     = []string{"", " LIMIT 5", " LIMIT 500", " LIMIT 501", " LIMIT 100000", " LIMIT 3, 90000", " LIMIT 1 + 1", " LIMIT 10 OFFSET 2"}
	genSuffix    = []string{"", ";", "; DROP TABLE tickets", " FOR UPDATE", " UNION SELECT id FROM tickets", "; SELECT 1"}
	genPrefixes  = []string{"SELECT ", "select ", "SELECT DISTINCT ", "DELETE FROM tickets WHERE id IN (SELECT ", "WITH x AS (SELECT 1) SELECT "}
	forbiddenSet = []string{"sleep", "benchmark"}
)

func pick(r *rand.Rand, options []string) string {
	return options[r.Intn(len(options))]
}

func generateCandidate(r *rand.Rand) string {
	var b strings.Builder
	b.WriteString(pick(r, genPrefixes))
	b.WriteString(pick(r, genColumns))
	b.WriteString(" FROM ")
	b.WriteString(pick(r, genTables))
	b.WriteString(pick(r, genWhere))
	b.WriteString(pick(r, genGroup))
	b.WriteString(pick(r, genLimit))
	b.WriteString(pick(r, genSuffix))
	return b.String()
}

func TestValidate_SoundnessProperty(t *testing.T) {
	p, err := NewPolicy([]string{"tickets", "ticket_history"}, forbiddenSet, 500)
	require.NoError(t, err)
	g := New(p)

	r := rand.New(rand.NewSource(20251018))
	accepted := 0
	for i := 0; i < 3000; i++ {
		candidate := generateCandidate(r)
		v := g.Validate(candidate)
		if !v.Accepted() {
			require.NotNil(t, v.Rejection, "rejected without a reason: %q", candidate)
			continue
		}
		accepted++
		assertSound(t, p, v.SQL)

		again := g.Validate(v.SQL)
		require.True(t, again.Accepted(), "re-validation rejected %q", v.SQL)
		require.Equal(t, v.SQL, again.SQL)

		lower := strings.ToLower(candidate)
		require.NotContains(t, lower, "users", "accepted a disallowed table: %q", candidate)
		require.NotContains(t, lower, "secrets", "accepted a disallowed table: %q", candidate)
		require.NotContains(t, lower, "drop table", "accepted a write: %q", candidate)
	}
	require.Positive(t, accepted, "generator never produced an acceptable candidate")
}

func FuzzValidate(f *testing.F) {
	seeds := []string{
		"SELECT * FROM tickets",
		"SELECT * FROM tickets; DROP TABLE tickets;",
		"SELECT status, COUNT(*) FROM tickets GROUP BY status",
		"SELECT * FROM tickets LIMIT 100000",
		"SELECT sleep(5) FROM tickets",
		"SELECT id FROM tickets UNION SELECT id FROM users",
		"SELECT id FROM tickets WHERE id = 1 /*!50000 AND SLEEP(5) */",
		"SELECT * FROM (SELECT * FROM users) u",
		"SELECT * FROM tickets LIMIT 1 OFFSET 9999999999999999999999",
		"",
		"/*",
		"SELECT 'unterminated",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	p, err := NewPolicy([]string{"tickets"}, forbiddenSet, 500)
	if err != nil {
		f.Fatal(err)
	}
	g := New(p)

	f.Fuzz(func(t *testing.T, candidate string) {
		v := g.Validate(candidate)
		if !v.Accepted() {
			if v.Rejection == nil {
				t.Fatalf("rejected without reason: %q", candidate)
			}
			return
		}
		assertSound(t, p, v.SQL)
		if again := g.Validate(v.SQL); again.SQL != v.SQL {
			t.Fatalf("validation drifted: %q -> %q", v.SQL, again.SQL)
		}
	})
}
