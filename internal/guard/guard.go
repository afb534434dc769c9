// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package guard statically verifies proposed SQL against the read-only policy.
//
// Validation is structural: the candidate is parsed into a MySQL syntax tree and
// every rule is checked on the tree, never on keywords in the raw text. An
// accepted candidate is re-serialized from the (possibly rewritten) tree, and
// only that canonical text may reach the database.
//
// Checks run in a fixed order and the first failure wins:
//
//  1. parse (Malformed)
//  2. statement kind, exactly one SELECT (NotReadOnly / UnsupportedConstruct)
//  3. set operations (UnsupportedConstruct)
//  4. function calls against the deny list (ForbiddenFunction)
//  5. table references against the allowlist (TableNotAllowed)
//  6. outer LIMIT injected, clamped or overwritten to the policy ceiling
package guard

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"
)

// Guard validates candidates against a Policy. It is safe for concurrent use.
type Guard struct {
	policy *Policy
}

// New returns a Guard enforcing p.
func New(p *Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the policy this guard enforces.
func (g *Guard) Policy() *Policy {
	return g.policy
}

// Validate checks text and returns either the canonical statement or a classified rejection.
// Validating an accepted statement's SQL again yields the identical SQL.
func (g *Guard) Validate(text string) Verdict {
	stmts, err := parseAll(text)
	if err != nil {
		return rejected(Malformed, "%s", err.Error())
	}
	if len(stmts) > 1 {
		for _, s := range stmts {
			if !isSelectShaped(s) {
				return rejected(NotReadOnly, "multiple statements including %s", statementKind(s))
			}
		}
		return rejected(UnsupportedConstruct, "multiple statements are not allowed")
	}

	sel, verdict := rootSelect(stmts[0])
	if sel == nil {
		return verdict
	}

	if v, bad := g.checkSetOperations(sel); bad {
		return v
	}
	if v, bad := g.checkFunctions(sel); bad {
		return v
	}
	tables, v, bad := g.checkTables(sel)
	if bad {
		return v
	}

	// Comments never reach the database.
	sel.Comments = nil
	g.enforceLimit(sel)

	return Verdict{SQL: sqlparser.String(sel), Tables: tables}
}

var errEmpty = errors.New("empty statement")

// parseAll tokenizes every statement in text. Statement separators are
// honoured so a trailing write can never hide behind a leading SELECT.
func parseAll(text string) (stmts []sqlparser.Statement, err error) {
	if strings.TrimSpace(text) == "" {
		return nil, errEmpty
	}
	// The generated parser can panic on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			stmts, err = nil, fmt.Errorf("parser failure: %v", r)
		}
	}()
	tokens := sqlparser.NewStringTokenizer(text)
	for {
		stmt, perr := sqlparser.ParseNext(tokens)
		if errors.Is(perr, io.EOF) {
			break
		}
		if perr != nil {
			return nil, perr
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
	if len(stmts) == 0 {
		return nil, errEmpty
	}
	return stmts, nil
}

func isSelectShaped(stmt sqlparser.Statement) bool {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return true
	default:
		return false
	}
}

func statementKind(stmt sqlparser.Statement) string {
	return strings.ToLower(strings.TrimPrefix(fmt.Sprintf("%T", stmt), "*sqlparser."))
}

// rootSelect unwraps parentheses and returns the single SELECT at the root.
// A nil select comes with the rejecting verdict.
func rootSelect(stmt sqlparser.Statement) (*sqlparser.Select, Verdict) {
	for {
		switch s := stmt.(type) {
		case *sqlparser.Select:
			if s.Lock != "" {
				return nil, rejected(NotReadOnly, "locking read%s", s.Lock)
			}
			return s, Verdict{}
		case *sqlparser.ParenSelect:
			stmt = s.Select
		case *sqlparser.Union:
			return nil, rejected(UnsupportedConstruct, "set operation %s is not allowed", strings.ToUpper(s.Type))
		default:
			return nil, rejected(NotReadOnly, "statement kind %s is not allowed", statementKind(stmt))
		}
	}
}

// errStopWalk aborts a sqlparser.Walk once a violation is recorded.
var errStopWalk = errors.New("stop")

func walk(root sqlparser.SQLNode, visit func(node sqlparser.SQLNode) *Verdict) (Verdict, bool) {
	var found *Verdict
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if v := visit(node); v != nil {
			found = v
			return false, errStopWalk
		}
		return true, nil
	}, root)
	if found != nil {
		return *found, true
	}
	return Verdict{}, false
}

func (g *Guard) checkSetOperations(sel *sqlparser.Select) (Verdict, bool) {
	return walk(sel, func(node sqlparser.SQLNode) *Verdict {
		switch n := node.(type) {
		case *sqlparser.Union:
			if n != nil {
				v := rejected(UnsupportedConstruct, "set operation %s is not allowed", strings.ToUpper(n.Type))
				return &v
			}
		case *sqlparser.Select:
			if n != nil && n.Lock != "" {
				v := rejected(NotReadOnly, "locking read%s", n.Lock)
				return &v
			}
		}
		return nil
	})
}

func (g *Guard) checkFunctions(sel *sqlparser.Select) (Verdict, bool) {
	return walk(sel, func(node sqlparser.SQLNode) *Verdict {
		fn, ok := node.(*sqlparser.FuncExpr)
		if !ok || fn == nil {
			return nil
		}
		if name := fn.Name.Lowered(); g.policy.Forbids(name) {
			v := rejected(ForbiddenFunction, "%s", name)
			return &v
		}
		return nil
	})
}

// checkTables collects every table read through a FROM or JOIN clause,
// including those inside subqueries. Column qualifiers are not table reads,
// and the parser's implicit DUAL for a missing FROM is not a table.
func (g *Guard) checkTables(sel *sqlparser.Select) ([]string, Verdict, bool) {
	seen := make(map[string]struct{})
	v, bad := walk(sel, func(node sqlparser.SQLNode) *Verdict {
		ate, ok := node.(*sqlparser.AliasedTableExpr)
		if !ok || ate == nil {
			return nil
		}
		tn, ok := ate.Expr.(sqlparser.TableName)
		if !ok {
			return nil
		}
		name := qualifiedName(tn)
		if name == "dual" {
			return nil
		}
		if !g.policy.AllowsTable(name) {
			v := rejected(TableNotAllowed, "%s", name)
			return &v
		}
		seen[name] = struct{}{}
		return nil
	})
	if bad {
		return nil, v, true
	}
	if len(seen) == 0 {
		return nil, rejected(UnsupportedConstruct, "no table referenced"), true
	}
	tables := make([]string, 0, len(seen))
	for name := range seen {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, Verdict{}, false
}

func qualifiedName(tn sqlparser.TableName) string {
	name := strings.ToLower(tn.Name.String())
	if !tn.Qualifier.IsEmpty() {
		return strings.ToLower(tn.Qualifier.String()) + "." + name
	}
	return name
}

// enforceLimit bounds the outer row count. A literal under the ceiling is kept;
// anything else becomes the ceiling. The offset is left untouched.
func (g *Guard) enforceLimit(sel *sqlparser.Select) {
	ceiling := g.policy.MaxRowLimit()
	limitVal := func() sqlparser.Expr {
		return sqlparser.NewIntVal([]byte(strconv.Itoa(ceiling)))
	}

	if sel.Limit == nil {
		sel.Limit = &sqlparser.Limit{Rowcount: limitVal()}
		return
	}
	if lit, ok := sel.Limit.Rowcount.(*sqlparser.SQLVal); ok && lit.Type == sqlparser.IntVal {
		n, err := strconv.ParseUint(string(lit.Val), 10, 64)
		if err == nil && n <= uint64(ceiling) {
			return
		}
	}
	sel.Limit.Rowcount = limitVal()
}
