// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import (
	"errors"
	"sort"
	"strings"
)

// Policy is the immutable validation policy. Build it once with NewPolicy
// and share it freely; no method mutates it, so concurrent validations need no locking.
type Policy struct {
	allowedTables map[string]struct{}
	forbiddenFns  map[string]struct{}
	maxRowLimit   int
}

// NewPolicy builds a Policy. Names are matched case-insensitively.
// A schema-qualified allowlist entry ("reporting.tickets") only matches the qualified reference.
func NewPolicy(allowedTables, forbiddenFunctions []string, maxRowLimit int) (*Policy, error) {
	if maxRowLimit <= 0 {
		return nil, errors.New("guard: max row limit must be positive")
	}
	p := &Policy{
		allowedTables: toSet(allowedTables),
		forbiddenFns:  toSet(forbiddenFunctions),
		maxRowLimit:   maxRowLimit,
	}
	if len(p.allowedTables) == 0 {
		return nil, errors.New("guard: allowlist must name at least one table")
	}
	return p, nil
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// MaxRowLimit is the row ceiling injected into or clamped on every accepted query.
func (p *Policy) MaxRowLimit() int {
	return p.maxRowLimit
}

// AllowsTable reports whether name is on the allowlist.
func (p *Policy) AllowsTable(name string) bool {
	_, ok := p.allowedTables[strings.ToLower(name)]
	return ok
}

// Forbids reports whether calling the named function is denied.
func (p *Policy) Forbids(function string) bool {
	_, ok := p.forbiddenFns[strings.ToLower(function)]
	return ok
}

// AllowedTables returns a sorted copy of the allowlist.
func (p *Policy) AllowedTables() []string {
	return sortedKeys(p.allowedTables)
}

// ForbiddenFunctions returns a sorted copy of the denied function names.
func (p *Policy) ForbiddenFunctions() []string {
	return sortedKeys(p.forbiddenFns)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
