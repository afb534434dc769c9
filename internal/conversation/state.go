// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package conversation holds the per-conversation query state and the rules
// for folding a new utterance into it.
//
// State is a value type owned by the caller. Merge is total: every
// (State, Directives) pair yields a valid State, and nothing here keeps a
// session table.
package conversation

import "strings"

// Intent is what shape of answer the user asked for. It is re-derived every turn.
type Intent string

// Intent values.
const (
	IntentDetail  Intent = "detail"
	IntentSummary Intent = "summary"
)

// Valid reports whether i is a known intent.
func (i Intent) Valid() bool { return i == IntentDetail || i == IntentSummary }

// Domain selects the ticket family a conversation is about. Exactly one is active.
type Domain string

// Domain values.
const (
	DomainCorporate Domain = "corporate_tickets"
	DomainPPM       Domain = "ppm_tickets"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool { return d == DomainCorporate || d == DomainPPM }

// FilterKey names one filter slot.
type FilterKey string

// Filter keys. The set is fixed.
const (
	FilterCompany   FilterKey = "company"
	FilterBranch    FilterKey = "branch"
	FilterTimeframe FilterKey = "timeframe"
	FilterStatus    FilterKey = "status"
	FilterPriority  FilterKey = "priority"
	FilterCategory  FilterKey = "category"
)

var filterKeys = []FilterKey{
	FilterCompany, FilterBranch, FilterTimeframe,
	FilterStatus, FilterPriority, FilterCategory,
}

// FilterKeys returns the fixed filter key set in display order.
func FilterKeys() []FilterKey {
	out := make([]FilterKey, len(filterKeys))
	copy(out, filterKeys)
	return out
}

// Valid reports whether k is one of the fixed filter keys.
func (k FilterKey) Valid() bool {
	for _, f := range filterKeys {
		if f == k {
			return true
		}
	}
	return false
}

// Filters holds one optional value per filter key. A nil field is unconstrained.
type Filters struct {
	Company   *string
	Branch    *string
	Timeframe *string
	Status    *string
	Priority  *string
	Category  *string
}

func (f *Filters) slot(k FilterKey) **string {
	switch k {
	case FilterCompany:
		return &f.Company
	case FilterBranch:
		return &f.Branch
	case FilterTimeframe:
		return &f.Timeframe
	case FilterStatus:
		return &f.Status
	case FilterPriority:
		return &f.Priority
	case FilterCategory:
		return &f.Category
	}
	return nil
}

// Get returns the value for k and whether it is set.
func (f Filters) Get(k FilterKey) (string, bool) {
	p := f.slot(k)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// Active returns the set filters keyed by name.
func (f Filters) Active() map[FilterKey]string {
	out := make(map[FilterKey]string)
	for _, k := range filterKeys {
		if v, ok := f.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

func (f *Filters) set(k FilterKey, v string) {
	if p := f.slot(k); p != nil {
		val := v
		*p = &val
	}
}

func (f *Filters) clear(k FilterKey) {
	if p := f.slot(k); p != nil {
		*p = nil
	}
}

// State is the accumulated context of a conversation.
type State struct {
	Intent  Intent
	Domain  Domain
	Filters Filters
}

// Default is the state of a fresh conversation.
func Default() State {
	return State{Intent: IntentDetail, Domain: DomainCorporate}
}

// Clone returns a deep copy; filter pointers are not shared.
func (s State) Clone() State {
	out := State{Intent: s.Intent, Domain: s.Domain}
	for _, k := range filterKeys {
		if v, ok := s.Filters.Get(k); ok {
			out.Filters.set(k, v)
		}
	}
	return out
}

// normalized replaces unknown enum values with defaults.
func (s State) normalized() State {
	out := s.Clone()
	if !out.Intent.Valid() {
		out.Intent = IntentDetail
	}
	if !out.Domain.Valid() {
		out.Domain = DomainCorporate
	}
	return out
}

// WithFilter returns a copy of s with k set to v. Blank values clear the slot.
func (s State) WithFilter(k FilterKey, v string) State {
	out := s.Clone()
	if v = strings.TrimSpace(v); v == "" {
		out.Filters.clear(k)
	} else {
		out.Filters.set(k, v)
	}
	return out
}

// Directives is what one utterance asks to change.
type Directives struct {
	// Intent is the freshly derived intent. Empty means detail.
	Intent Intent
	// Domain switches the active domain when non-empty.
	Domain Domain
	// Set assigns filter values.
	Set map[FilterKey]string
	// Clear widens the named filters back to unconstrained.
	Clear []FilterKey
	// ClearAll widens every filter.
	ClearAll bool
}

// Merge folds d into prev. Precedence: domain switch, then widening, then
// explicit values, so a key that is both cleared and set ends up set.
// Untouched filters carry forward. Intent is never carried.
func Merge(prev State, d Directives) State {
	next := prev.normalized()

	next.Intent = IntentDetail
	if d.Intent.Valid() {
		next.Intent = d.Intent
	}
	if d.Domain.Valid() {
		next.Domain = d.Domain
	}

	if d.ClearAll {
		next.Filters = Filters{}
	}
	for _, k := range d.Clear {
		next.Filters.clear(k)
	}
	for k, v := range d.Set {
		if v = strings.TrimSpace(v); v != "" && k.Valid() {
			next.Filters.set(k, v)
		}
	}
	return next
}

// Fallback is the state used when directives could not be derived: prev with
// intent reset to detail.
func Fallback(prev State) State {
	next := prev.normalized()
	next.Intent = IntentDetail
	return next
}
