// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package conversation

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Snapshot is the wire form of State exchanged with clients. Field names
// match what existing front ends send.
type Snapshot struct {
	Intent      string  `json:"intent"`
	Domain      string  `json:"domain"`
	CompanyName *string `json:"company_name"`
	BranchName  *string `json:"branch_name"`
	Timeframe   *string `json:"timeframe"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	ServiceType *string `json:"service_type"`
}

// Snapshot converts s to its wire form.
func (s State) Snapshot() Snapshot {
	c := s.Clone()
	return Snapshot{
		Intent:      string(c.Intent),
		Domain:      string(c.Domain),
		CompanyName: c.Filters.Company,
		BranchName:  c.Filters.Branch,
		Timeframe:   c.Filters.Timeframe,
		Status:      c.Filters.Status,
		Priority:    c.Filters.Priority,
		ServiceType: c.Filters.Category,
	}
}

// State converts a wire snapshot back. Unknown enum values fall back to
// defaults and blank filter values are treated as unset.
func (snap Snapshot) State() State {
	s := State{
		Intent: Intent(strings.ToLower(strings.TrimSpace(snap.Intent))),
		Domain: Domain(strings.ToLower(strings.TrimSpace(snap.Domain))),
	}
	assign := func(k FilterKey, v *string) {
		if v != nil {
			s = s.WithFilter(k, *v)
		}
	}
	assign(FilterCompany, snap.CompanyName)
	assign(FilterBranch, snap.BranchName)
	assign(FilterTimeframe, snap.Timeframe)
	assign(FilterStatus, snap.Status)
	assign(FilterPriority, snap.Priority)
	assign(FilterCategory, snap.ServiceType)
	return s.normalized()
}

// MarshalJSON encodes s as a Snapshot.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// UnmarshalJSON decodes a Snapshot. null yields the default state; unknown
// keys are ignored.
func (s *State) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Default()
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	*s = snap.State()
	return nil
}
