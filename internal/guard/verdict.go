// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package guard

import "fmt"

// Code classifies why a candidate statement was rejected. The set is closed;
// callers switch on it instead of matching message text.
type Code uint8

const (
	// Malformed means the candidate did not parse.
	Malformed Code = iota + 1
	// NotReadOnly means the root statement is not a plain SELECT.
	NotReadOnly
	// UnsupportedConstruct covers set operations, multiple statements and table-less queries.
	UnsupportedConstruct
	// ForbiddenFunction means a denied function is called anywhere in the tree.
	ForbiddenFunction
	// TableNotAllowed means a referenced table is outside the allowlist.
	TableNotAllowed
)

var codeNames = map[Code]string{
	Malformed:            "malformed",
	NotReadOnly:          "not_read_only",
	UnsupportedConstruct: "unsupported_construct",
	ForbiddenFunction:    "forbidden_function",
	TableNotAllowed:      "table_not_allowed",
}

// Codes lists every rejection code in declaration order.
func Codes() []Code {
	return []Code{Malformed, NotReadOnly, UnsupportedConstruct, ForbiddenFunction, TableNotAllowed}
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// MarshalText renders the code as its snake_case name.
func (c Code) MarshalText() ([]byte, error) {
	if _, ok := codeNames[c]; !ok {
		return nil, fmt.Errorf("guard: unknown code %d", uint8(c))
	}
	return []byte(c.String()), nil
}

// Rejection is the error form of a rejected verdict.
type Rejection struct {
	Code   Code
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Code.String()
	}
	return r.Code.String() + ": " + r.Detail
}

// Verdict is the outcome of validating one candidate.
// Exactly one of SQL (accepted) or Rejection (rejected) is set.
type Verdict struct {
	// SQL is the canonical statement. It is the only text that may be executed.
	SQL string
	// Tables are the lowercased table names the accepted statement reads.
	Tables []string
	// Rejection is non-nil when the candidate was rejected.
	Rejection *Rejection
}

// Accepted reports whether the candidate passed every check.
func (v Verdict) Accepted() bool {
	return v.Rejection == nil && v.SQL != ""
}

// Err returns the rejection as an error, or nil for accepted verdicts.
func (v Verdict) Err() error {
	if v.Rejection == nil {
		return nil
	}
	return v.Rejection
}

func rejected(code Code, format string, args ...any) Verdict {
	return Verdict{Rejection: &Rejection{Code: code, Detail: fmt.Sprintf(format, args...)}}
}
