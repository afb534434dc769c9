// SPDX-License-Identifier: MIT

// Package validate accumulates configuration errors so a bad config reports
// every problem at once instead of the first one.
package validate

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Error is one failed field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is the combined result of a Validator. errors.As can reach
// the individual Error values through Unwrap.
type ValidationError struct {
	errs []Error
}

// Errors returns the individual field failures.
func (e ValidationError) Errors() []Error {
	return e.errs
}

func (e ValidationError) Error() string {
	msgs := make([]string, len(e.errs))
	for i, err := range e.errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationError) Unwrap() []error {
	out := make([]error, len(e.errs))
	for i, err := range e.errs {
		out[i] = err
	}
	return out
}

// Validator collects field errors. The zero value is ready to use.
type Validator struct {
	errs []Error
}

func New() *Validator {
	return &Validator{}
}

// AddError records a failure for field.
func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

// Check records message for field unless ok holds.
func (v *Validator) Check(field string, ok bool, value any, message string) {
	if !ok {
		v.AddError(field, message, value)
	}
}

func (v *Validator) IsValid() bool {
	return len(v.errs) == 0
}

func (v *Validator) Errors() []Error {
	return v.errs
}

// Err returns nil when valid, otherwise a ValidationError holding a copy of
// the collected failures.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError{errs: slices.Clone(v.errs)}
}

// Between checks lo <= value <= hi for any ordered type (ints, durations,
// floats).
func Between[T cmp.Ordered](v *Validator, field string, value, lo, hi T) {
	if value < lo || value > hi {
		v.AddError(field, fmt.Sprintf("must be between %v and %v, got %v", lo, hi, value), value)
	}
}

// URL checks for an absolute URL with a host and, if given, one of the
// allowed schemes.
func (v *Validator) URL(field, value string, allowedSchemes []string) {
	u, err := url.Parse(value)
	switch {
	case value == "":
		v.AddError(field, "URL cannot be empty", value)
	case err != nil:
		v.AddError(field, fmt.Sprintf("invalid URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(allowedSchemes) > 0 && !slices.Contains(allowedSchemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("unsupported URL scheme %q (allowed: %v)", u.Scheme, allowedSchemes), value)
	}
}

func (v *Validator) Port(field string, port int) {
	if port < 1 || port > 65535 {
		v.AddError(field, fmt.Sprintf("port must be between 1 and 65535, got %d", port), port)
	}
}

// ListenAddr validates a host:port listen address. The host part may be empty.
func (v *Validator) ListenAddr(field, addr string) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid listen address: %v", err), addr)
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.AddError(field, fmt.Sprintf("invalid port %q", portStr), addr)
		return
	}
	v.Port(field, port)
}

func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.AddError(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value), value)
	}
}

func (v *Validator) Positive(field string, value int) {
	if value <= 0 {
		v.AddError(field, fmt.Sprintf("value must be positive, got %d", value), value)
	}
}

func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.AddError(field, fmt.Sprintf("value cannot be negative, got %d", value), value)
	}
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Identifiers validates a non-empty list of SQL identifiers, optionally
// schema-qualified. Identifiers compare case-insensitively, so "Tickets" and
// "tickets" count as a duplicate.
func (v *Validator) Identifiers(field string, values []string) {
	if len(values) == 0 {
		v.AddError(field, "list cannot be empty", values)
		return
	}
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if !identifierPattern.MatchString(value) {
			v.AddError(field, fmt.Sprintf("invalid identifier %q", value), value)
			continue
		}
		key := strings.ToLower(value)
		if _, dup := seen[key]; dup {
			v.AddError(field, fmt.Sprintf("duplicate identifier %q", value), value)
			continue
		}
		seen[key] = struct{}{}
	}
}
