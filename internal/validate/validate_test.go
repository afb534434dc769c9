// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://api.openai.com/v1", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_ListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"port only", ":8000", false},
		{"host and port", "127.0.0.1:8080", false},
		{"missing port", "localhost", true},
		{"port zero", ":0", true},
		{"non numeric", ":http", true},
		{"too large", ":70000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.ListenAddr("Listen", tt.addr)
			if tt.wantErr == v.IsValid() {
				t.Errorf("ListenAddr(%q) valid=%v, wantErr=%v (%v)", tt.addr, v.IsValid(), tt.wantErr, v.Err())
			}
		})
	}
}

func TestBetween(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"within range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below min", 0, 1, 10, true},
		{"above max", 11, 1, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			Between(v, "testField", tt.value, tt.min, tt.max)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Between(%d) valid=%v, wantErr=%v", tt.value, v.IsValid(), tt.wantErr)
			}
		})
	}
}

func TestBetween_DurationsAndFloats(t *testing.T) {
	v := New()
	Between(v, "QueryTimeout", 15*time.Second, time.Second, time.Minute)
	Between(v, "SamplingRate", 0.5, 0, 1)
	if !v.IsValid() {
		t.Fatalf("unexpected error: %v", v.Err())
	}

	Between(v, "QueryTimeout", 0, time.Second, time.Minute)
	Between(v, "SamplingRate", 1.5, 0, 1)
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", got, v.Err())
	}
	if !strings.Contains(v.Err().Error(), "must be between 1s and 1m0s, got 0s") {
		t.Errorf("unexpected message: %v", v.Err())
	}
}

func TestValidator_NotEmpty(t *testing.T) {
	for _, value := range []string{"", "   ", "\t"} {
		v := New()
		v.NotEmpty("field", value)
		if v.IsValid() {
			t.Errorf("NotEmpty(%q) should fail", value)
		}
	}
	v := New()
	v.NotEmpty("field", "x")
	if !v.IsValid() {
		t.Errorf("NotEmpty(x) should pass")
	}
}

func TestValidator_OneOf(t *testing.T) {
	allowed := []string{"mysql", "sqlite"}

	v := New()
	v.OneOf("Driver", "mysql", allowed)
	if !v.IsValid() {
		t.Errorf("unexpected error: %v", v.Err())
	}

	v = New()
	v.OneOf("Driver", "postgres", allowed)
	if v.IsValid() {
		t.Error("expected error for value outside the allowed set")
	}
}

func TestValidator_PositiveAndNonNegative(t *testing.T) {
	v := New()
	v.Positive("MaxRows", 0)
	v.NonNegative("MaxRetries", -1)
	if got := len(v.Errors()); got != 2 {
		t.Fatalf("expected 2 errors, got %d", got)
	}

	v = New()
	v.Positive("MaxRows", 500)
	v.NonNegative("MaxRetries", 0)
	if !v.IsValid() {
		t.Errorf("unexpected error: %v", v.Err())
	}
}

func TestValidator_Identifiers(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		wantErr bool
	}{
		{"plain", []string{"corporate_tickets", "tickets"}, false},
		{"qualified", []string{"reporting.tickets"}, false},
		{"empty list", nil, true},
		{"space", []string{"bad name"}, true},
		{"injection", []string{"t; drop table x"}, true},
		{"leading digit", []string{"1tickets"}, true},
		{"duplicate ignoring case", []string{"tickets", "TICKETS"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Identifiers("AllowedTables", tt.values)
			if tt.wantErr == v.IsValid() {
				t.Errorf("Identifiers(%v) valid=%v, wantErr=%v", tt.values, v.IsValid(), tt.wantErr)
			}
		})
	}
}

func TestValidator_Check(t *testing.T) {
	v := New()
	for _, size := range []int64{1024, -1} {
		v.Check("MaxBodyBytes", size > 0, size, "must be positive")
	}
	if v.IsValid() {
		t.Fatal("expected check failure")
	}
	if got := len(v.Errors()); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
	if !strings.Contains(v.Err().Error(), "MaxBodyBytes: must be positive") {
		t.Errorf("unexpected message: %v", v.Err())
	}
}

func TestValidator_MultipleErrors(t *testing.T) {
	v := New()
	v.Port("Port", 0)
	Between(v, "MaxRows", 0, 1, 10)
	v.NotEmpty("Name", "")

	err := v.Err()
	if err == nil {
		t.Fatal("expected error")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 3 {
		t.Errorf("expected 3 errors, got %d", len(verr.Errors()))
	}
	if strings.Count(err.Error(), ";") != 2 {
		t.Errorf("expected joined message, got %q", err.Error())
	}

	var field Error
	if !errors.As(err, &field) || field.Field != "Port" {
		t.Errorf("expected the first field error to unwrap, got %+v", field)
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	for _, lvl := range []LogLevel{LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError} {
		if !lvl.IsValid() {
			t.Errorf("%s should be valid", lvl)
		}
	}
	if LogLevel("trace").IsValid() {
		t.Error("trace should not be valid")
	}
}

func TestParseLogLevel(t *testing.T) {
	if _, err := ParseLogLevel("info"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
