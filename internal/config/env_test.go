// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseString(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		envSet bool
		want   string
	}{
		{name: "environment variable set", key: "TEST_STRING", value: "from-env", envSet: true, want: "from-env"},
		{name: "environment variable not set", key: "TEST_STRING_UNSET", want: "default"},
		{name: "environment variable empty string", key: "TEST_STRING_EMPTY", value: "", envSet: true, want: "default"},
		{name: "sensitive variable", key: "TEST_PASSWORD", value: "secret123", envSet: true, want: "secret123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envSet {
				t.Setenv(tt.key, tt.value)
			}
			assert.Equal(t, tt.want, ParseString(tt.key, "default"))
		})
	}
}

func TestParseInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_INT_BAD", "forty-two")

	assert.Equal(t, 42, ParseInt("TEST_INT", 7))
	assert.Equal(t, 7, ParseInt("TEST_INT_BAD", 7))
	assert.Equal(t, 7, ParseInt("TEST_INT_UNSET", 7))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "1500ms")
	t.Setenv("TEST_DUR_SECONDS", "15")
	t.Setenv("TEST_DUR_BAD", "soon")

	assert.Equal(t, 1500*time.Millisecond, ParseDuration("TEST_DUR", time.Second))
	assert.Equal(t, 15*time.Second, ParseDuration("TEST_DUR_SECONDS", time.Second))
	assert.Equal(t, time.Second, ParseDuration("TEST_DUR_BAD", time.Second))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "1", "YES"} {
		t.Setenv("TEST_BOOL", v)
		assert.True(t, ParseBool("TEST_BOOL", false), v)
	}
	for _, v := range []string{"false", "0", "no"} {
		t.Setenv("TEST_BOOL", v)
		assert.False(t, ParseBool("TEST_BOOL", true), v)
	}
	t.Setenv("TEST_BOOL", "maybe")
	assert.True(t, ParseBool("TEST_BOOL", true))
}

func TestParseList(t *testing.T) {
	t.Setenv("TEST_LIST", " tickets, ,history ,")
	assert.Equal(t, []string{"tickets", "history"}, ParseList("TEST_LIST", nil))

	t.Setenv("TEST_LIST_EMPTY", "  ")
	assert.Equal(t, []string{"a"}, ParseList("TEST_LIST_EMPTY", []string{"a"}))
}
