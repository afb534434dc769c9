// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth checks operator credentials on privileged routes.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// HeaderAPIToken is the fallback header for clients that cannot set
// Authorization.
const HeaderAPIToken = "X-API-Token"

// ExtractToken returns the operator token carried by r, or "".
// Order: Authorization: Bearer <token>, then X-API-Token.
// Query parameters are never consulted; they end up in access logs.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIToken))
}

// AuthorizeToken reports whether got matches expected in constant time.
// An empty expected token authorizes nobody.
func AuthorizeToken(got, expected string) bool {
	if strings.TrimSpace(expected) == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(expected)) == 1
}

// AuthorizeRequest extracts a token from r and checks it against expected.
func AuthorizeRequest(r *http.Request, expected string) bool {
	if r == nil {
		return false
	}
	return AuthorizeToken(ExtractToken(r), expected)
}

// RequireToken rejects requests without the expected token by calling deny.
// With an empty expected token every request is denied.
func RequireToken(expected string, deny func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !AuthorizeRequest(r, expected) {
				deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
