// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ManuGH/querygate/internal/api/middleware"
	"github.com/ManuGH/querygate/internal/audit"
	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/gateway"
	"github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/ratelimit"
	"github.com/ManuGH/querygate/internal/telemetry"
)

type queryRequest struct {
	Query     string              `json:"query"`
	TurnCount int                 `json:"turn_count"`
	State     *conversation.State `json:"state"`
}

// handleQuery runs one conversational turn. Every gateway outcome is a 200;
// the body status says whether it succeeded.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req) {
		return
	}

	state := conversation.Default()
	if req.State != nil {
		state = *req.State
	}

	res := s.deps.Gateway.Handle(r.Context(), gateway.Request{
		Query:      req.Query,
		TurnCount:  req.TurnCount,
		State:      state,
		RemoteAddr: ratelimit.ClientIP(r),
	})
	middleware.AddSpanAttributes(r, telemetry.OutcomeAttributes(res.Outcome, res.Attempts)...)
	writeJSON(w, http.StatusOK, res.Response)
}

type validateRequest struct {
	SQL string `json:"sql"`
}

type validateResponse struct {
	Accepted     bool     `json:"accepted"`
	CanonicalSQL string   `json:"canonical_sql,omitempty"`
	Tables       []string `json:"tables,omitempty"`
	Code         string   `json:"code,omitempty"`
	Detail       string   `json:"detail,omitempty"`
}

// handleValidate runs the guard alone. Nothing is executed.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeBadRequest(w, "sql is required")
		return
	}

	v := s.deps.Validator.Validate(req.SQL)
	resp := validateResponse{Accepted: v.Accepted()}
	verdict := "accepted"
	if resp.Accepted {
		resp.CanonicalSQL = v.SQL
		resp.Tables = v.Tables
	} else if v.Rejection != nil {
		resp.Code = v.Rejection.Code.String()
		resp.Detail = v.Rejection.Detail
		verdict = resp.Code
	}
	middleware.AddSpanAttributes(r, telemetry.GuardAttributes(verdict, resp.Tables)...)
	s.deps.Audit.Validate(r.Context(), ratelimit.ClientIP(r), resp.Accepted, resp.Code)
	writeJSON(w, http.StatusOK, resp)
}

type historyResponse struct {
	Records []audit.Record `json:"records"`
}

// handleHistory lists recent gateway requests, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeServiceUnavailable(w, audit.ErrHistoryDisabled)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := s.deps.History.Recent(r.Context(), limit)
	if errors.Is(err, audit.ErrHistoryDisabled) {
		writeServiceUnavailable(w, err)
		return
	}
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Str(log.FieldEvent, "history.read_failed").Msg("failed to read query history")
		writeError(w, http.StatusInternalServerError, "internal_error", "history unavailable")
		return
	}
	if records == nil {
		records = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Records: records})
}

// decode reads a size-capped JSON body into v, writing 413 or 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large",
				"request body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return false
		}
		writeBadRequest(w, "request body is not valid JSON")
		return false
	}
	return true
}
