package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, string, string)
		status int
		typ    string
	}{
		{"not found", NotFound, http.StatusNotFound, ProblemTypeNotFound},
		{"bad request", BadRequest, http.StatusBadRequest, ProblemTypeBadRequest},
		{"internal", InternalError, http.StatusInternalServerError, ProblemTypeInternal},
		{"unauthorized", Unauthorized, http.StatusUnauthorized, ProblemTypeUnauthorized},
		{"forbidden", Forbidden, http.StatusForbidden, ProblemTypeForbidden},
		{"conflict", Conflict, http.StatusConflict, ProblemTypeConflict},
		{"rate limited", RateLimited, http.StatusTooManyRequests, ProblemTypeRateLimited},
		{"unavailable", Unavailable, http.StatusServiceUnavailable, ProblemTypeUnavailable},
	}
	const instance = "/api/v1/inventory/devices/deployed/LT-001"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "device LT-001: "+tt.name, instance)

			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			var p Problem
			require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
			assert.Equal(t, Problem{
				Type:     tt.typ,
				Title:    http.StatusText(tt.status),
				Status:   tt.status,
				Detail:   "device LT-001: " + tt.name,
				Instance: instance,
			}, p)
		})
	}
}

func TestUnauthorizedSetsChallenge(t *testing.T) {
	w := httptest.NewRecorder()
	Unauthorized(w, "missing bearer token", "/api/v1/inventory/dashboard")
	assert.Equal(t, `Bearer realm="aims"`, w.Header().Get("WWW-Authenticate"))
}

func TestProblemOmitsEmptyOptionalFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteProblem(w, Problem{Type: ProblemTypeInternal, Title: "Internal Server Error", Status: 500})

	var raw map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	assert.NotContains(t, raw, "detail")
	assert.NotContains(t, raw, "instance")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"tag": "PC-0001", "status": "Healthy"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"tag":"PC-0001","status":"Healthy"}`, w.Body.String())
}
