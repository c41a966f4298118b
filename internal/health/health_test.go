package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("bucket missing") })

	tests := []struct {
		name   string
		checks map[string]Pinger
		status int
		want   string
	}{
		{"all ok", map[string]Pinger{"database": ok, "local": ok}, http.StatusOK, "ok"},
		{"one failing", map[string]Pinger{"database": ok, "r2": down}, http.StatusServiceUnavailable, "degraded"},
		{"no checks", nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(tt.checks).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
			assert.Len(t, body.Checks, len(tt.checks))
		})
	}
}

func TestCheck_ReportsError(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("bucket missing") })
	rec := httptest.NewRecorder()
	NewHandler(map[string]Pinger{"r2": down}).Check(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error: bucket missing", body.Checks["r2"])
}
