package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error { return p.err }

func TestHealthHandler_Health(t *testing.T) {
	logger := setupTestLogger()
	handler := NewHealthHandler(logger, "test", &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	resp := w.Result()
	defer func() {
		err := resp.Body.Close()
		assert.NoError(t, err)
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var healthResp HealthResponse
	err := json.NewDecoder(resp.Body).Decode(&healthResp)
	assert.NoError(t, err)

	assert.Equal(t, "ok", healthResp.Status)
	assert.Equal(t, "test", healthResp.Version)
	assert.Equal(t, "ok", healthResp.Storage)
}

func TestHealthHandler_Health_StorageDown(t *testing.T) {
	logger := setupTestLogger()
	handler := NewHealthHandler(logger, "", &stubPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var healthResp HealthResponse
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
	assert.Equal(t, "degraded", healthResp.Status)
	assert.Equal(t, "unavailable", healthResp.Storage)
	assert.Equal(t, "dev", healthResp.Version)
}

func TestHealthHandler_Health_NoPinger(t *testing.T) {
	logger := setupTestLogger()
	handler := NewHealthHandler(logger, "1.2.3", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var healthResp HealthResponse
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&healthResp))
	assert.Equal(t, "ok", healthResp.Status)
	assert.Empty(t, healthResp.Storage)
}
