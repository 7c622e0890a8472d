package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/pkg/api"
)

func TestHistoryHandler_ListAndClear(t *testing.T) {
	env := newTestEnv(t)
	h := NewHistoryHandler(env.logger, env.storage, nil)
	cards := NewCardsHandler(env.logger, env.storage, env.grace, env.gc, nil)
	userID := env.createUser(t, "alice")

	// Создание и перемещение оставляют записи в журнале
	card := env.createCard(t, userID, "tracked")
	req := authedRequest(http.MethodPost, "/api/v1/cards/"+card.ID+"/move",
		strings.NewReader(`{"column": "done"}`), userID, "alice")
	req.SetPathValue("id", card.ID)
	w := httptest.NewRecorder()
	cards.Move(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = authedRequest(http.MethodGet, "/api/v1/history", nil, userID, "alice")
	w = httptest.NewRecorder()
	h.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.HistoryListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 2)
	// Новые записи первыми
	assert.Equal(t, models.HistoryMove, resp.Entries[0].Kind)
	assert.Equal(t, models.HistoryCreate, resp.Entries[1].Kind)
	assert.False(t, resp.HasMore)

	req = authedRequest(http.MethodDelete, "/api/v1/history", nil, userID, "alice")
	w = httptest.NewRecorder()
	h.Clear(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var version api.VersionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &version))
	assert.Equal(t, int64(3), version.Version)

	req = authedRequest(http.MethodGet, "/api/v1/history", nil, userID, "alice")
	w = httptest.NewRecorder()
	h.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Entries)
}

func TestHistoryHandler_Activity(t *testing.T) {
	env := newTestEnv(t)
	log, err := activity.Open(filepath.Join(t.TempDir(), "activity.db"), env.logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	h := NewHistoryHandler(env.logger, env.storage, log)
	userID := env.createUser(t, "alice")

	// Очистка истории оставляет след в журнале действий
	req := authedRequest(http.MethodDelete, "/api/v1/history", nil, userID, "alice")
	w := httptest.NewRecorder()
	h.Clear(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = authedRequest(http.MethodGet, "/api/v1/activity", nil, userID, "alice")
	w = httptest.NewRecorder()
	h.Activity(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ActivityListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "history.clear", resp.Entries[0].Action)
	assert.False(t, resp.Entries[0].Timestamp.IsZero())
}

func TestHistoryHandler_Activity_WithoutJournal(t *testing.T) {
	env := newTestEnv(t)
	h := NewHistoryHandler(env.logger, env.storage, nil)
	userID := env.createUser(t, "alice")

	// Журнал отключен: отвечаем пустым списком, а не ошибкой
	req := authedRequest(http.MethodGet, "/api/v1/activity", nil, userID, "alice")
	w := httptest.NewRecorder()
	h.Activity(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ActivityListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Entries)
}

func TestHistoryHandler_List_Paging(t *testing.T) {
	env := newTestEnv(t)
	h := NewHistoryHandler(env.logger, env.storage, nil)
	userID := env.createUser(t, "alice")

	for i := 0; i < 5; i++ {
		env.createCard(t, userID, "card")
	}

	req := authedRequest(http.MethodGet, "/api/v1/history?offset=0&limit=3", nil, userID, "alice")
	w := httptest.NewRecorder()
	h.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.HistoryListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Entries, 3)
	assert.True(t, resp.HasMore)
	assert.Equal(t, 3, resp.NextOffset)
}
