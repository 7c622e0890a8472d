package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/pkg/api"
)

func newCommentsHandler(t *testing.T) (*CommentsHandler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewCommentsHandler(env.logger, env.storage, env.grace, env.gc, nil), env
}

func createComment(t *testing.T, h *CommentsHandler, userID, login, cardID, text string) *api.CommentResponse {
	t.Helper()
	body, err := json.Marshal(api.CommentCreateRequest{Text: text})
	require.NoError(t, err)
	req := authedRequest(http.MethodPost, "/api/v1/cards/"+cardID+"/comments", strings.NewReader(string(body)), userID, login)
	req.SetPathValue("id", cardID)
	w := httptest.NewRecorder()
	h.Create(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp api.CommentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestCommentsHandler_Create(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")

	resp := createComment(t, h, userID, "alice", card.ID, "<b>hello</b><script>alert(1)</script>")
	assert.NotEmpty(t, resp.Comment.ID)
	assert.Equal(t, "alice", resp.Comment.Author)
	assert.Contains(t, resp.Comment.Text, "<b>hello</b>")
	assert.NotContains(t, resp.Comment.Text, "script")
	assert.Equal(t, int64(2), resp.Version)
}

func TestCommentsHandler_Create_Errors(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")

	// Пустой после санации текст без изображений
	req := authedRequest(http.MethodPost, "/api/v1/cards/"+card.ID+"/comments",
		strings.NewReader(`{"text": "<script>only evil</script>"}`), userID, "alice")
	req.SetPathValue("id", card.ID)
	w := httptest.NewRecorder()
	h.Create(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = authedRequest(http.MethodPost, "/api/v1/cards/missing/comments",
		strings.NewReader(`{"text": "hello"}`), userID, "alice")
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.Create(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentsHandler_List(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	createComment(t, h, userID, "alice", card.ID, "first")
	createComment(t, h, userID, "alice", card.ID, "second")

	req := authedRequest(http.MethodGet, "/api/v1/cards/"+card.ID+"/comments", nil, userID, "alice")
	req.SetPathValue("id", card.ID)
	w := httptest.NewRecorder()
	h.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.CommentListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Comments, 2)
	assert.Equal(t, "first", resp.Comments[0].Text)
	assert.False(t, resp.HasMore)

	req = authedRequest(http.MethodGet, "/api/v1/cards/missing/comments", nil, userID, "alice")
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.List(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentsHandler_Edit(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	created := createComment(t, h, userID, "alice", card.ID, "draft")

	req := authedRequest(http.MethodPatch, "/api/v1/comments/"+created.Comment.ID,
		strings.NewReader(`{"text": "final"}`), userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Edit(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.CommentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "final", resp.Comment.Text)
	assert.Equal(t, int64(3), resp.Version)
}

func TestCommentsHandler_Edit_Errors(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	created := createComment(t, h, userID, "alice", card.ID, "draft")

	// Не автор
	req := authedRequest(http.MethodPatch, "/api/v1/comments/"+created.Comment.ID,
		strings.NewReader(`{"text": "hijack"}`), userID, "bob")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Edit(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Пустая правка
	req = authedRequest(http.MethodPatch, "/api/v1/comments/"+created.Comment.ID,
		strings.NewReader(`{"text": "  "}`), userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Edit(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = authedRequest(http.MethodPatch, "/api/v1/comments/missing",
		strings.NewReader(`{"text": "x"}`), userID, "alice")
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	h.Edit(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentsHandler_Delete_ThenGone(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	created := createComment(t, h, userID, "alice", card.ID, "bye")

	req := authedRequest(http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Delete(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Удаленный комментарий: правка и повторное удаление дают 410
	req = authedRequest(http.MethodPatch, "/api/v1/comments/"+created.Comment.ID,
		strings.NewReader(`{"text": "zombie"}`), userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Edit(w, req)
	assert.Equal(t, http.StatusGone, w.Code)

	req = authedRequest(http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Delete(w, req)
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestCommentsHandler_Delete_Forbidden(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	created := createComment(t, h, userID, "alice", card.ID, "mine")

	req := authedRequest(http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, userID, "bob")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Delete(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCommentsHandler_ArchiveAndRestore(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "discussed")
	created := createComment(t, h, userID, "alice", card.ID, "archived soon")

	req := authedRequest(http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Delete(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = authedRequest(http.MethodGet, "/api/v1/comments/archive", nil, userID, "alice")
	w = httptest.NewRecorder()
	h.Archive(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var archive api.ArchiveListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &archive))
	require.Len(t, archive.Entries, 1)
	assert.Equal(t, created.Comment.ID, archive.Entries[0].Comment.ID)

	req = authedRequest(http.MethodPost, "/api/v1/comments/archive/"+created.Comment.ID+"/restore", nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Restore(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var restored api.CommentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &restored))
	assert.Equal(t, "archived soon", restored.Comment.Text)

	// Запись архива израсходована
	req = authedRequest(http.MethodPost, "/api/v1/comments/archive/"+created.Comment.ID+"/restore", nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Restore(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommentsHandler_Restore_CardGone(t *testing.T) {
	h, env := newCommentsHandler(t)
	userID := env.createUser(t, "alice")
	card := env.createCard(t, userID, "doomed")
	created := createComment(t, h, userID, "alice", card.ID, "orphan")

	req := authedRequest(http.MethodDelete, "/api/v1/comments/"+created.Comment.ID, nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w := httptest.NewRecorder()
	h.Delete(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.storage.DeleteCard(context.Background(), userID, card.ID, nil)
	require.NoError(t, err)

	req = authedRequest(http.MethodPost, "/api/v1/comments/archive/"+created.Comment.ID+"/restore", nil, userID, "alice")
	req.SetPathValue("id", created.Comment.ID)
	w = httptest.NewRecorder()
	h.Restore(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}
