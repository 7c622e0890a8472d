package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/pkg/api"
)

func newProfileHandler(t *testing.T) (*ProfileHandler, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewProfileHandler(env.logger, env.storage, env.grace, env.gc), env
}

func updateProfile(t *testing.T, h *ProfileHandler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := authedRequest(http.MethodPut, "/api/v1/profile", strings.NewReader(body), userID, "alice")
	w := httptest.NewRecorder()
	h.Update(w, req)
	return w
}

func TestProfileHandler_Get(t *testing.T) {
	h, env := newProfileHandler(t)
	userID := env.createUser(t, "alice")

	req := authedRequest(http.MethodGet, "/api/v1/profile", nil, userID, "alice")
	w := httptest.NewRecorder()
	h.Get(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, userID, resp.UserID)
	assert.Equal(t, "alice", resp.Login)
	assert.Equal(t, "alice@example.com", resp.Email)
	assert.Empty(t, resp.Name)
}

func TestProfileHandler_Get_UnknownUser(t *testing.T) {
	h, _ := newProfileHandler(t)

	req := authedRequest(http.MethodGet, "/api/v1/profile", nil, "ghost", "ghost")
	w := httptest.NewRecorder()
	h.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileHandler_Update_PartialFields(t *testing.T) {
	h, env := newProfileHandler(t)
	userID := env.createUser(t, "alice")

	w := updateProfile(t, h, userID, `{"name": "Alice Doe", "city": "Berlin", "birthDate": "1990-06-15T00:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Alice Doe", resp.Name)
	assert.Equal(t, "Berlin", resp.City)
	require.NotNil(t, resp.BirthDate)
	assert.Equal(t, "1990-06-15T00:00:00Z", *resp.BirthDate)

	// nil-поля не трогают существующие значения
	w = updateProfile(t, h, userID, `{"role": "engineer"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = api.ProfileResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "engineer", resp.Role)
	assert.Equal(t, "Alice Doe", resp.Name)
	assert.Equal(t, "Berlin", resp.City)

	// Пустая строка явно очищает дату рождения
	w = updateProfile(t, h, userID, `{"birthDate": ""}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = api.ProfileResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.BirthDate)
}

func TestProfileHandler_Update_AvatarChangesGrace(t *testing.T) {
	h, env := newProfileHandler(t)
	userID := env.createUser(t, "alice")
	env.grace.Add("face.png", userID, 64)

	w := updateProfile(t, h, userID, `{"avatarId": "face.png"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp api.ProfileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "face.png", resp.AvatarID)
	assert.NotContains(t, env.grace.ActiveIDs(), "face.png")

	// Недопустимый id аватара отбрасывается, не ломая запрос
	w = updateProfile(t, h, userID, `{"avatarId": "../../etc/passwd"}`)
	require.Equal(t, http.StatusOK, w.Code)
	resp = api.ProfileResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.AvatarID)
}

func TestProfileHandler_Update_BadBody(t *testing.T) {
	h, env := newProfileHandler(t)
	userID := env.createUser(t, "alice")

	w := updateProfile(t, h, userID, `{"name": `)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
