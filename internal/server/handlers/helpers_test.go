package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage/file"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:          []byte("test-secret-key-with-enough-bytes"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

// testEnv собирает file-бэкенд и media-обвязку для тестов обработчиков
type testEnv struct {
	logger  *slog.Logger
	storage *file.Storage
	store   *media.Store
	grace   *media.Grace
	gc      *media.Collector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := setupTestLogger()
	st, err := file.New(filepath.Join(t.TempDir(), "boards.json"))
	require.NoError(t, err)
	store, err := media.NewStore(t.TempDir())
	require.NoError(t, err)
	grace := media.NewGrace(time.Hour)
	gc := media.NewCollector(store, grace, st, logger, media.CollectorConfig{})
	t.Cleanup(gc.Close)
	return &testEnv{
		logger:  logger,
		storage: st,
		store:   store,
		grace:   grace,
		gc:      gc,
	}
}

func (e *testEnv) createUser(t *testing.T, login string) string {
	t.Helper()
	userID := "uid-" + login
	err := e.storage.CreateUser(context.Background(), &models.User{
		ID:           userID,
		Login:        login,
		Email:        login + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	return userID
}

func (e *testEnv) createCard(t *testing.T, userID, title string) *models.Card {
	t.Helper()
	card, _, err := e.storage.CreateCard(context.Background(), userID,
		&models.Card{Title: title}, models.ColumnQueue)
	require.NoError(t, err)
	return card
}

// authedRequest строит запрос с user_id/login в контексте, как после
// auth-middleware
func authedRequest(method, target string, body io.Reader, userID, login string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	ctx := context.WithValue(req.Context(), UserIDKey, userID)
	ctx = context.WithValue(ctx, UsernameKey, login)
	return req.WithContext(ctx)
}
