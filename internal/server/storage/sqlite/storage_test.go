package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/models"
)

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	s, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
	}

	return s, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, s *Storage) string {
	t.Helper()
	userID := uuid.New().String()
	err := s.CreateUser(ctx, &models.User{
		ID:           userID,
		Login:        "user_" + userID[:8],
		Email:        userID[:8] + "@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now(),
	})
	require.NoError(t, err)
	return userID
}

func timePtr(t time.Time) *time.Time { return &t }

func int64Ptr(n int64) *int64 { return &n }
