package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

func TestMediaFiles_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)

	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	file := &models.MediaFile{
		ID:        "abc123.png",
		OwnerID:   userID,
		MimeType:  "image/png",
		Size:      2048,
		Name:      "screenshot",
		CreatedAt: created,
	}
	require.NoError(t, s.SaveMediaFile(ctx, file))

	got, err := s.GetMediaFile(ctx, "abc123.png")
	require.NoError(t, err)
	assert.Equal(t, file, got)

	_, err = s.GetMediaFile(ctx, "missing.png")
	assert.ErrorIs(t, err, storage.ErrMediaNotFound)
}

func TestMediaFiles_Delete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)

	require.NoError(t, s.SaveMediaFile(ctx, &models.MediaFile{
		ID: "gone.jpg", OwnerID: userID, MimeType: "image/jpeg", Size: 10, CreatedAt: time.Now(),
	}))
	require.NoError(t, s.DeleteMediaFile(ctx, "gone.jpg"))
	_, err := s.GetMediaFile(ctx, "gone.jpg")
	assert.ErrorIs(t, err, storage.ErrMediaNotFound)

	// Повторное удаление не ошибка
	assert.NoError(t, s.DeleteMediaFile(ctx, "gone.jpg"))
}

func TestMediaFiles_ListByOwner(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	alice := createTestUser(t, ctx, s)
	bob := createTestUser(t, ctx, s)

	for _, id := range []string{"a1.png", "a2.png"} {
		require.NoError(t, s.SaveMediaFile(ctx, &models.MediaFile{
			ID: id, OwnerID: alice, MimeType: "image/png", Size: 1, CreatedAt: time.Now(),
		}))
	}
	require.NoError(t, s.SaveMediaFile(ctx, &models.MediaFile{
		ID: "b1.png", OwnerID: bob, MimeType: "image/png", Size: 1, CreatedAt: time.Now(),
	}))

	files, err := s.ListUserMediaFiles(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, alice, f.OwnerID)
	}

	files, err = s.ListUserMediaFiles(ctx, createTestUser(t, ctx, s))
	require.NoError(t, err)
	assert.Empty(t, files)
}
