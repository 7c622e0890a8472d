package file

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

func TestHistory_AppendListClear(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	userID := createTestUser(t, ctx, s)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.AppendHistory(ctx, userID, models.HistoryEntry{
			ID:        fmt.Sprintf("h-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Text:      "tick",
			Kind:      models.HistoryMove,
		})
		require.NoError(t, err)
	}

	entries, hasMore, err := s.ListHistory(ctx, userID, 0, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "h-2", entries[0].ID, "newest first")

	_, err = s.ClearHistory(ctx, userID)
	require.NoError(t, err)
	entries, _, err = s.ListHistory(ctx, userID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistory_MintsIDWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	userID := createTestUser(t, ctx, s)

	_, err := s.AppendHistory(ctx, userID, models.HistoryEntry{Text: "anon", Kind: models.HistoryCreate})
	require.NoError(t, err)

	entries, _, err := s.ListHistory(ctx, userID, 0, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestMediaFiles_FileBackend(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)
	userID := createTestUser(t, ctx, s)

	file := &models.MediaFile{
		ID: "shot.png", OwnerID: userID, MimeType: "image/png", Size: 99,
		CreatedAt: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveMediaFile(ctx, file))

	got, err := s.GetMediaFile(ctx, "shot.png")
	require.NoError(t, err)
	assert.Equal(t, file, got)

	files, err := s.ListUserMediaFiles(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, files, 1)

	require.NoError(t, s.DeleteMediaFile(ctx, "shot.png"))
	_, err = s.GetMediaFile(ctx, "shot.png")
	assert.ErrorIs(t, err, storage.ErrMediaNotFound)
	assert.NoError(t, s.DeleteMediaFile(ctx, "shot.png"), "repeat delete is not an error")
}
