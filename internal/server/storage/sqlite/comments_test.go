package sqlite

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

func createTestCard(t *testing.T, ctx context.Context, s *Storage, userID string) *models.Card {
	t.Helper()
	card, _, err := s.CreateCard(ctx, userID, &models.Card{Title: "discussion"}, models.ColumnQueue)
	require.NoError(t, err)
	return card
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	comment, version, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID,
		Author: "alice",
		Text:   "<p>first</p>",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID, "id is minted by the storage")
	assert.False(t, comment.CreatedAt.IsZero())
	assert.Equal(t, comment.CreatedAt, comment.UpdatedAt)
	assert.Equal(t, int64(2), version)

	list, hasMore, err := s.ListComments(ctx, userID, card.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, hasMore)
	assert.Equal(t, "<p>first</p>", list[0].Text)
	assert.Equal(t, "alice", list[0].Author)
}

func TestAddComment_CardNotFound(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)

	_, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: "P-404", Author: "alice", Text: "<p>lost</p>",
	})
	assert.ErrorIs(t, err, storage.ErrCardNotFound)
}

func TestListComments_OldestFirst(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, _, err := s.AddComment(ctx, userID, &models.Comment{
			ID:        fmt.Sprintf("c-%d", i),
			CardID:    card.ID,
			Author:    "alice",
			Text:      fmt.Sprintf("<p>msg %d</p>", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	list, hasMore, err := s.ListComments(ctx, userID, card.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "c-0", list[0].ID)
	assert.Equal(t, "c-1", list[1].ID)

	_, _, err = s.ListComments(ctx, userID, "P-404", 0, 10)
	assert.ErrorIs(t, err, storage.ErrCardNotFound)
}

func TestAddComment_OverflowArchivesOldest(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i <= models.MaxLiveCommentsPerCard; i++ {
		_, _, err := s.AddComment(ctx, userID, &models.Comment{
			ID:        fmt.Sprintf("c-%04d", i),
			CardID:    card.ID,
			Author:    "alice",
			Text:      "<p>chatter</p>",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	list, _, err := s.ListComments(ctx, userID, card.ID, 0, storage.MaxPageLimit)
	require.NoError(t, err)
	assert.Len(t, list, models.MaxLiveCommentsPerCard)
	assert.Equal(t, "c-0001", list[0].ID, "the oldest comment was evicted")

	archived, _, err := s.ListArchivedComments(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "c-0000", archived[0].ID)
	assert.Equal(t, models.ArchiveOverflow, archived[0].Reason)
}

func TestEditComment(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	created := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return created })
	comment, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID, Author: "alice", Text: "<p>tpyo</p>",
	})
	require.NoError(t, err)

	s.SetClock(func() time.Time { return created.Add(time.Minute) })
	images := []models.ImageRef{{FileID: "pic.png", MimeType: "image/png", Size: 42}}
	edited, version, err := s.EditComment(ctx, userID, comment.ID, "alice", "<p>typo</p>", images)
	require.NoError(t, err)
	assert.Equal(t, "<p>typo</p>", edited.Text)
	require.Len(t, edited.Images, 1)
	assert.Equal(t, created, edited.CreatedAt)
	assert.Equal(t, created.Add(time.Minute), edited.UpdatedAt)
	assert.Equal(t, int64(3), version)

	refs, err := s.MediaRefs(ctx, userID)
	require.NoError(t, err)
	assert.Contains(t, refs, "pic.png")
}

func TestEditComment_Errors(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	comment, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID, Author: "alice", Text: "<p>mine</p>",
	})
	require.NoError(t, err)

	// Чужой комментарий править нельзя
	_, _, err = s.EditComment(ctx, userID, comment.ID, "bob", "<p>hijack</p>", nil)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	_, _, err = s.EditComment(ctx, userID, "missing", "alice", "<p>x</p>", nil)
	assert.ErrorIs(t, err, storage.ErrCommentNotFound)

	// Удаленный комментарий различим от несуществующего
	_, err = s.DeleteComment(ctx, userID, comment.ID, "alice")
	require.NoError(t, err)
	_, _, err = s.EditComment(ctx, userID, comment.ID, "alice", "<p>late</p>", nil)
	assert.ErrorIs(t, err, storage.ErrCommentAlreadyDeleted)
}

func TestDeleteComment(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	comment, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID, Author: "alice", Text: "<p>regret</p>",
	})
	require.NoError(t, err)

	_, err = s.DeleteComment(ctx, userID, comment.ID, "bob")
	assert.ErrorIs(t, err, storage.ErrForbidden)

	version, err := s.DeleteComment(ctx, userID, comment.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	list, _, err := s.ListComments(ctx, userID, card.ID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, list)

	archived, _, err := s.ListArchivedComments(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, models.ArchiveDelete, archived[0].Reason)

	// Повторное удаление сообщает, что комментарий уже в архиве
	_, err = s.DeleteComment(ctx, userID, comment.ID, "alice")
	assert.ErrorIs(t, err, storage.ErrCommentAlreadyDeleted)

	_, err = s.DeleteComment(ctx, userID, "missing", "alice")
	assert.ErrorIs(t, err, storage.ErrCommentNotFound)
}

func TestDeleteCard_ArchiveBatchKeepsCommentOrder(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, _, err := s.AddComment(ctx, userID, &models.Comment{
			ID:        fmt.Sprintf("c-%d", i),
			CardID:    card.ID,
			Author:    "alice",
			Text:      fmt.Sprintf("<p>msg %d</p>", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	_, err := s.DeleteCard(ctx, userID, card.ID, nil)
	require.NoError(t, err)

	// Вся пачка архивируется одним моментом времени, внутри пачки
	// сохраняется порядок живых комментариев
	archived, _, err := s.ListArchivedComments(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.Len(t, archived, 3)
	assert.Equal(t, "c-0", archived[0].ID)
	assert.Equal(t, "c-1", archived[1].ID)
	assert.Equal(t, "c-2", archived[2].ID)
}

func TestListArchivedComments_NewestFirst(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	base := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("c-%d", i)
		_, _, err := s.AddComment(ctx, userID, &models.Comment{
			ID: id, CardID: card.ID, Author: "alice", Text: "<p>x</p>",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		s.SetClock(func() time.Time { return base.Add(time.Hour + time.Duration(i)*time.Minute) })
		_, err = s.DeleteComment(ctx, userID, id, "alice")
		require.NoError(t, err)
	}

	archived, hasMore, err := s.ListArchivedComments(ctx, userID, 0, 2)
	require.NoError(t, err)
	require.Len(t, archived, 2)
	assert.True(t, hasMore)
	assert.Equal(t, "c-2", archived[0].ID, "most recently archived first")
	assert.Equal(t, "c-1", archived[1].ID)
}

func TestRestoreArchivedComment(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	comment, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID, Author: "alice", Text: "<p>restore me</p>",
	})
	require.NoError(t, err)
	_, err = s.DeleteComment(ctx, userID, comment.ID, "alice")
	require.NoError(t, err)

	restored, version, err := s.RestoreArchivedComment(ctx, userID, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, comment.ID, restored.ID, "id survives when it does not collide")
	assert.Equal(t, int64(4), version)

	list, _, err := s.ListComments(ctx, userID, card.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "<p>restore me</p>", list[0].Text)

	archived, _, err := s.ListArchivedComments(ctx, userID, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, archived)

	// Восстановление отражается в истории
	entries, _, err := s.ListHistory(ctx, userID, 0, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.HistoryRestore, entries[0].Kind)

	_, _, err = s.RestoreArchivedComment(ctx, userID, comment.ID)
	assert.ErrorIs(t, err, storage.ErrArchiveEntryNotFound)
}

func TestRestoreArchivedComment_CardGone(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	comment, _, err := s.AddComment(ctx, userID, &models.Comment{
		CardID: card.ID, Author: "alice", Text: "<p>orphan</p>",
	})
	require.NoError(t, err)
	_, err = s.DeleteComment(ctx, userID, comment.ID, "alice")
	require.NoError(t, err)
	_, err = s.DeleteCard(ctx, userID, card.ID, nil)
	require.NoError(t, err)

	_, _, err = s.RestoreArchivedComment(ctx, userID, comment.ID)
	assert.ErrorIs(t, err, storage.ErrCardNotFound)
}

func TestRestoreArchivedComment_IDCollision(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()
	userID := createTestUser(t, ctx, s)
	card := createTestCard(t, ctx, s, userID)

	_, _, err := s.AddComment(ctx, userID, &models.Comment{
		ID: "shared", CardID: card.ID, Author: "alice", Text: "<p>v1</p>",
	})
	require.NoError(t, err)
	_, err = s.DeleteComment(ctx, userID, "shared", "alice")
	require.NoError(t, err)

	// Живой комментарий занял тот же id
	_, _, err = s.AddComment(ctx, userID, &models.Comment{
		ID: "shared", CardID: card.ID, Author: "alice", Text: "<p>v2</p>",
	})
	require.NoError(t, err)

	restored, _, err := s.RestoreArchivedComment(ctx, userID, "shared")
	require.NoError(t, err)
	assert.NotEqual(t, "shared", restored.ID, "restored copy gets a fresh id")
	assert.Equal(t, "<p>v1</p>", restored.Text)

	list, _, err := s.ListComments(ctx, userID, card.ID, 0, 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
