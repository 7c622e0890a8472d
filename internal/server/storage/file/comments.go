package file

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// archiveAll переносит комментарии в архив с одной причиной,
// свежие записи встают в голову, лимит архива соблюдается
func (b *userBoard) archiveAll(comments []models.Comment, reason models.ArchiveReason, now time.Time) {
	for i := len(comments) - 1; i >= 0; i-- {
		b.archivePush(models.ArchivedComment{
			Comment:    comments[i],
			ArchivedAt: now.UTC(),
			Reason:     reason,
		})
	}
}

// archivePush кладет запись в голову архива и вытесняет самые старые
// сверх лимита. Вытесненное из архива пропадает безвозвратно.
func (b *userBoard) archivePush(e models.ArchivedComment) {
	b.Archive = append([]models.ArchivedComment{e}, b.Archive...)
	if len(b.Archive) > models.MaxArchivedCommentsPerUser {
		b.Archive = b.Archive[:models.MaxArchivedCommentsPerUser]
	}
}

// applyOverflow применяет лимит живых комментариев карточки:
// самые старые лишние уходят в архив с причиной overflow
func (b *userBoard) applyOverflow(cardID string, now time.Time) {
	overflow, live := models.OverflowComments(b.Comments[cardID], models.MaxLiveCommentsPerCard)
	if len(overflow) == 0 {
		b.Comments[cardID] = live
		return
	}
	b.archiveAll(overflow, models.ArchiveOverflow, now)
	b.Comments[cardID] = live
}

// ListComments returns live comments of a card, oldest first
func (s *Storage) ListComments(ctx context.Context, userID, cardID string, offset, limit int) ([]models.Comment, bool, error) {
	var out []models.Comment
	var hasMore bool
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		if _, ok := b.State.Cards[cardID]; !ok {
			return storage.ErrCardNotFound
		}
		comments := append([]models.Comment(nil), b.Comments[cardID]...)
		models.SortCommentsByAge(comments)
		lo, hi, more := storage.PageBounds(len(comments), offset, limit)
		hasMore = more
		out = comments[lo:hi]
		return nil
	})
	return out, hasMore, err
}

// AddComment inserts a live comment and applies the overflow rule
func (s *Storage) AddComment(ctx context.Context, userID string, comment *models.Comment) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if _, ok := b.State.Cards[comment.CardID]; !ok {
			return storage.ErrCardNotFound
		}
		now := s.now()
		c := *comment
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now.UTC()
		}
		c.UpdatedAt = c.CreatedAt
		b.Comments[c.CardID] = append(b.Comments[c.CardID], c)
		b.applyOverflow(c.CardID, now)
		b.Version++
		version = b.Version
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}

// findComment ищет живой комментарий по id среди всех карточек
func (b *userBoard) findComment(commentID string) (cardID string, idx int, ok bool) {
	for cid, comments := range b.Comments {
		for i, c := range comments {
			if c.ID == commentID {
				return cid, i, true
			}
		}
	}
	return "", 0, false
}

// inArchive сообщает, лежит ли комментарий в архиве
func (b *userBoard) inArchive(commentID string) bool {
	for _, e := range b.Archive {
		if e.ID == commentID {
			return true
		}
	}
	return false
}

// EditComment replaces text/images of the caller's own comment
func (s *Storage) EditComment(ctx context.Context, userID, commentID, author, text string, images []models.ImageRef) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		cardID, idx, ok := b.findComment(commentID)
		if !ok {
			if b.inArchive(commentID) {
				return storage.ErrCommentAlreadyDeleted
			}
			return storage.ErrCommentNotFound
		}
		c := &b.Comments[cardID][idx]
		if c.Author != author {
			return storage.ErrForbidden
		}
		c.Text = text
		c.Images = append([]models.ImageRef(nil), images...)
		if c.Empty() {
			return storage.ErrCommentNotFound
		}
		c.UpdatedAt = s.now().UTC()
		b.Version++
		version = b.Version
		cc := *c
		out = &cc
		return nil
	})
	return out, version, err
}

// DeleteComment archives the comment with reason delete and removes it
// from the live set
func (s *Storage) DeleteComment(ctx context.Context, userID, commentID, author string) (int64, error) {
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		cardID, idx, ok := b.findComment(commentID)
		if !ok {
			// Повторное удаление: комментарий уже в архиве
			if b.inArchive(commentID) {
				return storage.ErrCommentAlreadyDeleted
			}
			return storage.ErrCommentNotFound
		}
		c := b.Comments[cardID][idx]
		if c.Author != author {
			return storage.ErrForbidden
		}
		b.archivePush(models.ArchivedComment{
			Comment:    c,
			ArchivedAt: s.now().UTC(),
			Reason:     models.ArchiveDelete,
		})
		b.Comments[cardID] = append(b.Comments[cardID][:idx:idx], b.Comments[cardID][idx+1:]...)
		b.Version++
		version = b.Version
		return nil
	})
	return version, err
}

// ListArchivedComments returns archive entries, newest archived first
func (s *Storage) ListArchivedComments(ctx context.Context, userID string, offset, limit int) ([]models.ArchivedComment, bool, error) {
	var out []models.ArchivedComment
	var hasMore bool
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		lo, hi, more := storage.PageBounds(len(b.Archive), offset, limit)
		hasMore = more
		out = append(out, b.Archive[lo:hi]...)
		return nil
	})
	return out, hasMore, err
}

// RestoreArchivedComment re-inserts an archived comment as live.
// Id перегенерируется только при коллизии с существующим живым
// комментарием; восстановление само может вызвать новый overflow.
func (s *Storage) RestoreArchivedComment(ctx context.Context, userID, commentID string) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		idx := -1
		for i, e := range b.Archive {
			if e.ID == commentID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return storage.ErrArchiveEntryNotFound
		}
		entry := b.Archive[idx]
		if _, ok := b.State.Cards[entry.CardID]; !ok {
			// Карточки больше нет — восстанавливать некуда
			return storage.ErrCardNotFound
		}
		c := entry.Comment
		if _, _, collides := b.findComment(c.ID); collides {
			c.ID = uuid.New().String()
		}
		now := s.now()
		b.Archive = append(b.Archive[:idx:idx], b.Archive[idx+1:]...)
		b.Comments[c.CardID] = append(b.Comments[c.CardID], c)
		b.applyOverflow(c.CardID, now)
		b.State.AppendHistory(models.HistoryForCommentRestore(c.CardID, now))
		b.Version++
		version = b.Version
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}
