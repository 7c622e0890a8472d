package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

const commentColumns = `comment_id, card_id, author, body, images, created_at, updated_at`

func scanComment(scanner interface{ Scan(...any) error }) (models.Comment, error) {
	var c models.Comment
	var images string
	var createdAt, updatedAt int64
	err := scanner.Scan(&c.ID, &c.CardID, &c.Author, &c.Text, &images, &createdAt, &updatedAt)
	if err != nil {
		return models.Comment{}, err
	}
	c.Images = unmarshalImages(images)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func cardExistsTx(ctx context.Context, tx *sql.Tx, userID, cardID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM cards WHERE user_id = ? AND card_id = ?`, userID, cardID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check card: %w", err)
	}
	return true, nil
}

// getCommentTx ищет живой комментарий по id
func getCommentTx(ctx context.Context, tx *sql.Tx, userID, commentID string) (models.Comment, bool, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE user_id = ? AND comment_id = ?`,
		userID, commentID)
	c, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Comment{}, false, nil
	}
	if err != nil {
		return models.Comment{}, false, fmt.Errorf("failed to get comment: %w", err)
	}
	return c, true, nil
}

func inArchiveTx(ctx context.Context, tx *sql.Tx, userID, commentID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM comments_archive WHERE user_id = ? AND comment_id = ?`,
		userID, commentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check archive: %w", err)
	}
	return true, nil
}

// insertLiveCommentTx вставляет живой комментарий и его media-ссылки
func insertLiveCommentTx(ctx context.Context, tx *sql.Tx, userID string, c models.Comment) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO comments (user_id, `+commentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, c.ID, c.CardID, c.Author, c.Text, marshalJSON(c.Images),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt)); err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return insertImageLinksTx(ctx, tx, userID, "comment", c.ID, c.Images)
}

// archiveCommentTx переносит один живой комментарий в архив:
// строка и media-ссылки меняют таблицу и источник в одной транзакции
func archiveCommentTx(ctx context.Context, tx *sql.Tx, userID string, c models.Comment, reason models.ArchiveReason, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO comments_archive
			(user_id, `+commentColumns+`, archived_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, c.ID, c.CardID, c.Author, c.Text, marshalJSON(c.Images),
		toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
		toMillis(now), string(reason)); err != nil {
		return fmt.Errorf("failed to archive comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE user_id = ? AND comment_id = ?`, userID, c.ID); err != nil {
		return fmt.Errorf("failed to delete live comment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media_links WHERE user_id = ? AND source = 'comment' AND ref_id = ?`,
		userID, c.ID); err != nil {
		return fmt.Errorf("failed to clear comment links: %w", err)
	}
	if err := insertImageLinksTx(ctx, tx, userID, "archive", c.ID, c.Images); err != nil {
		return err
	}
	return pruneArchiveTx(ctx, tx, userID)
}

// archiveCardCommentsTx архивирует все живые комментарии карточки
func (s *Storage) archiveCardCommentsTx(ctx context.Context, tx *sql.Tx, userID, cardID string, reason models.ArchiveReason, now time.Time) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE user_id = ? AND card_id = ?
		 ORDER BY created_at, comment_id`, userID, cardID)
	if err != nil {
		return fmt.Errorf("failed to query card comments: %w", err)
	}
	var comments []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("comments iteration error: %w", err)
	}
	rows.Close()
	for _, c := range comments {
		if err := archiveCommentTx(ctx, tx, userID, c, reason, now); err != nil {
			return err
		}
	}
	return nil
}

// applyOverflowTx вытесняет самые старые живые комментарии карточки
// сверх лимита в архив с причиной overflow
func applyOverflowTx(ctx context.Context, tx *sql.Tx, userID, cardID string, now time.Time) error {
	var total int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE user_id = ? AND card_id = ?`,
		userID, cardID).Scan(&total); err != nil {
		return fmt.Errorf("failed to count comments: %w", err)
	}
	excess := total - models.MaxLiveCommentsPerCard
	if excess <= 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE user_id = ? AND card_id = ?
		 ORDER BY created_at, comment_id LIMIT ?`, userID, cardID, excess)
	if err != nil {
		return fmt.Errorf("failed to query overflow: %w", err)
	}
	var overflow []models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan overflow comment: %w", err)
		}
		overflow = append(overflow, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("overflow iteration error: %w", err)
	}
	rows.Close()
	for _, c := range overflow {
		if err := archiveCommentTx(ctx, tx, userID, c, models.ArchiveOverflow, now); err != nil {
			return err
		}
	}
	return nil
}

// pruneArchiveTx вытесняет записи сверх лимита архива.
// Внутри одного archived_at держится тот же порядок, что и в выдаче:
// старые комментарии пачки впереди, вытесняется хвост.
// Вытесненное из архива пропадает безвозвратно вместе со ссылками.
func pruneArchiveTx(ctx context.Context, tx *sql.Tx, userID string) error {
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM media_links WHERE user_id = ? AND source = 'archive' AND ref_id IN (
			SELECT comment_id FROM comments_archive WHERE user_id = ?
			ORDER BY archived_at DESC, created_at, comment_id
			LIMIT -1 OFFSET ?
		)`, userID, userID, models.MaxArchivedCommentsPerUser); err != nil {
		return fmt.Errorf("failed to prune archive links: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM comments_archive WHERE user_id = ? AND comment_id IN (
			SELECT comment_id FROM comments_archive WHERE user_id = ?
			ORDER BY archived_at DESC, created_at, comment_id
			LIMIT -1 OFFSET ?
		)`, userID, userID, models.MaxArchivedCommentsPerUser); err != nil {
		return fmt.Errorf("failed to prune archive: %w", err)
	}
	return nil
}

// ListComments returns live comments of a card, oldest first
func (s *Storage) ListComments(ctx context.Context, userID, cardID string, offset, limit int) ([]models.Comment, bool, error) {
	var out []models.Comment
	var hasMore bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := cardExistsTx(ctx, tx, userID, cardID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrCardNotFound
		}
		var total int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM comments WHERE user_id = ? AND card_id = ?`,
			userID, cardID).Scan(&total); err != nil {
			return fmt.Errorf("failed to count comments: %w", err)
		}
		lo, hi, more := storage.PageBounds(total, offset, limit)
		hasMore = more
		if hi == lo {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT `+commentColumns+` FROM comments
			 WHERE user_id = ? AND card_id = ?
			 ORDER BY created_at, comment_id LIMIT ? OFFSET ?`,
			userID, cardID, hi-lo, lo)
		if err != nil {
			return fmt.Errorf("failed to query comments: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			c, err := scanComment(rows)
			if err != nil {
				return fmt.Errorf("failed to scan comment: %w", err)
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	return out, hasMore, err
}

// AddComment inserts a live comment and applies the overflow rule
func (s *Storage) AddComment(ctx context.Context, userID string, comment *models.Comment) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		exists, err := cardExistsTx(ctx, tx, userID, comment.CardID)
		if err != nil {
			return err
		}
		if !exists {
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
		if err := insertLiveCommentTx(ctx, tx, userID, c); err != nil {
			return err
		}
		if err := applyOverflowTx(ctx, tx, userID, c.CardID, now); err != nil {
			return err
		}
		version, err = bumpVersion(ctx, tx, userID)
		if err != nil {
			return err
		}
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}

// EditComment replaces text/images of the caller's own comment
func (s *Storage) EditComment(ctx context.Context, userID, commentID, author, text string, images []models.ImageRef) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		c, ok, err := getCommentTx(ctx, tx, userID, commentID)
		if err != nil {
			return err
		}
		if !ok {
			archived, err := inArchiveTx(ctx, tx, userID, commentID)
			if err != nil {
				return err
			}
			if archived {
				return storage.ErrCommentAlreadyDeleted
			}
			return storage.ErrCommentNotFound
		}
		if c.Author != author {
			return storage.ErrForbidden
		}
		c.Text = text
		c.Images = append([]models.ImageRef(nil), images...)
		if c.Empty() {
			return storage.ErrCommentNotFound
		}
		c.UpdatedAt = s.now().UTC()
		if err := insertLiveCommentTx(ctx, tx, userID, c); err != nil {
			return err
		}
		// Переписываем ссылки целиком: старый набор изображений мог уйти
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM media_links WHERE user_id = ? AND source = 'comment' AND ref_id = ?`,
			userID, c.ID); err != nil {
			return fmt.Errorf("failed to clear comment links: %w", err)
		}
		if err := insertImageLinksTx(ctx, tx, userID, "comment", c.ID, c.Images); err != nil {
			return err
		}
		version, err = bumpVersion(ctx, tx, userID)
		if err != nil {
			return err
		}
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}

// DeleteComment archives the comment with reason delete and removes it
// from the live set
func (s *Storage) DeleteComment(ctx context.Context, userID, commentID, author string) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		c, ok, err := getCommentTx(ctx, tx, userID, commentID)
		if err != nil {
			return err
		}
		if !ok {
			// Повторное удаление: комментарий уже в архиве
			archived, err := inArchiveTx(ctx, tx, userID, commentID)
			if err != nil {
				return err
			}
			if archived {
				return storage.ErrCommentAlreadyDeleted
			}
			return storage.ErrCommentNotFound
		}
		if c.Author != author {
			return storage.ErrForbidden
		}
		if err := archiveCommentTx(ctx, tx, userID, c, models.ArchiveDelete, s.now()); err != nil {
			return err
		}
		version, err = bumpVersion(ctx, tx, userID)
		return err
	})
	return version, err
}

// ListArchivedComments returns archive entries, newest archived first.
// Пачка с одним archived_at (удаление карточки, множественный overflow)
// выдается в исходном порядке комментариев, старые впереди.
func (s *Storage) ListArchivedComments(ctx context.Context, userID string, offset, limit int) ([]models.ArchivedComment, bool, error) {
	var out []models.ArchivedComment
	var hasMore bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var total int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM comments_archive WHERE user_id = ?`, userID).Scan(&total); err != nil {
			return fmt.Errorf("failed to count archive: %w", err)
		}
		lo, hi, more := storage.PageBounds(total, offset, limit)
		hasMore = more
		if hi == lo {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT `+commentColumns+`, archived_at, reason FROM comments_archive
			 WHERE user_id = ?
			 ORDER BY archived_at DESC, created_at, comment_id
			 LIMIT ? OFFSET ?`, userID, hi-lo, lo)
		if err != nil {
			return fmt.Errorf("failed to query archive: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e models.ArchivedComment
			var images string
			var createdAt, updatedAt, archivedAt int64
			if err := rows.Scan(&e.ID, &e.CardID, &e.Author, &e.Text, &images,
				&createdAt, &updatedAt, &archivedAt, &e.Reason); err != nil {
				return fmt.Errorf("failed to scan archive entry: %w", err)
			}
			e.Images = unmarshalImages(images)
			e.CreatedAt = fromMillis(createdAt)
			e.UpdatedAt = fromMillis(updatedAt)
			e.ArchivedAt = fromMillis(archivedAt)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, hasMore, err
}

// RestoreArchivedComment re-inserts an archived comment as live.
// Id перегенерируется только при коллизии с существующим живым
// комментарием; восстановление само может вызвать новый overflow.
func (s *Storage) RestoreArchivedComment(ctx context.Context, userID, commentID string) (*models.Comment, int64, error) {
	var out *models.Comment
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx,
			`SELECT `+commentColumns+` FROM comments_archive
			 WHERE user_id = ? AND comment_id = ?`, userID, commentID)
		c, err := scanComment(row)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrArchiveEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get archive entry: %w", err)
		}
		exists, err := cardExistsTx(ctx, tx, userID, c.CardID)
		if err != nil {
			return err
		}
		if !exists {
			// Карточки больше нет — восстанавливать некуда
			return storage.ErrCardNotFound
		}
		if _, collides, err := getCommentTx(ctx, tx, userID, c.ID); err != nil {
			return err
		} else if collides {
			c.ID = uuid.New().String()
		}
		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM comments_archive WHERE user_id = ? AND comment_id = ?`,
			userID, commentID); err != nil {
			return fmt.Errorf("failed to delete archive entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM media_links WHERE user_id = ? AND source = 'archive' AND ref_id = ?`,
			userID, commentID); err != nil {
			return fmt.Errorf("failed to clear archive links: %w", err)
		}
		if err := insertLiveCommentTx(ctx, tx, userID, c); err != nil {
			return err
		}
		if err := applyOverflowTx(ctx, tx, userID, c.CardID, now); err != nil {
			return err
		}
		if err := insertHistoryTx(ctx, tx, userID, models.HistoryForCommentRestore(c.CardID, now)); err != nil {
			return err
		}
		if err := pruneHistoryTx(ctx, tx, userID); err != nil {
			return err
		}
		version, err = bumpVersion(ctx, tx, userID)
		if err != nil {
			return err
		}
		cc := c
		out = &cc
		return nil
	})
	return out, version, err
}
