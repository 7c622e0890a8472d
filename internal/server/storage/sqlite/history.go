package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// AppendHistory appends a history entry (FIFO-capped)
func (s *Storage) AppendHistory(ctx context.Context, userID string, entry models.HistoryEntry) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		if entry.ID == "" {
			entry.ID = models.NewHistoryID()
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = s.now().UTC()
		}
		if err := insertHistoryTx(ctx, tx, userID, entry); err != nil {
			return err
		}
		if err := pruneHistoryTx(ctx, tx, userID); err != nil {
			return err
		}
		var err error
		version, err = bumpVersion(ctx, tx, userID)
		return err
	})
	return version, err
}

// ListHistory returns history entries, most recent first
func (s *Storage) ListHistory(ctx context.Context, userID string, offset, limit int) ([]models.HistoryEntry, bool, error) {
	var out []models.HistoryEntry
	var hasMore bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var total int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM history WHERE user_id = ?`, userID).Scan(&total); err != nil {
			return fmt.Errorf("failed to count history: %w", err)
		}
		lo, hi, more := storage.PageBounds(total, offset, limit)
		hasMore = more
		if hi == lo {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT entry_id, ts, text, card_id, kind, meta FROM history
			 WHERE user_id = ?
			 ORDER BY ts DESC, entry_id DESC LIMIT ? OFFSET ?`, userID, hi-lo, lo)
		if err != nil {
			return fmt.Errorf("failed to query history: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var e models.HistoryEntry
			var ts int64
			var meta string
			if err := rows.Scan(&e.ID, &ts, &e.Text, &e.RelatedCardID, &e.Kind, &meta); err != nil {
				return fmt.Errorf("failed to scan history row: %w", err)
			}
			e.Timestamp = fromMillis(ts)
			_ = json.Unmarshal([]byte(meta), &e.Meta)
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, hasMore, err
}

// ClearHistory removes all history entries
func (s *Storage) ClearHistory(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockVersion(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM history WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		var err error
		version, err = bumpVersion(ctx, tx, userID)
		return err
	})
	return version, err
}

// MediaRefs returns media ids reachable from the board, live comments
// and the archive, mapped to recorded byte sizes. Читает индекс
// достижимости, который каждая мутация перестраивает транзакционно.
func (s *Storage) MediaRefs(ctx context.Context, userID string) (map[string]int64, error) {
	refs := make(map[string]int64)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT file_id, MAX(size) FROM media_links
			WHERE user_id = ? GROUP BY file_id`, userID)
		if err != nil {
			return fmt.Errorf("failed to query media links: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			var size int64
			if err := rows.Scan(&id, &size); err != nil {
				return fmt.Errorf("failed to scan media link: %w", err)
			}
			refs[id] = size
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}
