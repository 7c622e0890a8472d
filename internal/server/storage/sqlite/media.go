package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// SaveMediaFile records an uploaded media file
func (s *Storage) SaveMediaFile(ctx context.Context, f *models.MediaFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO media_files (file_id, owner_id, mime_type, size, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.MimeType, f.Size, f.Name, toMillis(f.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to save media file: %w", err)
	}
	return nil
}

// GetMediaFile retrieves media file metadata by id
func (s *Storage) GetMediaFile(ctx context.Context, fileID string) (*models.MediaFile, error) {
	f := &models.MediaFile{}
	var createdAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT file_id, owner_id, mime_type, size, name, created_at
		FROM media_files WHERE file_id = ?`, fileID).
		Scan(&f.ID, &f.OwnerID, &f.MimeType, &f.Size, &f.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrMediaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get media file: %w", err)
	}
	f.CreatedAt = fromMillis(createdAt)
	return f, nil
}

// DeleteMediaFile removes the metadata record; unknown id is not an error
func (s *Storage) DeleteMediaFile(ctx context.Context, fileID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM media_files WHERE file_id = ?`, fileID); err != nil {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// ListUserMediaFiles returns all recorded files owned by the user
func (s *Storage) ListUserMediaFiles(ctx context.Context, userID string) ([]models.MediaFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_id, owner_id, mime_type, size, name, created_at
		FROM media_files WHERE owner_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}
	defer rows.Close()
	var out []models.MediaFile
	for rows.Next() {
		var f models.MediaFile
		var createdAt int64
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.MimeType, &f.Size, &f.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan media file: %w", err)
		}
		f.CreatedAt = fromMillis(createdAt)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("media files iteration error: %w", err)
	}
	return out, nil
}
