package file

import (
	"context"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// AppendHistory appends a history entry (FIFO-capped)
func (s *Storage) AppendHistory(ctx context.Context, userID string, entry models.HistoryEntry) (int64, error) {
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		if entry.ID == "" {
			entry.ID = models.NewHistoryID()
		}
		if entry.Timestamp.IsZero() {
			entry.Timestamp = s.now().UTC()
		}
		b.State.AppendHistory(entry)
		b.Version++
		version = b.Version
		return nil
	})
	return version, err
}

// ListHistory returns history entries, most recent first
func (s *Storage) ListHistory(ctx context.Context, userID string, offset, limit int) ([]models.HistoryEntry, bool, error) {
	var out []models.HistoryEntry
	var hasMore bool
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		lo, hi, more := storage.PageBounds(len(b.State.History), offset, limit)
		hasMore = more
		out = append(out, b.State.History[lo:hi]...)
		return nil
	})
	return out, hasMore, err
}

// ClearHistory removes all history entries
func (s *Storage) ClearHistory(ctx context.Context, userID string) (int64, error) {
	var version int64
	err := s.mutate(func(doc *document) error {
		b := doc.board(userID)
		b.State.History = []models.HistoryEntry{}
		b.Version++
		version = b.Version
		return nil
	})
	return version, err
}

// MediaRefs returns media ids reachable from the board, live comments
// and the archive, mapped to recorded byte sizes
func (s *Storage) MediaRefs(ctx context.Context, userID string) (map[string]int64, error) {
	refs := make(map[string]int64)
	err := s.view(func(doc *document) error {
		b := doc.board(userID)
		for id, size := range b.State.MediaRefs() {
			refs[id] = size
		}
		for _, comments := range b.Comments {
			for i := range comments {
				comments[i].MediaRefs(refs)
			}
		}
		for i := range b.Archive {
			b.Archive[i].MediaRefs(refs)
		}
		// Аватар пользователя тоже держит ссылку
		if u, ok := doc.Users[userID]; ok && u.Profile.AvatarID != "" {
			if _, seen := refs[u.Profile.AvatarID]; !seen {
				refs[u.Profile.AvatarID] = 0
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// SaveMediaFile records an uploaded media file
func (s *Storage) SaveMediaFile(ctx context.Context, f *models.MediaFile) error {
	return s.mutate(func(doc *document) error {
		doc.Media[f.ID] = *f
		return nil
	})
}

// GetMediaFile retrieves media file metadata by id
func (s *Storage) GetMediaFile(ctx context.Context, fileID string) (*models.MediaFile, error) {
	var out *models.MediaFile
	err := s.view(func(doc *document) error {
		f, ok := doc.Media[fileID]
		if !ok {
			return storage.ErrMediaNotFound
		}
		out = &f
		return nil
	})
	return out, err
}

// DeleteMediaFile removes the metadata record; unknown id is not an error
func (s *Storage) DeleteMediaFile(ctx context.Context, fileID string) error {
	return s.mutate(func(doc *document) error {
		delete(doc.Media, fileID)
		return nil
	})
}

// ListUserMediaFiles returns all recorded files owned by the user
func (s *Storage) ListUserMediaFiles(ctx context.Context, userID string) ([]models.MediaFile, error) {
	var out []models.MediaFile
	err := s.view(func(doc *document) error {
		for _, f := range doc.Media {
			if f.OwnerID == userID {
				out = append(out, f)
			}
		}
		return nil
	})
	return out, err
}
