package storage

import (
	"context"

	"github.com/iudanet/boardkeeper/internal/models"
)

// MediaStorage defines interface for media file metadata persistence.
// Сами байты живут в media store на диске; здесь только учетная запись
// загрузки (владелец, MIME, размер, имя) для отдачи и квоты.
type MediaStorage interface {
	// SaveMediaFile records an uploaded media file
	SaveMediaFile(ctx context.Context, file *models.MediaFile) error

	// GetMediaFile retrieves media file metadata by id.
	// Returns ErrMediaNotFound if the file was never recorded.
	GetMediaFile(ctx context.Context, fileID string) (*models.MediaFile, error)

	// DeleteMediaFile removes the metadata record (GC path).
	// Deleting an unknown id is not an error.
	DeleteMediaFile(ctx context.Context, fileID string) error

	// ListUserMediaFiles returns all recorded files owned by the user
	ListUserMediaFiles(ctx context.Context, userID string) ([]models.MediaFile, error)
}

// Storage объединяет весь контракт бекенда. Оба бекенда (file, sqlite)
// реализуют его целиком.
type Storage interface {
	UserStorage
	SessionStorage
	BoardStorage
	MediaStorage
}
