package models

import "time"

// AllowedImageMimeTypes — закрытый набор принимаемых типов изображений
var AllowedImageMimeTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ExtensionForMime возвращает расширение файла для MIME-типа из закрытого набора
func ExtensionForMime(mime string) (string, bool) {
	ext, ok := AllowedImageMimeTypes[mime]
	return ext, ok
}

// MediaFile описывает сохраненный blob в media store
type MediaFile struct {
	ID        string    `json:"id"` // opaque id, включает расширение
	OwnerID   string    `json:"ownerId"`
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
