package api

// MediaUploadResponse подтверждает принятую загрузку
type MediaUploadResponse struct {
	FileID   string `json:"fileId"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
	URL      string `json:"url"` // производный путь /media/{id}
}

// QuotaExceededResponse возвращается при отклоненной по квоте загрузке
type QuotaExceededResponse struct {
	Error      string `json:"error"`
	LimitBytes int64  `json:"limitBytes"`
	UsedBytes  int64  `json:"usedBytes"`
	AskedBytes int64  `json:"askedBytes"`
}
