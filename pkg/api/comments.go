package api

import (
	"encoding/json"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
)

// CommentCreateRequest представляет новый комментарий карточки.
// Текст и изображения проходят санитайзер, хотя бы одно из двух
// должно выжить после очистки.
type CommentCreateRequest struct {
	Text   string          `json:"text,omitempty"`
	Images json.RawMessage `json:"images,omitempty"`
}

// CommentEditRequest представляет правку собственного комментария
type CommentEditRequest struct {
	Text   string          `json:"text,omitempty"`
	Images json.RawMessage `json:"images,omitempty"`
}

// CommentResponse несет один комментарий и новую версию доски
type CommentResponse struct {
	Version int64           `json:"version"`
	Comment *models.Comment `json:"comment"`
}

// CommentListResponse несет страницу живых комментариев карточки
type CommentListResponse struct {
	Comments   []models.Comment `json:"comments"`
	HasMore    bool             `json:"hasMore"`
	NextOffset int              `json:"nextOffset"`
}

// ArchiveListResponse несет страницу архива комментариев
type ArchiveListResponse struct {
	Entries    []models.ArchivedComment `json:"entries"`
	HasMore    bool                     `json:"hasMore"`
	NextOffset int                      `json:"nextOffset"`
}

// HistoryListResponse несет страницу истории доски
type HistoryListResponse struct {
	Entries    []models.HistoryEntry `json:"entries"`
	HasMore    bool                  `json:"hasMore"`
	NextOffset int                   `json:"nextOffset"`
}

// ActivityEntry одна запись журнала действий пользователя
type ActivityEntry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// ActivityListResponse несет последние действия пользователя,
// новые первыми
type ActivityListResponse struct {
	Entries []ActivityEntry `json:"entries"`
}
