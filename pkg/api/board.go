package api

import (
	"encoding/json"

	"github.com/iudanet/boardkeeper/internal/models"
)

// BoardResponse несет состояние доски вместе с токеном версии
type BoardResponse struct {
	Version int64              `json:"version"`
	Board   *models.BoardState `json:"board"`
}

// BoardPutRequest представляет полную перезапись снимка доски.
// Board принимается как сырой JSON: форму ему придает санитайзер,
// а не декодер. nil ExpectedVersion означает безусловную запись.
type BoardPutRequest struct {
	Board           json.RawMessage `json:"board"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// VersionResponse подтверждает мутацию новой версией доски
type VersionResponse struct {
	Version int64 `json:"version"`
}

// ConflictResponse возвращается при проигрыше оптимистичной записи
type ConflictResponse struct {
	Error          string `json:"error"`
	CurrentVersion int64  `json:"currentVersion"`
}

// CardCreateRequest представляет создание карточки в колонке
type CardCreateRequest struct {
	Column      string          `json:"column"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Urgency     string          `json:"urgency,omitempty"`
	Images      json.RawMessage `json:"images,omitempty"`
	Checklist   json.RawMessage `json:"checklist,omitempty"`
}

// CardMoveRequest представляет перемещение карточки: либо колонка с
// позицией вставки, либо свободная позиция
type CardMoveRequest struct {
	Column          *string             `json:"column,omitempty"`
	Index           *int                `json:"index,omitempty"`
	Floating        *models.FloatingPos `json:"floating,omitempty"`
	ExpectedVersion *int64              `json:"expectedVersion,omitempty"`
}

// CardPatchRequest представляет частичное обновление карточки
type CardPatchRequest struct {
	Title           *string         `json:"title,omitempty"`
	Description     *string         `json:"description,omitempty"`
	Urgency         *string         `json:"urgency,omitempty"`
	Favorite        *bool           `json:"favorite,omitempty"`
	Images          json.RawMessage `json:"images,omitempty"`
	Checklist       json.RawMessage `json:"checklist,omitempty"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
}

// CardResponse несет одну карточку и новую версию доски
type CardResponse struct {
	Version int64        `json:"version"`
	Card    *models.Card `json:"card"`
}

// CardListResponse несет страницу карточек
type CardListResponse struct {
	Cards      []models.Card `json:"cards"`
	HasMore    bool          `json:"hasMore"`
	NextOffset int           `json:"nextOffset"`
}
