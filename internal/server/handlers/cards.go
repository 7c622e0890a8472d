package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// CardsHandler обрабатывает операции над отдельными карточками
type CardsHandler struct {
	logger   *slog.Logger
	storage  storage.BoardStorage
	grace    *media.Grace
	gc       *media.Collector
	activity *activity.Log
}

// NewCardsHandler создает новый handler для карточек
func NewCardsHandler(logger *slog.Logger, st storage.BoardStorage, grace *media.Grace, gc *media.Collector, act *activity.Log) *CardsHandler {
	return &CardsHandler{
		logger:   logger,
		storage:  st,
		grace:    grace,
		gc:       gc,
		activity: act,
	}
}

// rawImages декодирует и санирует произвольный JSON-список изображений
func rawImages(raw json.RawMessage, now time.Time) []models.ImageRef {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return sanitize.CardImages(v, now)
}

// rawChecklist декодирует и санирует произвольный JSON-чеклист
func rawChecklist(raw json.RawMessage, now time.Time) []models.ChecklistItem {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return sanitize.Checklist(v, now)
}

// afterImagesChange снимает grace-защиту с привязанных файлов и
// назначает свип
func afterImagesChange(grace *media.Grace, gc *media.Collector, userID string, images []models.ImageRef) {
	var ids []string
	for _, img := range images {
		if img.FileID != "" {
			ids = append(ids, img.FileID)
		}
		if img.PreviewID != "" {
			ids = append(ids, img.PreviewID)
		}
	}
	if len(ids) > 0 {
		grace.Evict(ids...)
	}
	gc.Schedule(userID)
}

// Create обрабатывает POST /api/v1/cards
func (h *CardsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.CardCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode card request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	col := models.Column(req.Column)
	if !models.IsValidColumn(col) {
		sendError(h.logger, w, "unknown column", http.StatusBadRequest)
		return
	}

	now := time.Now()
	login, _ := GetUsername(ctx)
	card := &models.Card{
		Title:       sanitize.CleanLine(req.Title, sanitize.MaxTitleLen),
		Description: sanitize.CleanText(req.Description, sanitize.MaxDescriptionLen),
		CreatedBy:   login,
		Images:      rawImages(req.Images, now),
		Checklist:   rawChecklist(req.Checklist, now),
	}
	if card.Title == "" {
		sendError(h.logger, w, "title is required", http.StatusBadRequest)
		return
	}
	if u := models.Urgency(req.Urgency); models.IsValidUrgency(u) {
		card.Urgency = u
	}

	created, version, err := h.storage.CreateCard(ctx, userID, card, col)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to create card", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	afterImagesChange(h.grace, h.gc, userID, created.Images)
	h.activity.Record(userID, "card.create", created.ID)

	h.logger.InfoContext(ctx, "card created",
		slog.String("user_id", userID),
		slog.String("card_id", created.ID))

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CardResponse{Version: version, Card: created}, http.StatusCreated)
}

// Move обрабатывает POST /api/v1/cards/{id}/move
func (h *CardsHandler) Move(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID := r.PathValue("id")
	if cardID == "" {
		sendError(h.logger, w, "card id is required", http.StatusBadRequest)
		return
	}

	var req api.CardMoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode move request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	var target storage.MoveTarget
	switch {
	case req.Column != nil:
		col := models.Column(*req.Column)
		if !models.IsValidColumn(col) {
			sendError(h.logger, w, "unknown column", http.StatusBadRequest)
			return
		}
		target.Column = &col
		target.Index = -1
		if req.Index != nil {
			target.Index = *req.Index
		}
	case req.Floating != nil:
		pos := *req.Floating
		target.Floating = &pos
	default:
		sendError(h.logger, w, "either column or floating target is required", http.StatusBadRequest)
		return
	}

	card, version, err := h.storage.MoveCard(ctx, userID, cardID, target, req.ExpectedVersion)
	if err != nil {
		h.writeCardError(ctx, w, err, "failed to move card")
		return
	}

	h.activity.Record(userID, "card.move", cardID)
	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CardResponse{Version: version, Card: card}, http.StatusOK)
}

// Patch обрабатывает PATCH /api/v1/cards/{id}
func (h *CardsHandler) Patch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID := r.PathValue("id")
	if cardID == "" {
		sendError(h.logger, w, "card id is required", http.StatusBadRequest)
		return
	}

	var req api.CardPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode patch request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	var patch storage.CardPatch
	if req.Title != nil {
		t := sanitize.CleanLine(*req.Title, sanitize.MaxTitleLen)
		if t == "" {
			sendError(h.logger, w, "title must not be empty", http.StatusBadRequest)
			return
		}
		patch.Title = &t
	}
	if req.Description != nil {
		d := sanitize.CleanText(*req.Description, sanitize.MaxDescriptionLen)
		patch.Description = &d
	}
	if req.Urgency != nil {
		u := models.Urgency(*req.Urgency)
		if !models.IsValidUrgency(u) {
			sendError(h.logger, w, "unknown urgency", http.StatusBadRequest)
			return
		}
		patch.Urgency = &u
	}
	if req.Favorite != nil {
		patch.Favorite = req.Favorite
	}
	if req.Images != nil {
		images := rawImages(req.Images, now)
		patch.Images = &images
	}
	if req.Checklist != nil {
		checklist := rawChecklist(req.Checklist, now)
		patch.Checklist = &checklist
	}

	card, version, err := h.storage.PatchCard(ctx, userID, cardID, patch, req.ExpectedVersion)
	if err != nil {
		h.writeCardError(ctx, w, err, "failed to patch card")
		return
	}

	if patch.Images != nil {
		afterImagesChange(h.grace, h.gc, userID, card.Images)
	}
	h.activity.Record(userID, "card.patch", cardID)

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CardResponse{Version: version, Card: card}, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/cards/{id}
func (h *CardsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID := r.PathValue("id")
	if cardID == "" {
		sendError(h.logger, w, "card id is required", http.StatusBadRequest)
		return
	}

	var expected *int64
	if v := r.URL.Query().Get("expectedVersion"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			expected = &parsed
		}
	}

	version, err := h.storage.DeleteCard(ctx, userID, cardID, expected)
	if err != nil {
		h.writeCardError(ctx, w, err, "failed to delete card")
		return
	}

	// Удаление снимает ссылки: файлы карточки решает ближайший свип
	h.gc.Schedule(userID)
	h.activity.Record(userID, "card.delete", cardID)

	h.logger.InfoContext(ctx, "card deleted",
		slog.String("user_id", userID),
		slog.String("card_id", cardID))

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.VersionResponse{Version: version}, http.StatusOK)
}

// Favorites обрабатывает GET /api/v1/cards/favorites
func (h *CardsHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	offset, limit := parsePage(r)
	cards, hasMore, err := h.storage.ListFavorites(ctx, userID, offset, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list favorites", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, api.CardListResponse{
		Cards:      cards,
		HasMore:    hasMore,
		NextOffset: offset + len(cards),
	}, http.StatusOK)
}

// writeCardError переводит ошибки хранилища в HTTP-ответы
func (h *CardsHandler) writeCardError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	if vc, ok := storage.AsVersionConflict(err); ok {
		sendConflict(h.logger, w, vc)
		return
	}
	if errors.Is(err, storage.ErrCardNotFound) {
		sendError(h.logger, w, "card not found", http.StatusNotFound)
		return
	}
	h.logger.ErrorContext(ctx, logMsg, slog.Any("error", err))
	sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
}
