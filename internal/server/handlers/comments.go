package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// CommentsHandler обрабатывает жизненный цикл комментариев:
// живые, архив и восстановление
type CommentsHandler struct {
	logger   *slog.Logger
	storage  storage.BoardStorage
	grace    *media.Grace
	gc       *media.Collector
	activity *activity.Log
}

// NewCommentsHandler создает новый handler для комментариев
func NewCommentsHandler(logger *slog.Logger, st storage.BoardStorage, grace *media.Grace, gc *media.Collector, act *activity.Log) *CommentsHandler {
	return &CommentsHandler{
		logger:   logger,
		storage:  st,
		grace:    grace,
		gc:       gc,
		activity: act,
	}
}

// List обрабатывает GET /api/v1/cards/{id}/comments
func (h *CommentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cardID := r.PathValue("id")
	offset, limit := parsePage(r)

	comments, hasMore, err := h.storage.ListComments(ctx, userID, cardID, offset, limit)
	if err != nil {
		if errors.Is(err, storage.ErrCardNotFound) {
			sendError(h.logger, w, "card not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to list comments", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, api.CommentListResponse{
		Comments:   comments,
		HasMore:    hasMore,
		NextOffset: offset + len(comments),
	}, http.StatusOK)
}

// Create обрабатывает POST /api/v1/cards/{id}/comments
// Текст проходит HTML-санитайзер; комментарий без текста и без
// изображений после очистки отклоняется
func (h *CommentsHandler) Create(w http.ResponseWriter, r *http.Request) {
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

	var req api.CommentCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode comment request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	login, _ := GetUsername(ctx)
	comment := &models.Comment{
		CardID:    cardID,
		Author:    login,
		Text:      sanitize.CommentText(req.Text),
		Images:    rawImages(req.Images, now),
		CreatedAt: now.UTC(),
	}
	if comment.Empty() {
		sendError(h.logger, w, "comment must have text or images", http.StatusBadRequest)
		return
	}

	created, version, err := h.storage.AddComment(ctx, userID, comment)
	if err != nil {
		if errors.Is(err, storage.ErrCardNotFound) {
			sendError(h.logger, w, "card not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to add comment", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	afterImagesChange(h.grace, h.gc, userID, created.Images)
	h.activity.Record(userID, "comment.create", created.ID)

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CommentResponse{Version: version, Comment: created}, http.StatusCreated)
}

// Edit обрабатывает PUT /api/v1/comments/{id}
func (h *CommentsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	commentID := r.PathValue("id")
	if commentID == "" {
		sendError(h.logger, w, "comment id is required", http.StatusBadRequest)
		return
	}

	var req api.CommentEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode edit request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	now := time.Now()
	login, _ := GetUsername(ctx)
	text := sanitize.CommentText(req.Text)
	images := rawImages(req.Images, now)
	if text == "" && len(images) == 0 {
		sendError(h.logger, w, "comment must have text or images", http.StatusBadRequest)
		return
	}

	comment, version, err := h.storage.EditComment(ctx, userID, commentID, login, text, images)
	if err != nil {
		h.writeCommentError(ctx, w, err, "failed to edit comment")
		return
	}

	afterImagesChange(h.grace, h.gc, userID, comment.Images)
	h.activity.Record(userID, "comment.edit", commentID)

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CommentResponse{Version: version, Comment: comment}, http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/comments/{id}
// Повторное удаление дает отдельный ответ, а не "не найден"
func (h *CommentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	commentID := r.PathValue("id")
	if commentID == "" {
		sendError(h.logger, w, "comment id is required", http.StatusBadRequest)
		return
	}

	login, _ := GetUsername(ctx)
	version, err := h.storage.DeleteComment(ctx, userID, commentID, login)
	if err != nil {
		h.writeCommentError(ctx, w, err, "failed to delete comment")
		return
	}

	// Комментарий ушел в архив, ссылки на файлы сохранились; свип
	// назначаем на случай, если правка сняла часть ссылок раньше
	h.gc.Schedule(userID)
	h.activity.Record(userID, "comment.delete", commentID)

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.VersionResponse{Version: version}, http.StatusOK)
}

// Archive обрабатывает GET /api/v1/comments/archive
func (h *CommentsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	offset, limit := parsePage(r)
	entries, hasMore, err := h.storage.ListArchivedComments(ctx, userID, offset, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list archive", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, api.ArchiveListResponse{
		Entries:    entries,
		HasMore:    hasMore,
		NextOffset: offset + len(entries),
	}, http.StatusOK)
}

// Restore обрабатывает POST /api/v1/comments/archive/{id}/restore
func (h *CommentsHandler) Restore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	commentID := r.PathValue("id")
	if commentID == "" {
		sendError(h.logger, w, "archive entry id is required", http.StatusBadRequest)
		return
	}

	comment, version, err := h.storage.RestoreArchivedComment(ctx, userID, commentID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrArchiveEntryNotFound):
			sendError(h.logger, w, "archive entry not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrCardNotFound):
			sendError(h.logger, w, "card no longer exists", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to restore comment", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.gc.Schedule(userID)
	h.activity.Record(userID, "comment.restore", comment.ID)

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.CommentResponse{Version: version, Comment: comment}, http.StatusOK)
}

// writeCommentError переводит ошибки хранилища в HTTP-ответы.
// "Уже удален" и "не найден" различаются сознательно.
func (h *CommentsHandler) writeCommentError(ctx context.Context, w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, storage.ErrCommentAlreadyDeleted):
		sendError(h.logger, w, "comment already deleted", http.StatusGone)
	case errors.Is(err, storage.ErrCommentNotFound):
		sendError(h.logger, w, "comment not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrForbidden):
		sendError(h.logger, w, "not the comment author", http.StatusForbidden)
	default:
		h.logger.ErrorContext(ctx, logMsg, slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}
