package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// HistoryHandler обрабатывает журнал истории доски
type HistoryHandler struct {
	logger   *slog.Logger
	storage  storage.BoardStorage
	activity *activity.Log
}

// NewHistoryHandler создает новый handler для истории
func NewHistoryHandler(logger *slog.Logger, st storage.BoardStorage, act *activity.Log) *HistoryHandler {
	return &HistoryHandler{
		logger:   logger,
		storage:  st,
		activity: act,
	}
}

// List обрабатывает GET /api/v1/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	offset, limit := parsePage(r)
	entries, hasMore, err := h.storage.ListHistory(ctx, userID, offset, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list history", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, api.HistoryListResponse{
		Entries:    entries,
		HasMore:    hasMore,
		NextOffset: offset + len(entries),
	}, http.StatusOK)
}

// Activity обрабатывает GET /api/v1/activity: последние действия
// пользователя из локального журнала, новые первыми
func (h *HistoryHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	_, limit := parsePage(r)
	recent, err := h.activity.Recent(userID, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read activity log", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]api.ActivityEntry, 0, len(recent))
	for _, e := range recent {
		entries = append(entries, api.ActivityEntry{
			Timestamp: e.Timestamp,
			Action:    e.Action,
			Detail:    e.Detail,
		})
	}
	sendJSON(h.logger, w, api.ActivityListResponse{Entries: entries}, http.StatusOK)
}

// Clear обрабатывает DELETE /api/v1/history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	version, err := h.storage.ClearHistory(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to clear history", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.activity.Record(userID, "history.clear", "")
	h.logger.InfoContext(ctx, "history cleared", slog.String("user_id", userID))

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.VersionResponse{Version: version}, http.StatusOK)
}
