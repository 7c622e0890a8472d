package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// BoardHandler обрабатывает чтение и полную перезапись доски
type BoardHandler struct {
	logger   *slog.Logger
	storage  storage.BoardStorage
	grace    *media.Grace
	gc       *media.Collector
	activity *activity.Log
}

// NewBoardHandler создает новый handler для доски
func NewBoardHandler(logger *slog.Logger, st storage.BoardStorage, grace *media.Grace, gc *media.Collector, act *activity.Log) *BoardHandler {
	return &BoardHandler{
		logger:   logger,
		storage:  st,
		grace:    grace,
		gc:       gc,
		activity: act,
	}
}

// Get обрабатывает GET /api/v1/board
// Версия доски служит ETag: совпавший If-None-Match дает 304 без тела
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if match := r.Header.Get("If-None-Match"); match != "" {
		version, err := h.storage.BoardVersion(ctx, userID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to read board version", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
		if match == boardETag(version) {
			w.Header().Set("ETag", boardETag(version))
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	state, version, err := h.storage.ReadBoard(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read board", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.BoardResponse{Version: version, Board: state}, http.StatusOK)
}

// Put обрабатывает PUT /api/v1/board
// Снимок принимается как сырой JSON и целиком проходит санитайзер:
// невозможная верхнеуровневая форма — 400, все остальное чинится.
func (h *BoardHandler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.BoardPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode board request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	var raw any
	if err := json.Unmarshal(req.Board, &raw); err != nil {
		sendError(h.logger, w, "invalid board payload", http.StatusBadRequest)
		return
	}

	state := sanitize.BoardState(raw, time.Now())
	if state == nil {
		sendError(h.logger, w, "board must be an object", http.StatusBadRequest)
		return
	}

	version, err := h.storage.WriteBoard(ctx, userID, state, req.ExpectedVersion)
	if err != nil {
		if vc, ok := storage.AsVersionConflict(err); ok {
			h.logger.WarnContext(ctx, "board write conflict",
				slog.String("user_id", userID),
				slog.Int64("current_version", vc.Current))
			sendConflict(h.logger, w, vc)
			return
		}
		h.logger.ErrorContext(ctx, "failed to write board", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Файлы, на которые ссылается принятый снимок, больше не сироты;
	// все остальное пусть решает свип
	refs := state.MediaRefs()
	ids := make([]string, 0, len(refs))
	for id := range refs {
		ids = append(ids, id)
	}
	h.grace.Evict(ids...)
	h.gc.Schedule(userID)
	h.activity.Record(userID, "board.write", "")

	h.logger.InfoContext(ctx, "board written",
		slog.String("user_id", userID),
		slog.Int64("version", version),
		slog.Int("cards", len(state.Cards)))

	w.Header().Set("ETag", boardETag(version))
	sendJSON(h.logger, w, api.VersionResponse{Version: version}, http.StatusOK)
}
