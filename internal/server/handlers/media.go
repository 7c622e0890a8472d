package handlers

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// MediaHandler обрабатывает загрузку и раздачу изображений
type MediaHandler struct {
	logger       *slog.Logger
	store        *media.Store
	mediaStorage storage.MediaStorage
	grace        *media.Grace
	gc           *media.Collector
	activity     *activity.Log
}

// NewMediaHandler создает новый handler для media
func NewMediaHandler(logger *slog.Logger, store *media.Store, mediaStorage storage.MediaStorage, grace *media.Grace, gc *media.Collector, act *activity.Log) *MediaHandler {
	return &MediaHandler{
		logger:       logger,
		store:        store,
		mediaStorage: mediaStorage,
		grace:        grace,
		gc:           gc,
		activity:     act,
	}
}

// Upload обрабатывает POST /api/v1/media
// Тело запроса — сырые байты изображения, тип берется из Content-Type.
// Свежий файл попадает в grace-набор: у клиента есть время привязать
// его к карточке или комментарию до того, как свип его приберет.
func (h *MediaHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	mimeType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		sendError(h.logger, w, "invalid content type", http.StatusBadRequest)
		return
	}
	if _, ok := models.ExtensionForMime(mimeType); !ok {
		sendError(h.logger, w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, sanitize.MaxImageBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sendError(h.logger, w, "image too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.ErrorContext(ctx, "failed to read upload body", slog.Any("error", err))
		sendError(h.logger, w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		sendError(h.logger, w, "empty upload", http.StatusBadRequest)
		return
	}

	// Квота считается по достижимым и pending байтам до записи
	if err := h.gc.CheckQuota(ctx, userID, int64(len(data))); err != nil {
		var quota *storage.QuotaExceededError
		if errors.As(err, &quota) {
			h.logger.WarnContext(ctx, "media quota exceeded",
				slog.String("user_id", userID),
				slog.Int64("used", quota.Used),
				slog.Int64("limit", quota.Limit))
			sendJSON(h.logger, w, api.QuotaExceededResponse{
				Error:      "media quota exceeded",
				LimitBytes: quota.Limit,
				UsedBytes:  quota.Used,
				AskedBytes: quota.Asked,
			}, http.StatusInsufficientStorage)
			return
		}
		h.logger.ErrorContext(ctx, "failed to check quota", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	fileID, err := media.NewFileID(mimeType)
	if err != nil {
		sendError(h.logger, w, "unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	if err := h.store.Save(fileID, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to store media blob", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	record := &models.MediaFile{
		ID:        fileID,
		OwnerID:   userID,
		MimeType:  mimeType,
		Size:      int64(len(data)),
		Name:      sanitize.CleanLine(r.URL.Query().Get("name"), sanitize.MaxNameLen),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.mediaStorage.SaveMediaFile(ctx, record); err != nil {
		// Метаданные не записались: блоб не должен пережить запрос
		_ = h.store.Delete(fileID)
		h.logger.ErrorContext(ctx, "failed to save media record", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.grace.Add(fileID, userID, int64(len(data)))
	h.activity.Record(userID, "media.upload", fileID)

	h.logger.InfoContext(ctx, "media uploaded",
		slog.String("user_id", userID),
		slog.String("file_id", fileID),
		slog.Int("size", len(data)))

	sendJSON(h.logger, w, api.MediaUploadResponse{
		FileID:   fileID,
		MimeType: mimeType,
		Size:     int64(len(data)),
		URL:      "/media/" + fileID,
	}, http.StatusCreated)
}

// Serve обрабатывает GET /media/{id}
// Содержимое неизменяемо: id одноразовый, поэтому кешировать можно
// агрессивно и навсегда
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	fileID := r.PathValue("id")
	if !sanitize.ValidFileID(fileID) {
		sendError(h.logger, w, "invalid file id", http.StatusBadRequest)
		return
	}

	etag := `"` + fileID + `"`
	if r.Header.Get("If-None-Match") == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	record, err := h.mediaStorage.GetMediaFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			sendError(h.logger, w, "media not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get media record", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	data, err := h.store.Read(fileID)
	if err != nil {
		if errors.Is(err, storage.ErrMediaNotFound) {
			sendError(h.logger, w, "media not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to read media blob", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", record.MimeType)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("failed to write media response", slog.Any("error", err))
	}
}
