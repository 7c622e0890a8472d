package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// sendJSON отправляет JSON ответ с указанным статусом
func sendJSON(logger *slog.Logger, w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func sendError(logger *slog.Logger, w http.ResponseWriter, message string, statusCode int) {
	resp := api.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	sendJSON(logger, w, resp, statusCode)
}

// sendConflict отправляет ответ о проигрыше оптимистичной записи
// с актуальной версией для повторной попытки
func sendConflict(logger *slog.Logger, w http.ResponseWriter, vc *storage.VersionConflictError) {
	resp := api.ConflictResponse{
		Error:          "version conflict",
		CurrentVersion: vc.Current,
	}
	sendJSON(logger, w, resp, http.StatusConflict)
}

// boardETag строит entity tag из версии доски
func boardETag(version int64) string {
	return `"v` + strconv.FormatInt(version, 10) + `"`
}

// parsePage извлекает offset/limit из query-параметров
func parsePage(r *http.Request) (offset, limit int) {
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return storage.ClampPage(offset, limit)
}
