package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/boardkeeper/internal/server/handlers"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// parseBearer достает токен из значения заголовка Authorization
func parseBearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// rejectUnauthorized отвечает 401 в том же JSON формате, что и handlers
func rejectUnauthorized(logger *slog.Logger, w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	resp := api.ErrorResponse{
		Error:   http.StatusText(http.StatusUnauthorized),
		Message: message,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to encode auth error", slog.Any("error", err))
	}
}

// AuthMiddleware проверяет access token и кладет user_id и login из
// claims в контекст запроса. Сырое содержимое заголовка в лог не пишем.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				logger.Warn("missing Authorization header", slog.String("path", r.URL.Path))
				rejectUnauthorized(logger, w, "missing token")
				return
			}

			token, ok := parseBearer(header)
			if !ok {
				logger.Warn("malformed Authorization header", slog.String("path", r.URL.Path))
				rejectUnauthorized(logger, w, "invalid token format")
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, token)
			if err != nil {
				logger.Warn("invalid access token", slog.Any("error", err))
				rejectUnauthorized(logger, w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), handlers.UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, handlers.UsernameKey, claims.Username)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
