// Package server собирает HTTP маршруты и middleware в один handler.
package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/boardkeeper/internal/activity"
	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/metrics"
	"github.com/iudanet/boardkeeper/internal/server/handlers"
	"github.com/iudanet/boardkeeper/internal/server/middleware"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// Deps перечисляет зависимости, из которых собирается router
type Deps struct {
	Logger     *slog.Logger
	Storage    storage.Storage
	MediaStore *media.Store
	Grace      *media.Grace
	Collector  *media.Collector
	Activity   *activity.Log
	JWTConfig  handlers.JWTConfig
	Limiter    *middleware.RateLimiter
	Metrics    *metrics.Metrics
	Version    string
	Pinger     handlers.Pinger
}

// NewRouter строит дерево маршрутов с middleware цепочкой
// Recovery → Metrics → Logging, auth и rate limit вешаются поштучно
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger

	authH := handlers.NewAuthHandler(logger, deps.Storage, deps.Storage, deps.JWTConfig)
	profileH := handlers.NewProfileHandler(logger, deps.Storage, deps.Grace, deps.Collector)
	boardH := handlers.NewBoardHandler(logger, deps.Storage, deps.Grace, deps.Collector, deps.Activity)
	cardsH := handlers.NewCardsHandler(logger, deps.Storage, deps.Grace, deps.Collector, deps.Activity)
	commentsH := handlers.NewCommentsHandler(logger, deps.Storage, deps.Grace, deps.Collector, deps.Activity)
	historyH := handlers.NewHistoryHandler(logger, deps.Storage, deps.Activity)
	mediaH := handlers.NewMediaHandler(logger, deps.MediaStore, deps.Storage, deps.Grace, deps.Collector, deps.Activity)
	healthH := handlers.NewHealthHandler(logger, deps.Version, deps.Pinger)

	auth := middleware.AuthMiddleware(logger, deps.JWTConfig)
	boardWrite := middleware.RateLimitMiddleware(deps.Limiter, middleware.ScopeBoardWrite, logger, deps.Metrics)
	commentWrite := middleware.RateLimitMiddleware(deps.Limiter, middleware.ScopeCommentWrite, logger, deps.Metrics)
	mediaUpload := middleware.RateLimitMiddleware(deps.Limiter, middleware.ScopeMediaUpload, logger, deps.Metrics)

	mux := http.NewServeMux()

	// Публичные маршруты
	mux.HandleFunc("GET /api/v1/health", healthH.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/auth/register", authH.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authH.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authH.Refresh)

	// Media раздается без auth: id непредсказуемый и работает как
	// capability, иначе <img src> в клиенте не сможет его загрузить
	mux.HandleFunc("GET /media/{id}", mediaH.Serve)

	// Защищенные маршруты
	protected := func(pattern string, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) {
		var wrapped http.Handler = h
		for i := len(extra) - 1; i >= 0; i-- {
			wrapped = extra[i](wrapped)
		}
		mux.Handle(pattern, auth(wrapped))
	}

	protected("POST /api/v1/auth/logout", authH.Logout)
	protected("POST /api/v1/auth/logout_all", authH.LogoutAll)
	protected("GET /api/v1/profile", profileH.Get)
	protected("PUT /api/v1/profile", profileH.Update)

	protected("GET /api/v1/board", boardH.Get)
	protected("PUT /api/v1/board", boardH.Put, boardWrite)

	protected("POST /api/v1/cards", cardsH.Create, boardWrite)
	protected("GET /api/v1/cards/favorites", cardsH.Favorites)
	protected("POST /api/v1/cards/{id}/move", cardsH.Move, boardWrite)
	protected("PATCH /api/v1/cards/{id}", cardsH.Patch, boardWrite)
	protected("DELETE /api/v1/cards/{id}", cardsH.Delete, boardWrite)

	protected("GET /api/v1/cards/{id}/comments", commentsH.List)
	protected("POST /api/v1/cards/{id}/comments", commentsH.Create, commentWrite)
	protected("PUT /api/v1/comments/{id}", commentsH.Edit, commentWrite)
	protected("DELETE /api/v1/comments/{id}", commentsH.Delete, commentWrite)
	protected("GET /api/v1/comments/archive", commentsH.Archive)
	protected("POST /api/v1/comments/archive/{id}/restore", commentsH.Restore, commentWrite)

	protected("GET /api/v1/history", historyH.List)
	protected("DELETE /api/v1/history", historyH.Clear)
	protected("GET /api/v1/activity", historyH.Activity)

	protected("POST /api/v1/media", mediaH.Upload, mediaUpload)

	// Внешняя цепочка применяется ко всему дереву
	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health", "/metrics"})(handler)
	if deps.Metrics != nil {
		handler = middleware.MetricsMiddleware(deps.Metrics)(handler)
	}
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return handler
}
