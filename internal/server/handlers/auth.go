package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger         *slog.Logger
	userStorage    storage.UserStorage
	sessionStorage storage.SessionStorage
	jwtConfig      JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, userStorage storage.UserStorage, sessionStorage storage.SessionStorage, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:         logger,
		userStorage:    userStorage,
		sessionStorage: sessionStorage,
		jwtConfig:      jwtConfig,
	}
}

// Register обрабатывает POST /api/v1/auth/register
// Регистрация нового пользователя
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode register request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := sanitize.ValidateLogin(req.Login); err != nil {
		h.logger.WarnContext(ctx, "invalid login", slog.String("login", req.Login), slog.Any("error", err))
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sanitize.ValidateEmail(req.Email); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := sanitize.ValidatePassword(req.Password); err != nil {
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to hash password", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	userID := uuid.New().String()
	user := &models.User{
		ID:           userID,
		Login:        req.Login,
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := h.userStorage.CreateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, storage.ErrLoginTaken):
			h.logger.WarnContext(ctx, "login already taken", slog.String("login", req.Login))
			sendError(h.logger, w, "login already taken", http.StatusConflict)
		case errors.Is(err, storage.ErrEmailTaken):
			h.logger.WarnContext(ctx, "email already taken", slog.String("email", user.Email))
			sendError(h.logger, w, "email already taken", http.StatusConflict)
		default:
			h.logger.ErrorContext(ctx, "failed to create user", slog.Any("error", err))
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.logger.InfoContext(ctx, "user registered successfully",
		slog.String("login", req.Login),
		slog.String("user_id", userID))

	resp := api.RegisterResponse{
		UserID:  userID,
		Message: "User registered successfully",
	}
	sendJSON(h.logger, w, resp, http.StatusCreated)
}

// Login обрабатывает POST /api/v1/auth/login
// Аутентификация пользователя
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUserByLogin(ctx, req.Login)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			h.logger.WarnContext(ctx, "login failed: user not found", slog.String("login", req.Login))
			sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("login", req.Login))
		sendError(h.logger, w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Не критичная ошибка, логируем но не прерываем
	if err := h.userStorage.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		h.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	h.logger.InfoContext(ctx, "user logged in successfully",
		slog.String("login", user.Login),
		slog.String("user_id", user.ID))

	sendJSON(h.logger, w, resp, http.StatusOK)
}

// issueTokens выпускает пару access+refresh и сохраняет сессию.
// В хранилище попадает хеш refresh token, не сам токен.
func (h *AuthHandler) issueTokens(ctx context.Context, user *models.User) (*api.TokenResponse, error) {
	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, user.ID, user.Login)
	if err != nil {
		return nil, err
	}
	refreshToken, expiresAt, err := GenerateRefreshToken(h.jwtConfig)
	if err != nil {
		return nil, err
	}

	session := &models.Session{
		Token:     HashRefreshToken(refreshToken),
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if err := h.sessionStorage.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	return &api.TokenResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// bearerToken извлекает токен из заголовка Authorization
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Refresh обрабатывает POST /api/v1/auth/refresh
// Ротация: старая сессия удаляется, выпускается новая пара токенов
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken, ok := bearerToken(r)
	if !ok {
		sendError(h.logger, w, "Authorization header is required", http.StatusUnauthorized)
		return
	}

	hashed := HashRefreshToken(refreshToken)
	session, err := h.sessionStorage.GetSession(ctx, hashed)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			h.logger.WarnContext(ctx, "refresh failed: session not found")
			sendError(h.logger, w, "invalid refresh token", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get session", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if time.Now().After(session.ExpiresAt) {
		_ = h.sessionStorage.DeleteSession(ctx, hashed)
		h.logger.WarnContext(ctx, "refresh failed: session expired", slog.String("user_id", session.UserID))
		sendError(h.logger, w, "refresh token expired", http.StatusUnauthorized)
		return
	}

	user, err := h.userStorage.GetUserByID(ctx, session.UserID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to get user for refresh", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.sessionStorage.DeleteSession(ctx, hashed); err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		h.logger.ErrorContext(ctx, "failed to rotate session", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp, err := h.issueTokens(ctx, user)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue tokens", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Logout обрабатывает POST /api/v1/auth/logout
// Удаляет сессию предъявленного refresh token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refreshToken, ok := bearerToken(r)
	if !ok {
		sendError(h.logger, w, "Authorization header is required", http.StatusUnauthorized)
		return
	}

	err := h.sessionStorage.DeleteSession(ctx, HashRefreshToken(refreshToken))
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		h.logger.ErrorContext(ctx, "failed to delete session", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// LogoutAll обрабатывает POST /api/v1/auth/logout_all
// Отзывает все refresh-сессии пользователя разом
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	n, err := h.sessionStorage.DeleteUserSessions(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to delete user sessions", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("user_id", userID),
		slog.Int("count", n))
	w.WriteHeader(http.StatusNoContent)
}
