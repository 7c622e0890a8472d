package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/boardkeeper/internal/media"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/sanitize"
	"github.com/iudanet/boardkeeper/internal/server/storage"
	"github.com/iudanet/boardkeeper/pkg/api"
)

// ProfileHandler обрабатывает запросы профиля пользователя
type ProfileHandler struct {
	logger      *slog.Logger
	userStorage storage.UserStorage
	grace       *media.Grace
	gc          *media.Collector
}

// NewProfileHandler создает новый handler для профиля
func NewProfileHandler(logger *slog.Logger, userStorage storage.UserStorage, grace *media.Grace, gc *media.Collector) *ProfileHandler {
	return &ProfileHandler{
		logger:      logger,
		userStorage: userStorage,
		grace:       grace,
		gc:          gc,
	}
}

func profileResponse(u *models.User) api.ProfileResponse {
	resp := api.ProfileResponse{
		UserID:   u.ID,
		Login:    u.Login,
		Email:    u.Email,
		AvatarID: u.Profile.AvatarID,
		Name:     u.Profile.Name,
		Role:     u.Profile.Role,
		City:     u.Profile.City,
		Bio:      u.Profile.Bio,
	}
	if u.Profile.BirthDate != nil {
		s := u.Profile.BirthDate.Format(time.RFC3339)
		resp.BirthDate = &s
	}
	return resp
}

// Get обрабатывает GET /api/v1/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.userStorage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(h.logger, w, profileResponse(user), http.StatusOK)
}

// Update обрабатывает PUT /api/v1/profile
// nil-поля запроса не трогают текущие значения; каждое поле
// санируется независимо, непроходящее значение просто отбрасывается
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.ProfileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode profile request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userStorage.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			sendError(h.logger, w, "user not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	profile := user.Profile
	oldAvatar := profile.AvatarID

	if req.AvatarID != nil {
		profile.AvatarID = sanitize.AvatarID(*req.AvatarID)
	}
	if req.Name != nil {
		profile.Name = sanitize.ProfileName(*req.Name)
	}
	if req.Role != nil {
		profile.Role = sanitize.ProfileRole(*req.Role)
	}
	if req.City != nil {
		profile.City = sanitize.ProfileCity(*req.City)
	}
	if req.Bio != nil {
		profile.Bio = sanitize.ProfileBio(*req.Bio)
	}
	if req.BirthDate != nil {
		if *req.BirthDate == "" {
			profile.BirthDate = nil
		} else if t, err := time.Parse(time.RFC3339, *req.BirthDate); err == nil {
			profile.BirthDate = sanitize.BirthDate(t, time.Now())
		}
	}

	if err := h.userStorage.UpdateProfile(ctx, userID, profile); err != nil {
		h.logger.ErrorContext(ctx, "failed to update profile", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	// Смена аватара меняет достижимость: новый файл больше не сирота,
	// старый станет добычей свипа, если на него никто не ссылается
	if profile.AvatarID != oldAvatar {
		if profile.AvatarID != "" {
			h.grace.Evict(profile.AvatarID)
		}
		h.gc.Schedule(userID)
	}

	user.Profile = profile
	h.logger.InfoContext(ctx, "profile updated", slog.String("user_id", userID))
	sendJSON(h.logger, w, profileResponse(user), http.StatusOK)
}
