package storage

import (
	"context"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
)

// UserStorage defines interface for user persistence
type UserStorage interface {
	// CreateUser creates a new user.
	// Returns ErrLoginTaken / ErrEmailTaken on uniqueness violation
	// (логин сравнивается без учета регистра).
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByLogin retrieves user by login (case-insensitive).
	// Returns ErrUserNotFound if user doesn't exist.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)

	// GetUserByID retrieves user by ID.
	// Returns ErrUserNotFound if user doesn't exist.
	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// UpdateProfile replaces the user's profile fields
	UpdateProfile(ctx context.Context, userID string, profile models.Profile) error

	// UpdateLastLogin updates the last login timestamp
	UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error
}

// SessionStorage defines interface for refresh session persistence
type SessionStorage interface {
	// SaveSession stores a new refresh session, replacing a same-token one
	SaveSession(ctx context.Context, session *models.Session) error

	// GetSession retrieves session by token value.
	// Returns ErrSessionNotFound if session doesn't exist.
	GetSession(ctx context.Context, token string) (*models.Session, error)

	// DeleteSession deletes session by token value.
	// Returns ErrSessionNotFound if session doesn't exist.
	DeleteSession(ctx context.Context, token string) error

	// DeleteUserSessions deletes all sessions for a user.
	// Returns number of deleted sessions.
	DeleteUserSessions(ctx context.Context, userID string) (int, error)

	// DeleteExpiredSessions removes all expired sessions.
	// Returns number of deleted sessions.
	DeleteExpiredSessions(ctx context.Context) (int, error)
}
