package file

import (
	"context"
	"strings"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// CreateUser creates a new user
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	return s.mutate(func(doc *document) error {
		loginKey := strings.ToLower(user.Login)
		for _, u := range doc.Users {
			if strings.ToLower(u.Login) == loginKey {
				return storage.ErrLoginTaken
			}
			if u.Email == user.Email {
				return storage.ErrEmailTaken
			}
		}
		cp := *user
		doc.Users[user.ID] = &cp
		return nil
	})
}

// GetUserByLogin retrieves user by login (case-insensitive)
func (s *Storage) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	var out *models.User
	err := s.view(func(doc *document) error {
		loginKey := strings.ToLower(login)
		for _, u := range doc.Users {
			if strings.ToLower(u.Login) == loginKey {
				cp := *u
				out = &cp
				return nil
			}
		}
		return storage.ErrUserNotFound
	})
	return out, err
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var out *models.User
	err := s.view(func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return storage.ErrUserNotFound
		}
		cp := *u
		out = &cp
		return nil
	})
	return out, err
}

// UpdateProfile replaces the user's profile fields
func (s *Storage) UpdateProfile(ctx context.Context, userID string, profile models.Profile) error {
	return s.mutate(func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return storage.ErrUserNotFound
		}
		u.Profile = profile
		return nil
	})
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	return s.mutate(func(doc *document) error {
		u, ok := doc.Users[userID]
		if !ok {
			return storage.ErrUserNotFound
		}
		t := lastLogin.UTC()
		u.LastLogin = &t
		return nil
	})
}

// SaveSession stores a new refresh session
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	return s.mutate(func(doc *document) error {
		cp := *session
		doc.Sessions[session.Token] = &cp
		return nil
	})
}

// GetSession retrieves session by token value
func (s *Storage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	var out *models.Session
	err := s.view(func(doc *document) error {
		sess, ok := doc.Sessions[token]
		if !ok {
			return storage.ErrSessionNotFound
		}
		cp := *sess
		out = &cp
		return nil
	})
	return out, err
}

// DeleteSession deletes session by token value
func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	return s.mutate(func(doc *document) error {
		if _, ok := doc.Sessions[token]; !ok {
			return storage.ErrSessionNotFound
		}
		delete(doc.Sessions, token)
		return nil
	})
}

// DeleteUserSessions deletes all sessions for a user
func (s *Storage) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.mutate(func(doc *document) error {
		for token, sess := range doc.Sessions {
			if sess.UserID == userID {
				delete(doc.Sessions, token)
				n++
			}
		}
		return nil
	})
	return n, err
}

// DeleteExpiredSessions removes all expired sessions
func (s *Storage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	var n int
	err := s.mutate(func(doc *document) error {
		now := s.now()
		for token, sess := range doc.Sessions {
			if now.After(sess.ExpiresAt) {
				delete(doc.Sessions, token)
				n++
			}
		}
		return nil
	})
	return n, err
}
