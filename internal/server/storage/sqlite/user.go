package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// CreateUser creates a new user
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, login, login_key, email, password_hash,
		                   avatar_id, name, birth_date, role, city, bio,
		                   created_at, last_login)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Login,
		strings.ToLower(user.Login),
		user.Email,
		user.PasswordHash,
		user.Profile.AvatarID,
		user.Profile.Name,
		nullableMillis(user.Profile.BirthDate),
		user.Profile.Role,
		user.Profile.City,
		user.Profile.Bio,
		toMillis(user.CreatedAt),
		nullableMillis(user.LastLogin),
	)

	if err != nil {
		// Какое именно поле коллидирует — часть контракта ошибки
		msg := err.Error()
		if strings.Contains(msg, "users.login_key") {
			return storage.ErrLoginTaken
		}
		if strings.Contains(msg, "users.email") {
			return storage.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

const userColumns = `id, login, email, password_hash, avatar_id, name,
	birth_date, role, city, bio, created_at, last_login`

func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var birthDate, lastLogin sql.NullInt64
	var createdAt int64

	err := row.Scan(
		&user.ID,
		&user.Login,
		&user.Email,
		&user.PasswordHash,
		&user.Profile.AvatarID,
		&user.Profile.Name,
		&birthDate,
		&user.Profile.Role,
		&user.Profile.City,
		&user.Profile.Bio,
		&createdAt,
		&lastLogin,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = fromMillis(createdAt)
	if birthDate.Valid {
		t := fromMillis(birthDate.Int64)
		user.Profile.BirthDate = &t
	}
	if lastLogin.Valid {
		t := fromMillis(lastLogin.Int64)
		user.LastLogin = &t
	}
	return user, nil
}

// GetUserByLogin retrieves user by login (case-insensitive)
func (s *Storage) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE login_key = ?`,
		strings.ToLower(login))
	return scanUser(row)
}

// GetUserByID retrieves user by ID
func (s *Storage) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	return scanUser(row)
}

// UpdateProfile replaces the user's profile fields.
// Смена аватара перестраивает avatar-ссылку в media_links.
func (s *Storage) UpdateProfile(ctx context.Context, userID string, profile models.Profile) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET avatar_id = ?, name = ?, birth_date = ?,
			        role = ?, city = ?, bio = ?
			 WHERE id = ?`,
			profile.AvatarID,
			profile.Name,
			nullableMillis(profile.BirthDate),
			profile.Role,
			profile.City,
			profile.Bio,
			userID,
		)
		if err != nil {
			return fmt.Errorf("failed to update profile: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return storage.ErrUserNotFound
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM media_links WHERE user_id = ? AND source = 'avatar'`, userID); err != nil {
			return fmt.Errorf("failed to drop avatar link: %w", err)
		}
		if profile.AvatarID != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO media_links (user_id, file_id, source, ref_id, size)
				 VALUES (?, ?, 'avatar', ?, 0)`, userID, profile.AvatarID, userID); err != nil {
				return fmt.Errorf("failed to insert avatar link: %w", err)
			}
		}
		return nil
	})
}

// UpdateLastLogin updates the last login timestamp
func (s *Storage) UpdateLastLogin(ctx context.Context, userID string, lastLogin time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`, toMillis(lastLogin), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// SaveSession stores a new refresh session, replacing a same-token one
func (s *Storage) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (token, user_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?)`,
		session.Token,
		session.UserID,
		toMillis(session.ExpiresAt),
		toMillis(session.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession retrieves session by token value
func (s *Storage) GetSession(ctx context.Context, token string) (*models.Session, error) {
	session := &models.Session{}
	var expiresAt, createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT token, user_id, expires_at, created_at FROM sessions WHERE token = ?`,
		token).Scan(&session.Token, &session.UserID, &expiresAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session.ExpiresAt = fromMillis(expiresAt)
	session.CreatedAt = fromMillis(createdAt)
	return session, nil
}

// DeleteSession deletes session by token value
func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

// DeleteUserSessions deletes all sessions for a user
func (s *Storage) DeleteUserSessions(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}

// DeleteExpiredSessions removes all expired sessions
func (s *Storage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < ?`, toMillis(s.now()))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
