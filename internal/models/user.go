package models

import "time"

// MinUserAgeYears — минимальный возраст по дате рождения в профиле
const MinUserAgeYears = 13

// Profile содержит независимо опциональные поля профиля пользователя.
// Каждое поле валидируется отдельно; пустое значение допустимо везде.
type Profile struct {
	AvatarID  string     `json:"avatarId,omitempty"` // id файла в media store
	Name      string     `json:"name,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
	Role      string     `json:"role,omitempty"`
	City      string     `json:"city,omitempty"`
	Bio       string     `json:"bio,omitempty"`
}

// User представляет пользователя в системе
type User struct {
	ID           string     `json:"id"`    // UUID пользователя
	Login        string     `json:"login"` // уникален без учета регистра
	Email        string     `json:"email"` // уникален
	PasswordHash string     `json:"-"`     // bcrypt хеш пароля
	Profile      Profile    `json:"profile"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Session представляет refresh-сессию пользователя с абсолютным истечением
type Session struct {
	Token     string    `json:"token"`   // значение refresh token
	UserID    string    `json:"user_id"` // ID пользователя
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
