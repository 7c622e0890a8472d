package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
)

// LoginPattern определяет допустимый формат login
// Только латинские буквы (a-z, A-Z), цифры (0-9), нижнее подчеркивание (_)
// Длина: 3-32 символа. Уникальность проверяется без учета регистра.
var LoginPattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// emailPattern — намеренно нестрогая проверка формы адреса
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const (
	// MinLoginLen минимальная длина login
	MinLoginLen = 3
	// MaxLoginLen максимальная длина login
	MaxLoginLen = 32
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
	// MaxBioLen максимальная длина биографии
	MaxBioLen = 1000
)

// ValidateLogin проверяет, что login соответствует требованиям
func ValidateLogin(login string) error {
	if login == "" {
		return fmt.Errorf("login cannot be empty")
	}
	if len(login) < MinLoginLen {
		return fmt.Errorf("login must be at least %d characters long", MinLoginLen)
	}
	if len(login) > MaxLoginLen {
		return fmt.Errorf("login must not exceed %d characters", MaxLoginLen)
	}
	if !LoginPattern.MatchString(login) {
		return fmt.Errorf("login can only contain letters (a-z, A-Z), numbers (0-9), and underscores (_)")
	}
	return nil
}

// NormalizeLogin приводит login к ключу уникальности (без учета регистра)
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}

// ValidateEmail проверяет форму email адреса
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword проверяет минимальные требования к паролю
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	return nil
}

// ProfileName нормализует отображаемое имя
func ProfileName(s string) string { return CleanLine(s, MaxNameLen) }

// ProfileRole нормализует роль
func ProfileRole(s string) string { return CleanLine(s, MaxNameLen) }

// ProfileCity нормализует город
func ProfileCity(s string) string { return CleanLine(s, MaxNameLen) }

// ProfileBio нормализует биографию
func ProfileBio(s string) string { return CleanText(s, MaxBioLen) }

// BirthDate проверяет дату рождения: не в будущем и возраст не меньше
// минимального. Невалидная дата отбрасывается (nil), не ошибка.
func BirthDate(t time.Time, now time.Time) *time.Time {
	if t.IsZero() || t.After(now) {
		return nil
	}
	if t.After(now.AddDate(-models.MinUserAgeYears, 0, 0)) {
		return nil
	}
	u := t.UTC()
	return &u
}

// AvatarID проверяет идентификатор аватара; невалидный отбрасывается
func AvatarID(id string) string {
	if ValidFileID(id) {
		return id
	}
	return ""
}
