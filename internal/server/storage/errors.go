package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginTaken indicates that another user already owns this login
	// (логин уникален без учета регистра)
	ErrLoginTaken = errors.New("login already taken")

	// ErrEmailTaken indicates that another user already owns this email
	ErrEmailTaken = errors.New("email already taken")

	// ErrSessionNotFound indicates that refresh session was not found
	ErrSessionNotFound = errors.New("session not found")

	// ErrCardNotFound indicates that card does not exist on the user's board
	ErrCardNotFound = errors.New("card not found")

	// ErrCommentNotFound indicates that comment was never seen
	ErrCommentNotFound = errors.New("comment not found")

	// ErrCommentAlreadyDeleted indicates a repeated delete: the comment is
	// gone from the live set but present in the archive. Отличается от
	// ErrCommentNotFound, чтобы повторное удаление не выглядело загадкой.
	ErrCommentAlreadyDeleted = errors.New("comment already deleted")

	// ErrArchiveEntryNotFound indicates that archived comment does not exist
	ErrArchiveEntryNotFound = errors.New("archive entry not found")

	// ErrForbidden indicates that the caller is not the author of the
	// comment being mutated
	ErrForbidden = errors.New("not the comment author")

	// ErrMediaNotFound indicates that media blob does not exist
	ErrMediaNotFound = errors.New("media file not found")
)

// VersionConflictError сигнализирует о проигрыше оптимистичной записи.
// Несет актуальную версию, чтобы вызывающий мог перечитать и повторить.
type VersionConflictError struct {
	Current int64 // актуальная версия доски
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("board version conflict: current version is %d", e.Current)
}

// AsVersionConflict извлекает VersionConflictError из цепочки ошибок
func AsVersionConflict(err error) (*VersionConflictError, bool) {
	var vc *VersionConflictError
	if errors.As(err, &vc) {
		return vc, true
	}
	return nil, false
}

// QuotaExceededError сигнализирует об отклоненной загрузке media:
// несет лимит и текущее использование для внятного ответа клиенту
type QuotaExceededError struct {
	Limit int64 // потолок квоты в байтах
	Used  int64 // занято (reachable + pending grace)
	Asked int64 // размер отклоненной загрузки
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("media quota exceeded: %d of %d bytes used, upload of %d bytes rejected",
		e.Used, e.Limit, e.Asked)
}
