// Package sqlite implements the storage contract over a normalized
// SQLite schema. Каждая мутация доски выполняется в одной транзакции:
// проверка версии → изменения строк → перестройка media-ссылок →
// обрезка архива/истории → инкремент версии → commit. Откат любой
// ступени откатывает транзакцию целиком.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage represents SQLite storage implementation
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// компилируемая проверка соответствия контракту
var _ storage.Storage = (*Storage)(nil)

// New creates a new SQLite storage instance
// dbPath is the path to the SQLite database file
// Use ":memory:" for in-memory database (useful for testing)
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode поддерживает несколько читателей, но только
	// одного писателя — один коннект сериализует мутации
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Storage{db: db, now: time.Now}

	// Запускаем миграции
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetClock substitutes the time source (tests only)
func (s *Storage) SetClock(now func() time.Time) { s.now = now }

// runMigrations выполняет миграции из embedded FS
func (s *Storage) runMigrations() error {
	goose.SetDialect("sqlite3")
	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}

// withTx выполняет fn в транзакции; любая ошибка откатывает все
func (s *Storage) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockVersion гарантирует строку версии пользователя и возвращает
// текущую версию. Внутри транзакции это сериализует конкурирующих
// писателей одной доски.
func lockVersion(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO board_version (user_id, version, next_card_seq) VALUES (?, 0, 1)
		 ON CONFLICT(user_id) DO NOTHING`, userID); err != nil {
		return 0, fmt.Errorf("failed to ensure version row: %w", err)
	}
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM board_version WHERE user_id = ?`, userID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read version row: %w", err)
	}
	return version, nil
}

// checkVersion сверяет ожидаемую версию под строкой версии
func checkVersion(ctx context.Context, tx *sql.Tx, userID string, expected *int64) (int64, error) {
	current, err := lockVersion(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if expected != nil && *expected != current {
		return 0, &storage.VersionConflictError{Current: current}
	}
	return current, nil
}

// bumpVersion увеличивает версию доски и возвращает новую
func bumpVersion(ctx context.Context, tx *sql.Tx, userID string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`UPDATE board_version SET version = version + 1 WHERE user_id = ?`, userID); err != nil {
		return 0, fmt.Errorf("failed to bump version: %w", err)
	}
	var version int64
	if err := tx.QueryRowContext(ctx,
		`SELECT version FROM board_version WHERE user_id = ?`, userID).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read bumped version: %w", err)
	}
	return version, nil
}

// Helper functions for time and JSON column conversion

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullableMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return toMillis(*t)
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalImages(s string) []models.ImageRef {
	var out []models.ImageRef
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func unmarshalChecklist(s string) []models.ChecklistItem {
	var out []models.ChecklistItem
	if s == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
