// Package file implements the storage contract over a single JSON
// document. Чтение прощает поврежденный файл (parse-or-default),
// запись идет через временный файл с атомарным rename — частично
// записанное состояние снаружи не наблюдаемо. Все операции
// read-modify-write сериализованы мьютексом: HTTP-обработчики в Go
// выполняются на параллельных горутинах, полагаться на кооперативное
// планирование нельзя.
package file

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// document — полное содержимое JSON-файла: все пользователи, сессии
// и состояния досок одного процесса
type document struct {
	Users    map[string]*models.User     `json:"users"`    // по user id
	Sessions map[string]*models.Session  `json:"sessions"` // по значению токена
	Boards   map[string]*userBoard       `json:"boards"`   // по user id
	Media    map[string]models.MediaFile `json:"media"`    // по file id
}

// userBoard — состояние доски одного пользователя внутри документа.
// Счетчик версии хранится здесь же, чтобы оба бекенда удовлетворяли
// одному контракту оптимистичной конкуренции.
type userBoard struct {
	Version  int64                       `json:"version"`
	State    *models.BoardState          `json:"state"`
	Comments map[string][]models.Comment `json:"comments"` // по card id, от старых к новым
	Archive  []models.ArchivedComment    `json:"archive"`  // свежезаархивированные первыми
}

func newDocument() *document {
	return &document{
		Users:    map[string]*models.User{},
		Sessions: map[string]*models.Session{},
		Boards:   map[string]*userBoard{},
		Media:    map[string]models.MediaFile{},
	}
}

// Storage represents the single-JSON-file storage implementation
type Storage struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// компилируемая проверка соответствия контракту
var _ storage.Storage = (*Storage)(nil)

// New creates a file storage rooted at path. The parent directory is
// created if missing; the file itself appears on first write.
func New(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &Storage{path: path, now: time.Now}, nil
}

// SetClock substitutes the time source (tests only)
func (s *Storage) SetClock(now func() time.Time) { s.now = now }

// load читает и парсит документ. Отсутствующий или поврежденный файл
// дает пустой документ, не ошибку — крашить процесс из-за битого
// JSON нельзя.
func (s *Storage) load() *document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return newDocument()
	}
	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return newDocument()
	}
	if doc.Users == nil {
		doc.Users = map[string]*models.User{}
	}
	if doc.Sessions == nil {
		doc.Sessions = map[string]*models.Session{}
	}
	if doc.Boards == nil {
		doc.Boards = map[string]*userBoard{}
	}
	if doc.Media == nil {
		doc.Media = map[string]models.MediaFile{}
	}
	return doc
}

// save пишет документ во временный файл и атомарно подменяет настоящий
func (s *Storage) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}

// board возвращает состояние доски пользователя, создавая пустое при
// первом обращении
func (doc *document) board(userID string) *userBoard {
	b, ok := doc.Boards[userID]
	if !ok {
		b = &userBoard{
			State:    models.NewBoardState(),
			Comments: map[string][]models.Comment{},
		}
		doc.Boards[userID] = b
	}
	if b.State == nil {
		b.State = models.NewBoardState()
	}
	if b.Comments == nil {
		b.Comments = map[string][]models.Comment{}
	}
	return b
}

// checkVersion сверяет ожидаемую версию с текущей
func (b *userBoard) checkVersion(expected *int64) error {
	if expected != nil && *expected != b.Version {
		return &storage.VersionConflictError{Current: b.Version}
	}
	return nil
}

// mutate выполняет одну операцию read-modify-write под мьютексом.
// fn мутирует документ; ошибка fn отменяет запись целиком.
func (s *Storage) mutate(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.load()
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// view выполняет чтение под мьютексом без записи
func (s *Storage) view(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.load())
}
