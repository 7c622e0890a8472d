// Package activity ведет локальный журнал действий пользователей в
// bbolt. Журнал строго best-effort: его сбои логируются и глотаются,
// пользовательский поток они не прерывают никогда.
package activity

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Entry одна запись журнала действий
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
}

// Log пишет действия в bbolt, bucket на пользователя
type Log struct {
	db     *bolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open открывает (или создает) файл журнала
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	return &Log{db: db, logger: logger, now: time.Now}, nil
}

// Close закрывает файл журнала
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Record пишет одно действие. Ошибки не возвращаются: журнал не имеет
// права заблокировать пользовательский запрос.
func (l *Log) Record(userID, action, detail string) {
	if l == nil || l.db == nil {
		return
	}
	e := Entry{Timestamp: l.now().UTC(), Action: action, Detail: detail}
	data, err := json.Marshal(e)
	if err != nil {
		l.logger.Debug("activity record skipped", slog.Any("error", err))
		return
	}
	err = l.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(userID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
	if err != nil {
		l.logger.Debug("activity record failed",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// Recent возвращает последние записи пользователя, новые первыми
func (l *Log) Recent(userID string, limit int) ([]Entry, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}
	return out, nil
}
