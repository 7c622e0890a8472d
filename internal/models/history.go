package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StartDoing запускает таймер doing, если он еще не идет
func (c *Card) StartDoing(now time.Time) {
	if c.DoingStartedAt == nil {
		t := now.UTC()
		c.DoingStartedAt = &t
	}
}

// StopDoing останавливает таймер doing, прибавляя прошедшее время к
// накопленному. Возвращает прирост в миллисекундах (0, если таймер не шел).
func (c *Card) StopDoing(now time.Time) int64 {
	if c.DoingStartedAt == nil {
		return 0
	}
	delta := now.Sub(*c.DoingStartedAt).Milliseconds()
	if delta < 0 {
		delta = 0
	}
	c.DoingTotalMs += delta
	c.DoingStartedAt = nil
	return delta
}

// ApplyMoveTimer выполняет переходы таймера doing при перемещении карточки.
// Возвращает прирост таймера в миллисекундах при уходе из doing.
func (c *Card) ApplyMoveTimer(from, to CardStatus, now time.Time) int64 {
	if from == to {
		return 0
	}
	var delta int64
	if from == StatusDoing {
		delta = c.StopDoing(now)
	}
	if to == StatusDoing {
		c.StartDoing(now)
	}
	return delta
}

// NewHistoryID выдает идентификатор записи истории
func NewHistoryID() string { return uuid.New().String() }

// HistoryForCreate строит запись истории о создании карточки
func HistoryForCreate(card *Card, col Column, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:            NewHistoryID(),
		Timestamp:     now.UTC(),
		Text:          fmt.Sprintf("created %q in %s", card.Title, col),
		RelatedCardID: card.ID,
		Kind:          HistoryCreate,
		Meta:          HistoryMeta{Title: card.Title, ToColumn: string(col)},
	}
}

// HistoryForMove строит запись истории о перемещении карточки.
// doingDelta — прирост таймера doing, если карточка покинула doing.
func HistoryForMove(card *Card, from, to CardStatus, doingDelta int64, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:            NewHistoryID(),
		Timestamp:     now.UTC(),
		Text:          fmt.Sprintf("moved %q from %s to %s", card.Title, from, to),
		RelatedCardID: card.ID,
		Kind:          HistoryMove,
		Meta: HistoryMeta{
			Title:        card.Title,
			FromColumn:   string(from),
			ToColumn:     string(to),
			DoingDeltaMs: doingDelta,
		},
	}
}

// HistoryForDelete строит запись истории об удалении карточки
func HistoryForDelete(card *Card, from CardStatus, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:            NewHistoryID(),
		Timestamp:     now.UTC(),
		Text:          fmt.Sprintf("deleted %q from %s", card.Title, from),
		RelatedCardID: card.ID,
		Kind:          HistoryDelete,
		Meta:          HistoryMeta{Title: card.Title, FromColumn: string(from)},
	}
}

// HistoryForCommentRestore строит запись истории о восстановлении
// комментария из архива
func HistoryForCommentRestore(cardID string, now time.Time) HistoryEntry {
	return HistoryEntry{
		ID:            NewHistoryID(),
		Timestamp:     now.UTC(),
		Text:          "restored a comment from the archive",
		RelatedCardID: cardID,
		Kind:          HistoryRestore,
	}
}
