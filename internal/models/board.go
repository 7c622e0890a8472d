package models

import (
	"fmt"
	"sort"
	"time"
)

// Column идентифицирует одну из четырех колонок доски
type Column string

const (
	ColumnQueue  Column = "queue"
	ColumnDoing  Column = "doing"
	ColumnReview Column = "review"
	ColumnDone   Column = "done"
)

// Columns перечисляет колонки в каноническом порядке
var Columns = []Column{ColumnQueue, ColumnDoing, ColumnReview, ColumnDone}

// IsValidColumn проверяет, что имя колонки известно
func IsValidColumn(c Column) bool {
	switch c {
	case ColumnQueue, ColumnDoing, ColumnReview, ColumnDone:
		return true
	}
	return false
}

// CardStatus представляет вычисляемое положение карточки.
// Статус никогда не берется из входных данных — только пересчитывается
// по фактическому членству в колонке или карте свободных карточек.
type CardStatus string

const (
	StatusQueue   CardStatus = "queue"
	StatusDoing   CardStatus = "doing"
	StatusReview  CardStatus = "review"
	StatusDone    CardStatus = "done"
	StatusFreedom CardStatus = "freedom"
)

// Urgency представляет цветовую срочность карточки
type Urgency string

const (
	UrgencyWhite  Urgency = "white"
	UrgencyYellow Urgency = "yellow"
	UrgencyPink   Urgency = "pink"
	UrgencyRed    Urgency = "red"
)

// IsValidUrgency проверяет, что значение срочности известно
func IsValidUrgency(u Urgency) bool {
	switch u {
	case UrgencyWhite, UrgencyYellow, UrgencyPink, UrgencyRed:
		return true
	}
	return false
}

// ChecklistItem представляет один пункт чеклиста карточки
type ChecklistItem struct {
	ID        string    `json:"id"`        // уникален в пределах карточки
	Text      string    `json:"text"`      // текст пункта
	Done      bool      `json:"done"`      // выполнен ли пункт
	CreatedAt time.Time `json:"createdAt"` // время создания
}

// ImageRef представляет ссылку на медиа-вложение.
// Бинарные данные никогда не встраиваются в JSON доски —
// хранится только идентификатор файла в media store.
type ImageRef struct {
	FileID    string    `json:"fileId"`            // идентификатор blob в media store
	MimeType  string    `json:"mimeType"`          // image/png, image/jpeg, image/webp, image/gif
	Size      int64     `json:"size"`              // размер в байтах
	Name      string    `json:"name,omitempty"`    // отображаемое имя
	PreviewID string    `json:"preview,omitempty"` // опциональный уменьшенный вариант
	CreatedAt time.Time `json:"createdAt"`
}

// Card представляет одну карточку доски
type Card struct {
	ID             string          `json:"id"` // последовательный человекочитаемый, "P-<n>"
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Images         []ImageRef      `json:"images,omitempty"`
	Checklist      []ChecklistItem `json:"checklist,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"` // login автора, может быть пустым
	Favorite       bool            `json:"favorite"`
	CreatedAt      time.Time       `json:"createdAt"`
	Status         CardStatus      `json:"status"` // производное поле, пересчитывается на каждой границе
	Urgency        Urgency         `json:"urgency"`
	DoingStartedAt *time.Time      `json:"doingStartedAt,omitempty"` // момент входа в doing
	DoingTotalMs   int64           `json:"doingTotalMs"`             // накопленное время в doing
}

// FloatingPos представляет свободную позицию карточки вне колонок
type FloatingPos struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Sway float64 `json:"sway"` // смещение покачивания, чисто визуальное
}

// HistoryKind представляет тип записи истории
type HistoryKind string

const (
	HistoryCreate  HistoryKind = "create"
	HistoryMove    HistoryKind = "move"
	HistoryDelete  HistoryKind = "delete"
	HistoryRestore HistoryKind = "restore"
)

// HistoryMeta содержит структурированные метаданные записи истории
type HistoryMeta struct {
	Title        string `json:"title,omitempty"`
	FromColumn   string `json:"from,omitempty"`
	ToColumn     string `json:"to,omitempty"`
	DoingDeltaMs int64  `json:"doingDeltaMs,omitempty"` // прирост таймера doing при уходе из колонки
}

// HistoryEntry представляет одну запись журнала истории доски
type HistoryEntry struct {
	ID            string      `json:"id"`
	Timestamp     time.Time   `json:"ts"`
	Text          string      `json:"text"`
	RelatedCardID string      `json:"cardId,omitempty"`
	Kind          HistoryKind `json:"kind"`
	Meta          HistoryMeta `json:"meta"`
}

// MaxHistoryEntries ограничивает журнал истории (новые вытесняют старые)
const MaxHistoryEntries = 500

// BoardState представляет полное состояние доски одного пользователя.
// Инвариант: id карточки встречается максимум в одном месте —
// в одной из колонок либо в Floating; все id из колонок и Floating
// существуют в Cards; Status каждой карточки равен производному положению.
type BoardState struct {
	Cards       map[string]*Card        `json:"cards"`
	Columns     map[Column][]string     `json:"columns"`
	Floating    map[string]FloatingPos  `json:"floating"`
	History     []HistoryEntry          `json:"history"` // новые первыми
	NextCardSeq int64                   `json:"nextCardSeq"`
}

// NewBoardState возвращает пустую доску со всеми инициализированными картами
func NewBoardState() *BoardState {
	cols := make(map[Column][]string, len(Columns))
	for _, c := range Columns {
		cols[c] = []string{}
	}
	return &BoardState{
		Cards:       map[string]*Card{},
		Columns:     cols,
		Floating:    map[string]FloatingPos{},
		History:     []HistoryEntry{},
		NextCardSeq: 1,
	}
}

// NextCardID выдает следующий последовательный id карточки и сдвигает счетчик
func (b *BoardState) NextCardID() string {
	if b.NextCardSeq < 1 {
		b.NextCardSeq = 1
	}
	id := fmt.Sprintf("P-%d", b.NextCardSeq)
	b.NextCardSeq++
	return id
}

// LocationOf возвращает производное положение карточки.
// Карточка, отсутствующая и в колонках, и в Floating — сирота,
// считается находящейся в queue.
func (b *BoardState) LocationOf(cardID string) CardStatus {
	for _, col := range Columns {
		for _, id := range b.Columns[col] {
			if id == cardID {
				return CardStatus(col)
			}
		}
	}
	if _, ok := b.Floating[cardID]; ok {
		return StatusFreedom
	}
	return StatusQueue
}

// ColumnOf возвращает колонку карточки и признак членства
func (b *BoardState) ColumnOf(cardID string) (Column, bool) {
	for _, col := range Columns {
		for _, id := range b.Columns[col] {
			if id == cardID {
				return col, true
			}
		}
	}
	return "", false
}

// RecomputeStatuses пересчитывает Status каждой карточки по фактическому
// положению. Вызывается на каждой границе чтения/записи.
func (b *BoardState) RecomputeStatuses() {
	for id, c := range b.Cards {
		c.Status = b.LocationOf(id)
	}
}

// RemoveFromColumns удаляет id карточки из всех колонок.
// Возвращает колонку, из которой карточка была удалена, если была.
func (b *BoardState) RemoveFromColumns(cardID string) (Column, bool) {
	var found Column
	var ok bool
	for _, col := range Columns {
		ids := b.Columns[col]
		for i, id := range ids {
			if id == cardID {
				b.Columns[col] = append(ids[:i:i], ids[i+1:]...)
				found, ok = col, true
				break
			}
		}
	}
	return found, ok
}

// InsertIntoColumn вставляет id карточки в колонку на позицию index.
// Отрицательный или выходящий за границы index означает вставку в конец —
// семантика splice упорядоченного списка.
func (b *BoardState) InsertIntoColumn(cardID string, col Column, index int) {
	ids := b.Columns[col]
	if index < 0 || index > len(ids) {
		index = len(ids)
	}
	ids = append(ids, "")
	copy(ids[index+1:], ids[index:])
	ids[index] = cardID
	b.Columns[col] = ids
}

// AppendHistory добавляет запись в начало журнала и обрезает его по лимиту
func (b *BoardState) AppendHistory(e HistoryEntry) {
	b.History = append([]HistoryEntry{e}, b.History...)
	if len(b.History) > MaxHistoryEntries {
		b.History = b.History[:MaxHistoryEntries]
	}
}

// SortCardIDsByCreation сортирует id карточек по (createdAt, id) —
// детерминированный порядок для повторного вывода
func (b *BoardState) SortCardIDsByCreation(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		ci, cj := b.Cards[ids[i]], b.Cards[ids[j]]
		if ci == nil || cj == nil {
			return ci != nil
		}
		if !ci.CreatedAt.Equal(cj.CreatedAt) {
			return ci.CreatedAt.Before(cj.CreatedAt)
		}
		return ids[i] < ids[j]
	})
}

// Clone возвращает глубокую копию состояния доски
func (b *BoardState) Clone() *BoardState {
	out := NewBoardState()
	out.NextCardSeq = b.NextCardSeq
	for id, c := range b.Cards {
		cc := *c
		cc.Images = append([]ImageRef(nil), c.Images...)
		cc.Checklist = append([]ChecklistItem(nil), c.Checklist...)
		if c.DoingStartedAt != nil {
			t := *c.DoingStartedAt
			cc.DoingStartedAt = &t
		}
		out.Cards[id] = &cc
	}
	for _, col := range Columns {
		out.Columns[col] = append([]string(nil), b.Columns[col]...)
	}
	for id, p := range b.Floating {
		out.Floating[id] = p
	}
	out.History = append([]HistoryEntry(nil), b.History...)
	return out
}

// MediaRefs возвращает множество идентификаторов media-файлов,
// на которые ссылается доска (включая preview-варианты)
func (b *BoardState) MediaRefs() map[string]int64 {
	refs := make(map[string]int64)
	for _, c := range b.Cards {
		for _, img := range c.Images {
			addImageRef(refs, img)
		}
	}
	return refs
}

func addImageRef(refs map[string]int64, img ImageRef) {
	if img.FileID != "" {
		refs[img.FileID] = img.Size
	}
	if img.PreviewID != "" {
		if _, ok := refs[img.PreviewID]; !ok {
			refs[img.PreviewID] = 0
		}
	}
}
