package models

import (
	"sort"
	"time"
)

// MaxLiveCommentsPerCard ограничивает живые комментарии на карточке.
// Переполнение уходит в архив с причиной overflow.
const MaxLiveCommentsPerCard = 200

// MaxArchivedCommentsPerUser ограничивает архив комментариев пользователя.
// Единственное место, где данные удаляются безвозвратно.
const MaxArchivedCommentsPerUser = 5000

// ArchiveReason объясняет, почему комментарий попал в архив
type ArchiveReason string

const (
	ArchiveOverflow   ArchiveReason = "overflow"    // вытеснен лимитом живых комментариев
	ArchiveDelete     ArchiveReason = "delete"      // явное удаление пользователем
	ArchiveCardDelete ArchiveReason = "card-delete" // удалена сама карточка
)

// Comment представляет живой комментарий под карточкой.
// Хотя бы одно из Text/Images должно быть непустым.
type Comment struct {
	ID        string     `json:"id"`
	CardID    string     `json:"cardId"`
	Author    string     `json:"author,omitempty"` // login автора; обязан совпадать с вызывающим при изменении
	Text      string     `json:"text,omitempty"`   // HTML, ограниченный allow-list'ом тегов
	Images    []ImageRef `json:"images,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Empty сообщает, что в комментарии нет ни текста, ни изображений
func (c *Comment) Empty() bool {
	return c.Text == "" && len(c.Images) == 0
}

// MediaRefs возвращает идентификаторы media-файлов комментария
func (c *Comment) MediaRefs(refs map[string]int64) {
	for _, img := range c.Images {
		addImageRef(refs, img)
	}
}

// ArchivedComment представляет комментарий в архиве
type ArchivedComment struct {
	Comment
	ArchivedAt time.Time     `json:"archivedAt"`
	Reason     ArchiveReason `json:"reason"`
}

// SortCommentsByAge упорядочивает комментарии по (createdAt, id) —
// детерминированный порядок от старых к новым
func SortCommentsByAge(comments []Comment) {
	sort.SliceStable(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.Before(comments[j].CreatedAt)
		}
		return comments[i].ID < comments[j].ID
	})
}

// OverflowComments выбирает комментарии, подлежащие архивации по лимиту max.
// Возвращает самые старые по (createdAt, id) лишние комментарии в порядке
// от старых к новым и оставшийся живой набор в исходном хронологическом порядке.
func OverflowComments(comments []Comment, max int) (overflow, live []Comment) {
	if max < 0 {
		max = 0
	}
	sorted := append([]Comment(nil), comments...)
	SortCommentsByAge(sorted)
	if len(sorted) <= max {
		return nil, sorted
	}
	cut := len(sorted) - max
	return sorted[:cut], sorted[cut:]
}
