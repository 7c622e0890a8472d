package sanitize

import (
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/iudanet/boardkeeper/internal/models"
)

// commentPolicy — закрытый allow-list тегов/атрибутов для текста комментария
var commentPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "b", "strong", "i", "em", "u", "s",
		"ul", "ol", "li", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}()

// CommentText пропускает HTML комментария через allow-list и
// ограничивает длину. Вырезанный до пустоты текст возвращается как ""
func CommentText(s string) string {
	out := commentPolicy.Sanitize(s)
	out = strings.TrimSpace(out)
	runes := []rune(out)
	if len(runes) > MaxCommentTextLen {
		out = strings.TrimSpace(string(runes[:MaxCommentTextLen]))
	}
	return out
}

// Comment нормализует один комментарий. Возвращает nil, если значение —
// не объект либо после чистки не осталось ни текста, ни изображений
// (хотя бы одно из двух обязано быть непустым).
func Comment(v any, cardID string, now time.Time) *models.Comment {
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	id, _ := asString(m["id"])
	id = CleanLine(id, 64)
	if id == "" {
		return nil
	}
	text, _ := asString(m["text"])
	author, _ := asString(m["author"])

	c := &models.Comment{
		ID:        id,
		CardID:    cardID,
		Author:    CleanLine(author, MaxNameLen),
		Text:      CommentText(text),
		Images:    CardImages(m["images"], now),
		CreatedAt: asTime(m["createdAt"], now),
		UpdatedAt: asTime(m["updatedAt"], now),
	}
	if c.Empty() {
		return nil
	}
	if c.UpdatedAt.Before(c.CreatedAt) {
		c.UpdatedAt = c.CreatedAt
	}
	return c
}

// Comments нормализует список комментариев карточки: мусор и повторные id
// отбрасываются, итог упорядочен по (createdAt, id) от старых к новым
func Comments(v any, cardID string, now time.Time) []models.Comment {
	items, ok := asSlice(v)
	if !ok {
		return nil
	}
	var out []models.Comment
	seen := make(map[string]bool)
	for _, iv := range items {
		c := Comment(iv, cardID, now)
		if c == nil || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, *c)
	}
	models.SortCommentsByAge(out)
	return out
}
