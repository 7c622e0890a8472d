package sanitize

import (
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/boardkeeper/internal/models"
)

// BoardState нормализует произвольный снимок доски от клиента.
// Возвращает nil только если v — не объект; любой другой мусор
// вычищается поэлементно. Результат удовлетворяет инвариантам доски:
// каждый id присутствует максимум в одной колонке либо во floating,
// все ссылки указывают на существующие карточки, статусы пересчитаны.
func BoardState(v any, now time.Time) *models.BoardState {
	m, ok := asMap(v)
	if !ok {
		return nil
	}

	out := models.NewBoardState()

	// Карточки: дубликаты и мусор отбрасываются
	if cards, ok := asMap(m["cards"]); ok {
		for id, cv := range cards {
			id = CleanLine(id, 64)
			if id == "" {
				continue
			}
			if c := card(id, cv, now); c != nil {
				out.Cards[id] = c
			}
		}
	}

	// Колонки: сохраняем входной порядок, выбрасываем неизвестные
	// и повторно встреченные id
	placed := make(map[string]bool, len(out.Cards))
	if cols, ok := asMap(m["columns"]); ok {
		for _, col := range models.Columns {
			ids, ok := asSlice(cols[string(col)])
			if !ok {
				continue
			}
			for _, iv := range ids {
				id, ok := asString(iv)
				if !ok {
					continue
				}
				if _, exists := out.Cards[id]; !exists || placed[id] {
					continue
				}
				placed[id] = true
				out.Columns[col] = append(out.Columns[col], id)
			}
		}
	}

	// Свободные карточки: id, уже стоящий в колонке, проигрывает колонке
	if fl, ok := asMap(m["floating"]); ok {
		for id, pv := range fl {
			if _, exists := out.Cards[id]; !exists || placed[id] {
				continue
			}
			pm, ok := asMap(pv)
			if !ok {
				continue
			}
			x, _ := asNumber(pm["x"])
			y, _ := asNumber(pm["y"])
			sway, _ := asNumber(pm["sway"])
			placed[id] = true
			out.Floating[id] = models.FloatingPos{X: x, Y: y, Sway: sway}
		}
	}

	// История: новые первыми, лимит журнала
	if hist, ok := asSlice(m["history"]); ok {
		for _, hv := range hist {
			if len(out.History) >= models.MaxHistoryEntries {
				break
			}
			if e := historyEntry(hv, now); e != nil {
				out.History = append(out.History, *e)
			}
		}
	}

	// Счетчик последовательных id не должен откатываться назад
	out.NextCardSeq = nextSeq(m["nextCardSeq"], out.Cards)

	out.RecomputeStatuses()
	return out
}

// nextSeq выбирает счетчик id: максимум из заявленного клиентом
// и (максимальный существующий P-<n>)+1
func nextSeq(v any, cards map[string]*models.Card) int64 {
	var seq int64 = 1
	if n, ok := asNumber(v); ok {
		seq = clampInt(int64(n), 1, 1<<40)
	}
	for id := range cards {
		if !strings.HasPrefix(id, "P-") {
			continue
		}
		if n, err := strconv.ParseInt(id[2:], 10, 64); err == nil && n+1 > seq {
			seq = n + 1
		}
	}
	return seq
}

// card нормализует одну карточку; nil при структурно невозможном значении
func card(id string, v any, now time.Time) *models.Card {
	m, ok := asMap(v)
	if !ok {
		return nil
	}

	title, _ := asString(m["title"])
	desc, _ := asString(m["description"])
	createdBy, _ := asString(m["createdBy"])

	c := &models.Card{
		ID:          id,
		Title:       CleanLine(title, MaxTitleLen),
		Description: CleanText(desc, MaxDescriptionLen),
		CreatedBy:   CleanLine(createdBy, MaxNameLen),
		Favorite:    asBool(m["favorite"]),
		CreatedAt:   asTime(m["createdAt"], now),
		Images:      CardImages(m["images"], now),
		Checklist:   Checklist(m["checklist"], now),
	}

	if u, ok := asString(m["urgency"]); ok && models.IsValidUrgency(models.Urgency(u)) {
		c.Urgency = models.Urgency(u)
	} else {
		c.Urgency = models.UrgencyWhite
	}

	// Таймер doing: отрицательные накопления обнуляются
	if n, ok := asNumber(m["doingTotalMs"]); ok {
		c.DoingTotalMs = clampInt(int64(n), 0, 1<<50)
	}
	if t := asTime(m["doingStartedAt"], time.Time{}); !t.IsZero() && !t.After(now) {
		c.DoingStartedAt = &t
	}

	return c
}

// CardImages нормализует список вложений карточки: отбрасывает элементы
// с неизвестным MIME, переполненным размером и повторными file id;
// суммарный бюджет байт на карточку не превышается
func CardImages(v any, now time.Time) []models.ImageRef {
	items, ok := asSlice(v)
	if !ok {
		return nil
	}
	var out []models.ImageRef
	var total int64
	seen := make(map[string]bool)
	for _, iv := range items {
		if len(out) >= MaxImagesPerCard {
			break
		}
		img, ok := imageRef(iv, now)
		if !ok || seen[img.FileID] {
			continue
		}
		if total+img.Size > MaxCardImageBytes {
			continue
		}
		seen[img.FileID] = true
		total += img.Size
		out = append(out, img)
	}
	return out
}

// imageRef нормализует один дескриптор изображения
func imageRef(v any, now time.Time) (models.ImageRef, bool) {
	m, ok := asMap(v)
	if !ok {
		return models.ImageRef{}, false
	}
	fileID, _ := asString(m["fileId"])
	if !ValidFileID(fileID) {
		return models.ImageRef{}, false
	}
	mime, _ := asString(m["mimeType"])
	if _, ok := models.ExtensionForMime(mime); !ok {
		return models.ImageRef{}, false
	}
	size, _ := asNumber(m["size"])
	if size <= 0 || int64(size) > MaxImageBytes {
		return models.ImageRef{}, false
	}
	name, _ := asString(m["name"])
	img := models.ImageRef{
		FileID:    fileID,
		MimeType:  mime,
		Size:      int64(size),
		Name:      CleanLine(name, MaxNameLen),
		CreatedAt: asTime(m["createdAt"], now),
	}
	if pv, ok := asString(m["preview"]); ok && ValidFileID(pv) {
		img.PreviewID = pv
	}
	return img, true
}

// Checklist нормализует чеклист карточки: дубликаты id отбрасываются,
// порядок входных данных сохраняется, список ограничен лимитом
func Checklist(v any, now time.Time) []models.ChecklistItem {
	items, ok := asSlice(v)
	if !ok {
		return nil
	}
	var out []models.ChecklistItem
	seen := make(map[string]bool)
	for _, iv := range items {
		if len(out) >= MaxChecklistItems {
			break
		}
		m, ok := asMap(iv)
		if !ok {
			continue
		}
		id, _ := asString(m["id"])
		id = CleanLine(id, 64)
		text, _ := asString(m["text"])
		text = CleanText(text, MaxChecklistText)
		if id == "" || text == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, models.ChecklistItem{
			ID:        id,
			Text:      text,
			Done:      asBool(m["done"]),
			CreatedAt: asTime(m["createdAt"], now),
		})
	}
	return out
}

// historyEntry нормализует одну запись истории; мусор отбрасывается
func historyEntry(v any, now time.Time) *models.HistoryEntry {
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	text, _ := asString(m["text"])
	text = CleanText(text, MaxHistoryText)
	if text == "" {
		return nil
	}
	id, _ := asString(m["id"])
	id = CleanLine(id, 64)
	if id == "" {
		return nil
	}
	kind, _ := asString(m["kind"])
	switch models.HistoryKind(kind) {
	case models.HistoryCreate, models.HistoryMove, models.HistoryDelete, models.HistoryRestore:
	default:
		return nil
	}
	cardID, _ := asString(m["cardId"])
	e := &models.HistoryEntry{
		ID:            id,
		Timestamp:     asTime(m["ts"], now),
		Text:          text,
		RelatedCardID: CleanLine(cardID, 64),
		Kind:          models.HistoryKind(kind),
	}
	if meta, ok := asMap(m["meta"]); ok {
		title, _ := asString(meta["title"])
		from, _ := asString(meta["from"])
		to, _ := asString(meta["to"])
		e.Meta.Title = CleanLine(title, MaxTitleLen)
		e.Meta.FromColumn = CleanLine(from, 32)
		e.Meta.ToColumn = CleanLine(to, 32)
		if n, ok := asNumber(meta["doingDeltaMs"]); ok {
			e.Meta.DoingDeltaMs = clampInt(int64(n), 0, 1<<50)
		}
	}
	return e
}

// ValidFileID проверяет строгий charset идентификатора media-файла:
// [a-zA-Z0-9_-] плюс единственная точка перед известным расширением.
// Это первая линия защиты от path traversal.
func ValidFileID(id string) bool {
	if id == "" || len(id) > 128 {
		return false
	}
	dot := strings.LastIndexByte(id, '.')
	if dot <= 0 || dot == len(id)-1 {
		return false
	}
	base, ext := id[:dot], id[dot:]
	switch ext {
	case ".png", ".jpg", ".webp", ".gif":
	default:
		return false
	}
	for i := 0; i < len(base); i++ {
		c := base[i]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}
