// Package sanitize normalizes untrusted client input into bounded,
// invariant-preserving model values. Every entry point accepts an
// arbitrarily-shaped value and either returns a normalized structure or
// drops the offending item; none of them panic or return errors for
// malformed input. Only a structurally impossible top-level shape
// (not an object) yields nil. This package is the sole gate between
// client input and anything durable.
package sanitize

import (
	"strings"
	"time"
	"unicode"
)

// Size and length bounds applied during normalization
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 8000
	MaxNameLen        = 120
	MaxCommentTextLen = 4000
	MaxChecklistItems = 120
	MaxChecklistText  = 500
	MaxImagesPerCard  = 20
	MaxImageBytes     = 900 * 1024 // один файл
	MaxCardImageBytes = 3 << 20    // суммарно на карточку
	MaxHistoryText    = 500
)

// asMap приводит значение к JSON-объекту
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asSlice приводит значение к JSON-массиву
func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// asString приводит значение к строке; числа и booleans не коэрсируются
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// asNumber коэрсирует значение к float64 (JSON числа декодируются так)
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// asBool приводит значение к bool
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asTime принимает RFC3339 строку либо unix-миллисекунды.
// Нулевое/непарсимое значение заменяется fallback'ом.
func asTime(v any, fallback time.Time) time.Time {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil && !t.IsZero() {
			return t.UTC()
		}
		return fallback
	}
	if n, ok := asNumber(v); ok && n > 0 {
		return time.UnixMilli(int64(n)).UTC()
	}
	return fallback
}

// clampInt ограничивает n диапазоном [lo, hi]
func clampInt(n, lo, hi int64) int64 {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// CleanText нормализует произвольную строку: обрезает пробелы,
// выбрасывает управляющие символы (кроме \n и \t) и ограничивает
// длину max рунами
func CleanText(s string, max int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	runes := []rune(out)
	if len(runes) > max {
		out = strings.TrimSpace(string(runes[:max]))
	}
	return out
}

// CleanLine — как CleanText, но без переводов строк (для заголовков, имен)
func CleanLine(s string, max int) string {
	return CleanText(strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "\t", " "), max)
}
