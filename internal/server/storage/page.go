package storage

// Pagination defaults shared by both backends and the API layer
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// ClampPage нормализует offset/limit пагинации
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return offset, limit
}

// PageBounds возвращает границы среза [lo:hi] для списка длины n
// и признак наличия следующей страницы
func PageBounds(n, offset, limit int) (lo, hi int, hasMore bool) {
	offset, limit = ClampPage(offset, limit)
	if offset >= n {
		return n, n, false
	}
	hi = offset + limit
	if hi > n {
		hi = n
	}
	return offset, hi, hi < n
}
