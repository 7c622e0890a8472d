package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iudanet/boardkeeper/internal/metrics"
	"github.com/iudanet/boardkeeper/internal/server/handlers"
)

// Scope именует класс ограничиваемых операций
type Scope string

const (
	ScopeMediaUpload  Scope = "media-upload"
	ScopeCommentWrite Scope = "comment-write"
	ScopeBoardWrite   Scope = "board-write"
)

// ScopeLimit задает лимит запросов на фиксированное окно
type ScopeLimit struct {
	Limit  int
	Window time.Duration
}

// DefaultLimits возвращает лимиты по умолчанию для всех scope
func DefaultLimits() map[Scope]ScopeLimit {
	return map[Scope]ScopeLimit{
		ScopeMediaUpload:  {Limit: 20, Window: time.Minute},
		ScopeCommentWrite: {Limit: 30, Window: time.Minute},
		ScopeBoardWrite:   {Limit: 120, Window: time.Minute},
	}
}

// RateLimitError несет данные для осмысленного отказа: лимит, окно и
// время до следующей попытки
type RateLimitError struct {
	Scope      Scope
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: %d requests per %s, retry after %s",
		e.Scope, e.Limit, e.Window, e.RetryAfter)
}

// limiterKey различает счетчики: scope + пользователь + сетевой адрес
type limiterKey struct {
	scope  Scope
	userID string
	ip     string
}

// window представляет одно фиксированное окно счетчика
type window struct {
	start   time.Time
	touched time.Time
	count   int
}

// maxLimiterEntries ограничивает размер таблицы счетчиков
const maxLimiterEntries = 10000

// RateLimiter представляет rate limiter с фиксированными окнами,
// раздельными по (scope, пользователь, IP)
type RateLimiter struct {
	windows map[limiterKey]*window
	limits  map[Scope]ScopeLimit
	longest time.Duration
	maxSize int
	logger  *slog.Logger
	now     func() time.Time
	mu      sync.Mutex
}

// NewRateLimiter создает rate limiter. nil limits означает умолчания.
func NewRateLimiter(limits map[Scope]ScopeLimit, logger *slog.Logger) *RateLimiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	var longest time.Duration
	for _, l := range limits {
		if l.Window > longest {
			longest = l.Window
		}
	}
	return &RateLimiter{
		windows: make(map[limiterKey]*window),
		limits:  limits,
		longest: longest,
		maxSize: maxLimiterEntries,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock подменяет источник времени, предназначено для тестов
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.now = now
}

// Allow проверяет, разрешен ли запрос. nil означает "пропустить";
// *RateLimitError означает отказ с данными для ответа клиенту.
func (rl *RateLimiter) Allow(scope Scope, userID, ip string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, ok := rl.limits[scope]
	if !ok {
		return nil
	}

	now := rl.now()
	rl.pruneLocked(now)

	key := limiterKey{scope: scope, userID: userID, ip: ip}
	w, exists := rl.windows[key]
	if !exists || now.Sub(w.start) >= limit.Window {
		// Новое окно: счет начинается заново
		rl.windows[key] = &window{start: now, touched: now, count: 1}
		return nil
	}

	w.touched = now
	w.count++
	if w.count > limit.Limit {
		retry := limit.Window - now.Sub(w.start)
		if retry < 0 {
			retry = 0
		}
		return &RateLimitError{
			Scope:      scope,
			Limit:      limit.Limit,
			Window:     limit.Window,
			RetryAfter: retry,
		}
	}
	return nil
}

// pruneLocked удаляет простаивающие счетчики: старше 3x самого длинного
// окна, а при переполнении таблицы — самые давно тронутые. Caller holds
// the lock.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	stale := now.Add(-3 * rl.longest)
	for key, w := range rl.windows {
		if w.touched.Before(stale) {
			delete(rl.windows, key)
		}
	}
	for len(rl.windows) >= rl.maxSize {
		var oldestKey limiterKey
		var oldest time.Time
		first := true
		for key, w := range rl.windows {
			if first || w.touched.Before(oldest) {
				oldestKey = key
				oldest = w.touched
				first = false
			}
		}
		delete(rl.windows, oldestKey)
	}
}

// Len возвращает текущий размер таблицы счетчиков
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// RateLimitMiddleware создает middleware, ограничивающее частоту
// запросов в одном scope. Пользователь берется из контекста (после
// AuthMiddleware), сетевой адрес — из запроса. nil metrics отключает
// учет отказов.
func RateLimitMiddleware(limiter *RateLimiter, scope Scope, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, _ := r.Context().Value(handlers.UserIDKey).(string)
			ip := getClientIP(r)

			if err := limiter.Allow(scope, userID, ip); err != nil {
				if m != nil {
					m.RateLimitRejected.WithLabelValues(string(scope)).Inc()
				}
				rlErr, ok := err.(*RateLimitError)
				if !ok {
					http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
					return
				}
				logger.Warn("Rate limit exceeded",
					"scope", string(scope),
					"user_id", userID,
					"ip", ip,
					"method", r.Method,
					"path", r.URL.Path,
				)

				retrySec := int(rlErr.RetryAfter.Seconds()) + 1
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySec))
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = fmt.Fprintf(w,
					`{"error":"rate limit exceeded","limit":%d,"windowSeconds":%d,"retryAfterSeconds":%d}`,
					rlErr.Limit, int(rlErr.Window.Seconds()), retrySec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP извлекает IP адрес клиента из запроса
// Проверяет заголовки X-Forwarded-For и X-Real-IP для прокси
func getClientIP(r *http.Request) string {
	// Проверяем X-Forwarded-For (для прокси/load balancers)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Берем первый IP из списка (реальный клиент)
		for idx := 0; idx < len(xff); idx++ {
			if xff[idx] == ',' {
				return xff[:idx]
			}
		}
		return xff
	}

	// Проверяем X-Real-IP
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Используем RemoteAddr, без порта: иначе каждый reconnect
	// клиента получает свежий счетчик
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
