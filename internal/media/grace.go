package media

import (
	"sync"
	"time"
)

// DefaultGraceTTL is how long a fresh upload survives without a reference
const DefaultGraceTTL = time.Hour

type graceEntry struct {
	owner   string
	size    int64
	addedAt time.Time
}

// Grace is the pending-upload allowlist: свежезагруженный файл живет
// здесь, пока клиент не сохранит карточку или комментарий со ссылкой
// на него. Просроченные записи становятся добычей сборщика.
type Grace struct {
	mu      sync.Mutex
	entries map[string]graceEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewGrace creates an empty grace set with the given TTL
func NewGrace(ttl time.Duration) *Grace {
	if ttl <= 0 {
		ttl = DefaultGraceTTL
	}
	return &Grace{
		entries: make(map[string]graceEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock substitutes the time source, предназначено для тестов
func (g *Grace) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Add registers a fresh upload
func (g *Grace) Add(fileID, owner string, size int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries[fileID] = graceEntry{owner: owner, size: size, addedAt: g.now()}
}

// Evict drops ids from the set immediately. Вызывается, когда ссылка
// на файл появилась в состоянии (файл больше не сирота) или когда
// мутация сняла ссылку (файлу нечего защищать от сборщика).
func (g *Grace) Evict(fileIDs ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range fileIDs {
		delete(g.entries, id)
	}
}

// pruneLocked removes expired entries. Caller holds the lock.
func (g *Grace) pruneLocked() {
	cutoff := g.now().Add(-g.ttl)
	for id, e := range g.entries {
		if e.addedAt.Before(cutoff) {
			delete(g.entries, id)
		}
	}
}

// ActiveIDs returns unexpired ids as a set
func (g *Grace) ActiveIDs() map[string]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	out := make(map[string]struct{}, len(g.entries))
	for id := range g.entries {
		out[id] = struct{}{}
	}
	return out
}

// BytesFor returns total unexpired pending bytes of one owner
func (g *Grace) BytesFor(owner string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	var total int64
	for _, e := range g.entries {
		if e.owner == owner {
			total += e.size
		}
	}
	return total
}

// Len returns the unexpired entry count
func (g *Grace) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pruneLocked()
	return len(g.entries)
}
