package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/boardkeeper/internal/metrics"
	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

const (
	// DefaultQuotaBytes bounds one user's reachable plus pending bytes
	DefaultQuotaBytes = 64 << 20
	// DefaultDebounce is the delay between a mutation and its sweep
	DefaultDebounce = 1200 * time.Millisecond
	// DefaultSweepInterval is the periodic safety pass cadence
	DefaultSweepInterval = 15 * time.Minute
)

// Index is the storage slice the collector needs: источник истины о
// достижимости и метаданные файлов
type Index interface {
	MediaRefs(ctx context.Context, userID string) (map[string]int64, error)
	ListUserMediaFiles(ctx context.Context, userID string) ([]models.MediaFile, error)
	DeleteMediaFile(ctx context.Context, fileID string) error
}

// Collector deletes media blobs that are reachable neither from the
// board state nor from the unexpired grace set. Свипы дебаунсятся
// после мутаций и страхуются периодическим проходом.
type Collector struct {
	store    *Store
	grace    *Grace
	index    Index
	logger   *slog.Logger
	quota    int64
	debounce time.Duration
	interval time.Duration
	metrics  *metrics.Metrics

	mu     sync.Mutex
	timers map[string]*time.Timer
	owners map[string]struct{}
	closed bool
}

// CollectorConfig carries optional knobs; zero values mean defaults
type CollectorConfig struct {
	QuotaBytes    int64
	Debounce      time.Duration
	SweepInterval time.Duration
	Metrics       *metrics.Metrics
}

// NewCollector wires the collector together
func NewCollector(store *Store, grace *Grace, index Index, logger *slog.Logger, cfg CollectorConfig) *Collector {
	if cfg.QuotaBytes <= 0 {
		cfg.QuotaBytes = DefaultQuotaBytes
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Collector{
		store:    store,
		grace:    grace,
		index:    index,
		logger:   logger,
		quota:    cfg.QuotaBytes,
		debounce: cfg.Debounce,
		interval: cfg.SweepInterval,
		metrics:  cfg.Metrics,
		timers:   make(map[string]*time.Timer),
		owners:   make(map[string]struct{}),
	}
}

// Schedule queues a debounced sweep for the user's namespace.
// Повторный вызов до срабатывания перезапускает отсчет.
func (c *Collector) Schedule(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.owners[userID] = struct{}{}
	if t, ok := c.timers[userID]; ok {
		t.Reset(c.debounce)
		return
	}
	c.timers[userID] = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		delete(c.timers, userID)
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if err := c.SweepUser(context.Background(), userID); err != nil {
			c.logger.Warn("media sweep failed",
				slog.String("user_id", userID),
				slog.Any("error", err))
		}
	})
}

// SweepUser deletes the user's unreachable blobs right now
func (c *Collector) SweepUser(ctx context.Context, userID string) error {
	refs, err := c.index.MediaRefs(ctx, userID)
	if err != nil {
		return err
	}
	pending := c.grace.ActiveIDs()
	files, err := c.index.ListUserMediaFiles(ctx, userID)
	if err != nil {
		return err
	}
	var removed int
	for _, f := range files {
		if _, ok := refs[f.ID]; ok {
			continue
		}
		if _, ok := pending[f.ID]; ok {
			continue
		}
		if err := c.store.Delete(f.ID); err != nil {
			c.logger.Warn("failed to delete media blob",
				slog.String("file_id", f.ID),
				slog.Any("error", err))
			continue
		}
		if err := c.index.DeleteMediaFile(ctx, f.ID); err != nil {
			c.logger.Warn("failed to delete media record",
				slog.String("file_id", f.ID),
				slog.Any("error", err))
			continue
		}
		removed++
	}
	if c.metrics != nil {
		c.metrics.MediaGCSweeps.Inc()
		c.metrics.MediaGCRemoved.Add(float64(removed))
	}
	if removed > 0 {
		c.logger.Info("media sweep completed",
			slog.String("user_id", userID),
			slog.Int("removed", removed))
	}
	return nil
}

// Usage returns reachable bytes plus unexpired pending bytes
func (c *Collector) Usage(ctx context.Context, userID string) (int64, error) {
	refs, err := c.index.MediaRefs(ctx, userID)
	if err != nil {
		return 0, err
	}
	// Ссылки без размера (например аватар) добираем из метаданных
	var sizes map[string]int64
	var total int64
	for id, size := range refs {
		if size <= 0 {
			if sizes == nil {
				files, err := c.index.ListUserMediaFiles(ctx, userID)
				if err != nil {
					return 0, err
				}
				sizes = make(map[string]int64, len(files))
				for _, f := range files {
					sizes[f.ID] = f.Size
				}
			}
			size = sizes[id]
		}
		total += size
	}
	return total + c.grace.BytesFor(userID), nil
}

// CheckQuota rejects an upload that would push the user past the quota
func (c *Collector) CheckQuota(ctx context.Context, userID string, asked int64) error {
	used, err := c.Usage(ctx, userID)
	if err != nil {
		return err
	}
	if used+asked > c.quota {
		if c.metrics != nil {
			c.metrics.MediaQuotaDenied.Inc()
		}
		return &storage.QuotaExceededError{Limit: c.quota, Used: used, Asked: asked}
	}
	return nil
}

// QuotaBytes returns the configured per-user ceiling
func (c *Collector) QuotaBytes() int64 { return c.quota }

// Run performs the periodic safety pass until the context ends
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			for _, userID := range c.knownOwners() {
				if err := c.SweepUser(ctx, userID); err != nil {
					c.logger.Warn("periodic media sweep failed",
						slog.String("user_id", userID),
						slog.Any("error", err))
				}
			}
			if _, err := c.auditDisk(ctx); err != nil {
				c.logger.Warn("media disk audit failed", slog.Any("error", err))
			}
		}
	}
}

// auditDisk сверяет каталог блобов с индексом достижимости.
// Файл без владельца среди известных и без записи в grace — след
// упавшей записи; такие только считаем и логируем, удалять нельзя:
// владелец мог просто еще не попадать в owners после рестарта.
func (c *Collector) auditDisk(ctx context.Context) (int, error) {
	onDisk, err := c.store.List()
	if err != nil {
		return 0, err
	}
	known := c.grace.ActiveIDs()
	for _, userID := range c.knownOwners() {
		files, err := c.index.ListUserMediaFiles(ctx, userID)
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			known[f.ID] = struct{}{}
		}
	}
	var stray int
	for _, id := range onDisk {
		if _, ok := known[id]; !ok {
			stray++
		}
	}
	if stray > 0 {
		c.logger.Warn("media audit found unindexed blobs", slog.Int("count", stray))
	}
	return stray, nil
}

func (c *Collector) knownOwners() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.owners))
	for id := range c.owners {
		out = append(out, id)
	}
	return out
}

// Close stops pending debounce timers
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
