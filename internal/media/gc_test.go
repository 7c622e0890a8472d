package media

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/boardkeeper/internal/models"
	"github.com/iudanet/boardkeeper/internal/server/storage"
)

// fakeIndex — достижимость и метаданные в памяти
type fakeIndex struct {
	refs  map[string]map[string]int64 // userID -> fileID -> size
	files map[string][]models.MediaFile
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		refs:  make(map[string]map[string]int64),
		files: make(map[string][]models.MediaFile),
	}
}

func (f *fakeIndex) MediaRefs(_ context.Context, userID string) (map[string]int64, error) {
	out := make(map[string]int64, len(f.refs[userID]))
	for id, size := range f.refs[userID] {
		out[id] = size
	}
	return out, nil
}

func (f *fakeIndex) ListUserMediaFiles(_ context.Context, userID string) ([]models.MediaFile, error) {
	return append([]models.MediaFile(nil), f.files[userID]...), nil
}

func (f *fakeIndex) DeleteMediaFile(_ context.Context, fileID string) error {
	for userID, files := range f.files {
		kept := files[:0]
		for _, mf := range files {
			if mf.ID != fileID {
				kept = append(kept, mf)
			}
		}
		f.files[userID] = kept
	}
	return nil
}

func (f *fakeIndex) addFile(userID, fileID string, size int64) {
	f.files[userID] = append(f.files[userID], models.MediaFile{
		ID: fileID, OwnerID: userID, Size: size,
	})
}

func collectorFixture(t *testing.T, cfg CollectorConfig) (*Collector, *Store, *Grace, *fakeIndex) {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	grace := NewGrace(time.Hour)
	index := newFakeIndex()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gc := NewCollector(store, grace, index, logger, cfg)
	t.Cleanup(gc.Close)
	return gc, store, grace, index
}

func TestSweepUser_RemovesOnlyUnreachable(t *testing.T) {
	gc, store, grace, index := collectorFixture(t, CollectorConfig{})
	ctx := context.Background()

	for _, id := range []string{"referenced.png", "pending.png", "orphan.png"} {
		require.NoError(t, store.Save(id, []byte("x")))
		index.addFile("alice", id, 1)
	}
	index.refs["alice"] = map[string]int64{"referenced.png": 1}
	grace.Add("pending.png", "alice", 1)

	require.NoError(t, gc.SweepUser(ctx, "alice"))

	assert.True(t, store.Exists("referenced.png"))
	assert.True(t, store.Exists("pending.png"))
	assert.False(t, store.Exists("orphan.png"))

	// Запись метаданных сироты удалена вместе с блобом
	files, err := index.ListUserMediaFiles(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSweepUser_ExpiredGraceLosesProtection(t *testing.T) {
	gc, store, grace, index := collectorFixture(t, CollectorConfig{})
	now := time.Now()
	grace.SetClock(func() time.Time { return now })

	require.NoError(t, store.Save("stale.png", []byte("x")))
	index.addFile("alice", "stale.png", 1)
	grace.Add("stale.png", "alice", 1)

	now = now.Add(2 * time.Hour)
	require.NoError(t, gc.SweepUser(context.Background(), "alice"))
	assert.False(t, store.Exists("stale.png"))
}

func TestSchedule_DebouncedSweep(t *testing.T) {
	gc, store, _, index := collectorFixture(t, CollectorConfig{Debounce: 10 * time.Millisecond})

	require.NoError(t, store.Save("orphan.png", []byte("x")))
	index.addFile("alice", "orphan.png", 1)

	gc.Schedule("alice")
	assert.Eventually(t, func() bool {
		return !store.Exists("orphan.png")
	}, time.Second, 5*time.Millisecond)
}

func TestSchedule_AfterCloseIsNoop(t *testing.T) {
	gc, store, _, index := collectorFixture(t, CollectorConfig{Debounce: 10 * time.Millisecond})

	require.NoError(t, store.Save("orphan.png", []byte("x")))
	index.addFile("alice", "orphan.png", 1)

	gc.Close()
	gc.Schedule("alice")
	time.Sleep(50 * time.Millisecond)
	assert.True(t, store.Exists("orphan.png"))
}

func TestAuditDisk_CountsUnindexedBlobs(t *testing.T) {
	gc, store, grace, index := collectorFixture(t, CollectorConfig{Debounce: time.Hour})
	ctx := context.Background()

	// Файлы известного владельца и ожидающие в grace аудит не тревожат
	require.NoError(t, store.Save("indexed.png", []byte("x")))
	index.addFile("alice", "indexed.png", 1)
	gc.Schedule("alice")

	require.NoError(t, store.Save("pending.png", []byte("x")))
	grace.Add("pending.png", "bob", 1)

	// След упавшей записи: блоб на диске есть, метаданных нет
	require.NoError(t, store.Save("stray.png", []byte("x")))

	stray, err := gc.auditDisk(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stray)
	assert.True(t, store.Exists("stray.png"), "audit only reports, never deletes")
}

func TestUsage_CountsRefsAndPending(t *testing.T) {
	gc, _, grace, index := collectorFixture(t, CollectorConfig{})
	ctx := context.Background()

	index.refs["alice"] = map[string]int64{"card.png": 100, "avatar.png": 0}
	// У ссылки без размера вес добирается из метаданных
	index.addFile("alice", "avatar.png", 40)
	grace.Add("pending.png", "alice", 25)

	used, err := gc.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(165), used)
}

func TestCheckQuota(t *testing.T) {
	gc, _, grace, _ := collectorFixture(t, CollectorConfig{QuotaBytes: 100})
	ctx := context.Background()

	grace.Add("pending.png", "alice", 60)

	assert.NoError(t, gc.CheckQuota(ctx, "alice", 40))

	err := gc.CheckQuota(ctx, "alice", 41)
	var quota *storage.QuotaExceededError
	require.ErrorAs(t, err, &quota)
	assert.Equal(t, int64(100), quota.Limit)
	assert.Equal(t, int64(60), quota.Used)
	assert.Equal(t, int64(41), quota.Asked)
	assert.Equal(t, int64(100), gc.QuotaBytes())
}
