package activity

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := Open(filepath.Join(t.TempDir(), "activity.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLog_RecordAndRecent(t *testing.T) {
	l := openTestLog(t)

	l.Record("alice", "card.create", "P-1")
	l.Record("alice", "card.move", "P-1")
	l.Record("bob", "board.write", "")

	entries, err := l.Recent("alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Новые записи первыми
	assert.Equal(t, "card.move", entries[0].Action)
	assert.Equal(t, "card.create", entries[1].Action)
	assert.Equal(t, "P-1", entries[0].Detail)
	assert.False(t, entries[0].Timestamp.IsZero())

	entries, err = l.Recent("bob", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "board.write", entries[0].Action)
}

func TestLog_RecentLimit(t *testing.T) {
	l := openTestLog(t)

	for i := 0; i < 5; i++ {
		l.Record("alice", "card.patch", "P-1")
	}

	entries, err := l.Recent("alice", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Неположительный лимит заменяется умолчанием
	entries, err = l.Recent("alice", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestLog_UnknownUser(t *testing.T) {
	l := openTestLog(t)

	entries, err := l.Recent("nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_NilReceiverIsSafe(t *testing.T) {
	var l *Log
	assert.NotPanics(t, func() {
		l.Record("alice", "card.create", "P-1")
	})
	entries, err := l.Recent("alice", 10)
	assert.NoError(t, err)
	assert.Nil(t, entries)
	assert.NoError(t, l.Close())
}
